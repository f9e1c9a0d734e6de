// Package detector scans an HTML document for media resources and reports
// them as candidates for the resource store. It covers plain DOM media
// elements, lazy-load attributes, inline CSS backgrounds, direct media
// links, and streaming manifests, and predicts likely full-size variants
// of thumbnail URLs.
package detector

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

// PredictedConfidence is attached to candidates derived from a URL pattern
// rather than an actual sighting.
const PredictedConfidence = 0.7

var (
	cssURLPattern       = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	thumbSuffixPattern  = regexp.MustCompile(`[-_](?:small|thumb|thumbnail|tiny|mini|preview|low|medium)(\.[a-zA-Z0-9]+)$`)
	lazyLoadAttrs       = []string{"data-src", "data-lazy-src", "data-original", "data-url"}
	imageExts           = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".avif": true, ".bmp": true, ".svg": true}
	videoExts           = map[string]bool{".mp4": true, ".webm": true, ".mkv": true, ".mov": true, ".avi": true, ".m4v": true, ".ts": true}
	audioExts           = map[string]bool{".mp3": true, ".wav": true, ".ogg": true, ".m4a": true, ".flac": true, ".aac": true, ".opus": true}
	streamManifestExts  = map[string]bool{".m3u8": true, ".mpd": true}
)

// Detect parses the document read from r and returns every media candidate
// found, resolved against pageURL. Candidates are deduplicated by URL and
// provenance within one scan; merging across scans is the store's job.
func Detect(pageURL string, r io.Reader) ([]models.Candidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL %q: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	d := &scan{base: base, seen: make(map[string]bool), now: time.Now()}
	d.images(doc)
	d.videos(doc)
	d.audios(doc)
	d.cssBackgrounds(doc)
	d.mediaLinks(doc)
	d.predictVariants()

	log.Debugf("Detected %d candidates on %s", len(d.found), pageURL)
	return d.found, nil
}

type scan struct {
	base  *url.URL
	seen  map[string]bool
	found []models.Candidate
	now   time.Time
}

func (d *scan) images(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		width := intAttr(sel, "width")
		height := intAttr(sel, "height")

		if src, ok := sel.Attr("src"); ok {
			d.add(models.Candidate{URL: src, Type: models.TypeImage, Width: width, Height: height, Source: models.SourceDOM})
		}
		for _, attr := range lazyLoadAttrs {
			if src, ok := sel.Attr(attr); ok {
				d.add(models.Candidate{URL: src, Type: models.TypeImage, Width: width, Height: height, Source: models.SourceAttribute})
			}
		}
		if srcset, ok := sel.Attr("srcset"); ok {
			d.srcset(srcset, height)
		}
	})

	doc.Find("picture source[srcset]").Each(func(_ int, sel *goquery.Selection) {
		srcset, _ := sel.Attr("srcset")
		d.srcset(srcset, 0)
	})
}

// srcset registers each entry of a srcset attribute, using a width
// descriptor ("800w") as a dimension hint when present.
func (d *scan) srcset(srcset string, heightHint int) {
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(entry))
		if len(fields) == 0 {
			continue
		}
		c := models.Candidate{URL: fields[0], Type: models.TypeImage, Source: models.SourceDOM, Height: heightHint}
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			if w, err := strconv.Atoi(strings.TrimSuffix(fields[1], "w")); err == nil {
				c.Width = w
			}
		}
		d.add(c)
	}
}

func (d *scan) videos(doc *goquery.Document) {
	doc.Find("video").Each(func(_ int, sel *goquery.Selection) {
		width := intAttr(sel, "width")
		height := intAttr(sel, "height")

		if src, ok := sel.Attr("src"); ok {
			d.add(models.Candidate{URL: src, Type: models.TypeVideo, Width: width, Height: height, Source: models.SourceDOM})
		}
		if poster, ok := sel.Attr("poster"); ok {
			d.add(models.Candidate{URL: poster, Type: models.TypeImage, Source: models.SourceDOM})
		}
		sel.Find("source[src]").Each(func(_ int, src *goquery.Selection) {
			u, _ := src.Attr("src")
			c := models.Candidate{URL: u, Type: models.TypeVideo, Width: width, Height: height, Source: models.SourceDOM}
			if mime, ok := src.Attr("type"); ok {
				c.ContentType = mime
			}
			d.add(c)
		})
	})
}

func (d *scan) audios(doc *goquery.Document) {
	doc.Find("audio").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			d.add(models.Candidate{URL: src, Type: models.TypeAudio, Source: models.SourceDOM})
		}
		sel.Find("source[src]").Each(func(_ int, src *goquery.Selection) {
			u, _ := src.Attr("src")
			c := models.Candidate{URL: u, Type: models.TypeAudio, Source: models.SourceDOM}
			if mime, ok := src.Attr("type"); ok {
				c.ContentType = mime
			}
			d.add(c)
		})
	})
}

// cssBackgrounds extracts url(...) references from inline style attributes
// and style elements.
func (d *scan) cssBackgrounds(doc *goquery.Document) {
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		d.cssURLs(style)
	})
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		d.cssURLs(sel.Text())
	})
}

func (d *scan) cssURLs(css string) {
	for _, m := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		d.add(models.Candidate{URL: m[1], Type: models.TypeImage, Source: models.SourceCSS})
	}
}

// TypeFromURL classifies a URL by its file extension. The second return
// reports whether the extension identifies a media file at all; streaming
// manifests classify as video.
func TypeFromURL(raw string) (models.ResourceType, bool) {
	ext := strings.ToLower(path.Ext(strings.SplitN(raw, "?", 2)[0]))
	switch {
	case streamManifestExts[ext], videoExts[ext]:
		return models.TypeVideo, true
	case imageExts[ext]:
		return models.TypeImage, true
	case audioExts[ext]:
		return models.TypeAudio, true
	}
	return models.TypeOther, false
}

// IsStreamManifest reports whether a URL points at an HLS or DASH manifest.
func IsStreamManifest(raw string) bool {
	ext := strings.ToLower(path.Ext(strings.SplitN(raw, "?", 2)[0]))
	return streamManifestExts[ext]
}

// mediaLinks picks up anchors pointing straight at media files or
// streaming manifests.
func (d *scan) mediaLinks(doc *goquery.Document) {
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		typ, ok := TypeFromURL(href)
		if !ok {
			return
		}
		source := models.SourceDOM
		if IsStreamManifest(href) {
			source = models.SourceStreaming
		}
		d.add(models.Candidate{URL: href, Type: typ, Source: source})
	})
}

// predictVariants proposes a full-size sibling for every sighted URL that
// carries a thumbnail-style suffix. Predictions are low-confidence until a
// concrete sighting confirms them.
func (d *scan) predictVariants() {
	sighted := make([]models.Candidate, len(d.found))
	copy(sighted, d.found)

	for _, c := range sighted {
		if c.IsPredicted {
			continue
		}
		full := thumbSuffixPattern.ReplaceAllString(c.URL, "$1")
		if full == c.URL {
			continue
		}
		d.add(models.Candidate{
			URL:         full,
			Type:        c.Type,
			Source:      models.SourcePredicted,
			IsPredicted: true,
			Confidence:  PredictedConfidence,
		})
	}
}

// add resolves, filters, and deduplicates a candidate before recording it.
func (d *scan) add(c models.Candidate) {
	resolved, ok := d.resolve(c.URL)
	if !ok {
		return
	}
	c.URL = resolved
	c.Timestamp = d.now

	// Streaming manifests linked as plain sources still get the streaming tag.
	ext := strings.ToLower(path.Ext(strings.SplitN(c.URL, "?", 2)[0]))
	if streamManifestExts[ext] {
		c.Source = models.SourceStreaming
		c.Type = models.TypeVideo
	}

	key := c.Source + "|" + c.URL
	if d.seen[key] {
		return
	}
	d.seen[key] = true
	d.found = append(d.found, c)
}

// resolve makes a candidate URL absolute and drops non-fetchable schemes.
func (d *scan) resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "data", "javascript", "blob", "about":
		return "", false
	}
	abs := d.base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

func intAttr(sel *goquery.Selection, name string) int {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
