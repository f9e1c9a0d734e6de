// Package paths derives destination paths for downloads: an optional
// per-website folder, an optional per-type folder, and a filename taken from
// the URL or the caller's save-as override.
package paths

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/peterzhang0216/mediagrab/internal/helpers"
	"github.com/peterzhang0216/mediagrab/internal/models"
)

// Options control how a destination path is categorized. ByWebsite and
// ByType are independently toggleable; both off yields a bare filename.
type Options struct {
	SaveAs    string
	SiteName  string
	ByWebsite bool
	ByType    bool
}

var typeFolders = map[models.ResourceType]string{
	models.TypeImage: "images",
	models.TypeVideo: "videos",
	models.TypeAudio: "audio",
	models.TypeOther: "other",
}

// Suggested returns the relative destination path for a resource. The
// result is always a clean relative path that cannot escape the download
// root.
func Suggested(r *models.Resource, opts Options) string {
	var parts []string

	if opts.ByWebsite {
		site := opts.SiteName
		if site == "" {
			site = hostOf(r.URL)
		}
		if slug := helpers.ConvertToSlug(site); slug != "" {
			parts = append(parts, slug)
		}
	}

	if opts.ByType {
		folder, ok := typeFolders[r.Type]
		if !ok {
			folder = typeFolders[models.TypeOther]
		}
		parts = append(parts, folder)
	}

	filename := opts.SaveAs
	if filename == "" {
		filename = FilenameFromURL(r.URL, r.ContentType)
	}
	parts = append(parts, filename)

	return helpers.SanitizePath(filepath.Join(parts...))
}

// FilenameFromURL derives a filename from the URL path, dropping query
// noise. When the path carries no usable name, "download" is the base name
// and the MIME type (if known) supplies the extension.
func FilenameFromURL(rawURL, contentType string) string {
	var name string
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	} else {
		name = path.Base(rawURL)
		if idx := strings.IndexAny(name, "?#"); idx >= 0 {
			name = name[:idx]
		}
	}

	if name == "." || name == "/" || name == "" {
		name = "download"
	}

	if path.Ext(name) == "" {
		if ext, ok := helpers.GetExtensionFromMimeType(contentType); ok {
			name += ext
		}
	}
	return name
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
