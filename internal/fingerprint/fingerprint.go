// Package fingerprint normalizes URLs into comparable signatures and
// computes cheap structural similarity between them. Content hashing is not
// an option at detection time (it would mean fetching every candidate), so
// URL structure is used as a proxy that tolerates CDN resizing conventions.
package fingerprint

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	// Long hex runs are almost always content hashes or cache busters.
	hexHashPattern = regexp.MustCompile(`[0-9a-fA-F]{16,}`)

	// Quality/size suffixes appended by CDNs before the extension.
	qualitySuffixPattern = regexp.MustCompile(`[-_](?:small|thumb|thumbnail|tiny|mini|preview|low|medium|large)([._/]|$)`)

	digitPattern = regexp.MustCompile(`[0-9]+`)
)

// Fingerprint returns a normalized signature for a URL: hostname plus a
// path with quality suffixes stripped, long hex hashes removed, and all
// digit runs collapsed to a placeholder. Two resources with equal
// signatures are candidates for merging. Malformed URLs fail closed and
// return the raw input unchanged.
func Fingerprint(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname() + normalizePath(u.Path)
}

// Key returns a fixed-size index key for a URL: the blake3 digest of its
// signature, hex encoded.
func Key(rawURL string) string {
	sum := blake3.Sum256([]byte(Fingerprint(rawURL)))
	return hex.EncodeToString(sum[:])
}

func normalizePath(path string) string {
	path = hexHashPattern.ReplaceAllString(path, "")
	path = qualitySuffixPattern.ReplaceAllString(path, "$1")
	path = digitPattern.ReplaceAllString(path, "#")
	return path
}

// Similarity scores two URLs in [0,1]. Identical URLs score 1. URLs on
// different hosts score exactly 0.1: cross-origin resources are presumed
// unrelated, a cheap rejection that avoids quadratic string work across
// domains. Same-host URLs score a weighted combination of path-segment
// overlap (70%) and query-parameter key overlap (30%). Malformed input
// scores 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil || ua.Hostname() == "" || ub.Hostname() == "" {
		return 0
	}

	if ua.Hostname() != ub.Hostname() {
		return 0.1
	}

	pathSim := jaccard(pathSegments(ua.Path), pathSegments(ub.Path))
	querySim := jaccard(queryKeys(ua), queryKeys(ub))
	return 0.7*pathSim + 0.3*querySim
}

// pathSegments splits a normalized path into its non-empty segments.
func pathSegments(path string) map[string]struct{} {
	segments := make(map[string]struct{})
	for _, seg := range strings.Split(normalizePath(path), "/") {
		if seg != "" {
			segments[seg] = struct{}{}
		}
	}
	return segments
}

func queryKeys(u *url.URL) map[string]struct{} {
	keys := make(map[string]struct{})
	for k := range u.Query() {
		keys[k] = struct{}{}
	}
	return keys
}

// jaccard computes |A∩B| / |A∪B|. Two empty sets are defined as similarity 1.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}
