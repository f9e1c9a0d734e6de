package helpers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9._\s-]`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugUnderscores  = regexp.MustCompile(`_+`)
)

// ConvertToSlug converts an arbitrary string into a filesystem-friendly slug:
// lowercase, spaces become underscores, colons become dashes, everything else
// outside [a-z0-9._-] is dropped.
func ConvertToSlug(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "-")
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "_")
	s = slugUnderscores.ReplaceAllString(s, "_")
	s = strings.ReplaceAll(s, "_-", "-")
	s = strings.ReplaceAll(s, "-_", "-")
	s = strings.Trim(s, "-_")
	return s
}

// BytesToSize renders a byte count in human-readable form (1.50MB).
func BytesToSize(b uint64) string {
	if b == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	value := float64(b)
	idx := 0
	for value >= 1024 && idx < len(units)-1 {
		value /= 1024
		idx++
	}
	return fmt.Sprintf("%.2f%s", value, units[idx])
}

// SanitizePath cleans a path and strips any leading separators or parent
// references so the result is always relative and cannot escape its root.
func SanitizePath(p string) string {
	cleaned := filepath.Clean(p)
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	for strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		cleaned = strings.TrimPrefix(cleaned, ".."+string(filepath.Separator))
	}
	cleaned = strings.TrimPrefix(cleaned, "..")
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	return cleaned
}

// CheckAndMakeDir ensures a directory exists, creating it (and parents) if
// needed. Returns false if creation failed.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// StringSliceContains reports whether the slice contains the item
// (case-insensitive).
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// mimeExtensions maps detected MIME types to canonical file extensions.
var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/avif":      ".avif",
	"image/svg+xml":   ".svg",
	"image/bmp":       ".bmp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"audio/wav":       ".wav",
	"audio/flac":      ".flac",
	"audio/aac":       ".aac",

	"application/vnd.apple.mpegurl": ".m3u8",
	"application/dash+xml":          ".mpd",
}

// GetExtensionFromMimeType returns the canonical extension for a MIME type.
// Parameters after a semicolon (charset etc.) are ignored.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	ext, ok := mimeExtensions[strings.TrimSpace(strings.ToLower(mimeType))]
	return ext, ok
}

// CounterWriter wraps an io.Writer and counts bytes written through it.
// OnWrite, when set, is invoked after every write with the running total;
// the downloader uses it to surface progress events.
type CounterWriter struct {
	Writer  io.Writer
	Total   uint64
	OnWrite func(total uint64)
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	if cw.OnWrite != nil && n > 0 {
		cw.OnWrite(cw.Total)
	}
	return n, err
}
