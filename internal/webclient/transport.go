// Package webclient builds the HTTP clients used for page fetches and
// downloads. Its transport can observe responses in flight, reporting
// media payloads as network-sighted candidates, and optionally keep a
// request log on disk.
package webclient

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/peterzhang0216/mediagrab/internal/models"
)

// Observer receives a candidate for every media response seen on the wire.
type Observer func(models.Candidate)

// ObserverTransport wraps an http.RoundTripper, watching response headers
// for media content types and optionally logging traffic to a file.
type ObserverTransport struct {
	Transport http.RoundTripper
	observer  Observer

	mu      sync.Mutex
	logFile *os.File
	writer  *bufio.Writer
}

// NewTransport creates an ObserverTransport. Both observer and logFilePath
// are optional; an empty logFilePath disables file logging.
func NewTransport(transport http.RoundTripper, observer Observer, logFilePath string) (*ObserverTransport, error) {
	if transport == nil {
		transport = http.DefaultTransport
	}
	t := &ObserverTransport{Transport: transport, observer: observer}

	if logFilePath != "" {
		// #nosec G304
		f, err := os.OpenFile(filepath.Clean(logFilePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open HTTP log file %s: %w", logFilePath, err)
		}
		t.logFile = f
		t.writer = bufio.NewWriter(f)
	}
	return t, nil
}

// RoundTrip executes a single HTTP transaction, inspecting the response
// headers on the way back. Bodies are never buffered here; only headers
// inform the observation.
func (t *ObserverTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.writeLog(fmt.Sprintf("%s %s %s -> error after %v: %v\n",
			start.Format(time.RFC3339), req.Method, req.URL, duration, err))
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	t.writeLog(fmt.Sprintf("%s %s %s -> %d %s (%d bytes, %v)\n",
		start.Format(time.RFC3339), req.Method, req.URL, resp.StatusCode, contentType, resp.ContentLength, duration))

	if t.observer != nil && resp.StatusCode == http.StatusOK {
		if typ, ok := TypeFromContentType(contentType); ok {
			size := resp.ContentLength
			if size < 0 {
				size = 0
			}
			t.observer(models.Candidate{
				URL:         req.URL.String(),
				Type:        typ,
				ContentType: contentType,
				Size:        size,
				Source:      models.SourceNetwork,
				Timestamp:   time.Now(),
			})
		}
	}
	return resp, nil
}

func (t *ObserverTransport) writeLog(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer == nil {
		return
	}
	if _, err := t.writer.WriteString(entry); err != nil {
		log.WithError(err).Error("Failed to write HTTP log entry")
	}
	if err := t.writer.Flush(); err != nil {
		log.WithError(err).Error("Failed to flush HTTP log writer")
	}
}

// Close flushes and closes the log file, if one is open.
func (t *ObserverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.logFile == nil {
		return nil
	}
	if err := t.writer.Flush(); err != nil {
		log.WithError(err).Warn("Failed to flush HTTP log on close")
	}
	err := t.logFile.Close()
	t.logFile = nil
	t.writer = nil
	return err
}

// TypeFromContentType maps a MIME type onto a resource type, reporting
// whether it identifies media at all. Streaming manifests count as video.
func TypeFromContentType(contentType string) (models.ResourceType, bool) {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.TypeImage, true
	case strings.HasPrefix(mime, "video/"):
		return models.TypeVideo, true
	case strings.HasPrefix(mime, "audio/"):
		return models.TypeAudio, true
	case mime == "application/vnd.apple.mpegurl", mime == "application/x-mpegurl", mime == "application/dash+xml":
		return models.TypeVideo, true
	}
	return models.TypeOther, false
}

// New builds an HTTP client over the given transport with a sane timeout.
func New(timeoutSec int, transport http.RoundTripper) *http.Client {
	if timeoutSec <= 0 {
		timeoutSec = 900
	}
	client := &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
	if transport != nil {
		client.Transport = transport
	}
	return client
}
