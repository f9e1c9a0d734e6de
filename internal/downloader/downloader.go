// Package downloader realizes the external download-initiation capability
// over net/http. Start validates the request, stages a temp file, and
// returns an opaque handle immediately; a goroutine streams the body and
// reports progress and terminal state back through the Events sink. Pause
// aborts the transfer but keeps the temp file and byte offset; Resume
// continues with a Range request from that offset.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/peterzhang0216/mediagrab/internal/helpers"
	"github.com/peterzhang0216/mediagrab/internal/queue"
)

// Custom downloader errors.
var (
	ErrHttpStatus     = errors.New("unexpected HTTP status code")
	ErrFileSystem     = errors.New("filesystem error")
	ErrHttpRequest    = errors.New("HTTP request creation/execution error")
	ErrUnknownHandle  = errors.New("unknown transfer handle")
	ErrInvalidRequest = errors.New("invalid download request")
)

// Events is where transfer lifecycle callbacks are delivered; the queue
// scheduler implements it.
type Events interface {
	HandleProgress(handle string, bytesReceived, totalBytes int64)
	HandleTerminal(handle string, state queue.TerminalState, errMsg string)
}

// progressInterval throttles progress callbacks per transfer.
const progressInterval = 100 * time.Millisecond

// Downloader manages in-flight HTTP transfers below a base directory.
type Downloader struct {
	client  *http.Client
	baseDir string

	mu        sync.Mutex
	events    Events
	transfers map[string]*transfer
}

type transfer struct {
	handle    string
	url       string
	destPath  string
	tempPath  string
	cancel    context.CancelFunc
	received  int64
	total     int64
	paused    bool
	cancelled bool
}

// New creates a Downloader writing below baseDir. A nil client gets a
// sensible default.
func New(client *http.Client, baseDir string) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Downloader{
		client:    client,
		baseDir:   baseDir,
		transfers: make(map[string]*transfer),
	}
}

// SetEvents wires the lifecycle sink. Must be called before Start.
func (d *Downloader) SetEvents(events Events) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = events
}

// Start validates the request, stages the destination, and launches the
// transfer goroutine. The returned handle identifies the transfer in all
// later callbacks. Validation or filesystem problems are initiation
// failures and return an error instead of a handle.
func (d *Downloader) Start(req queue.StartRequest) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: unsupported URL %q", ErrInvalidRequest, req.URL)
	}
	if req.Filename == "" {
		return "", fmt.Errorf("%w: missing filename", ErrInvalidRequest)
	}

	destPath := filepath.Join(d.baseDir, helpers.SanitizePath(req.Filename))
	if !helpers.CheckAndMakeDir(filepath.Dir(destPath)) {
		return "", fmt.Errorf("%w: failed to create directory for %s", ErrFileSystem, destPath)
	}

	t := &transfer{
		handle:   uuid.NewString(),
		url:      req.URL,
		destPath: destPath,
		tempPath: destPath + ".part",
	}

	d.mu.Lock()
	d.transfers[t.handle] = t
	d.mu.Unlock()

	log.Debugf("Starting transfer %s: %s -> %s", t.handle, t.url, t.destPath)
	d.launch(t)
	return t.handle, nil
}

// launch spawns the transfer goroutine with a fresh cancellation context.
func (d *Downloader) launch(t *transfer) {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	t.cancel = cancel
	t.paused = false
	d.mu.Unlock()
	go d.run(ctx, t)
}

// run performs (or resumes) the HTTP transfer and reports the outcome.
func (d *Downloader) run(ctx context.Context, t *transfer) {
	err := d.fetch(ctx, t)

	d.mu.Lock()
	paused := t.paused
	cancelled := t.cancelled
	events := d.events
	d.mu.Unlock()

	if err != nil && paused && !cancelled {
		// Pause aborted the request on purpose; the temp file and byte
		// offset stay for a later resume. No terminal event.
		log.Debugf("Transfer %s paused at %d bytes", t.handle, t.received)
		return
	}

	if err != nil {
		if !d.takeTransfer(t.handle) {
			// Someone else already finalized this transfer.
			return
		}
		_ = os.Remove(t.tempPath)
		msg := err.Error()
		if cancelled {
			msg = "cancelled by user"
		}
		log.WithError(err).Debugf("Transfer %s ended: %s", t.handle, msg)
		if events != nil {
			events.HandleTerminal(t.handle, queue.TerminalInterrupted, msg)
		}
		return
	}

	if !d.takeTransfer(t.handle) {
		return
	}

	if err := d.finalize(t); err != nil {
		if events != nil {
			events.HandleTerminal(t.handle, queue.TerminalInterrupted, err.Error())
		}
		return
	}
	log.Infof("Downloaded %s (%s)", t.destPath, helpers.BytesToSize(uint64(t.received)))
	if events != nil {
		events.HandleTerminal(t.handle, queue.TerminalComplete, "")
	}
}

// fetch streams the response body into the temp file, resuming from the
// current offset when one exists.
func (d *Downloader) fetch(ctx context.Context, t *transfer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request for %s: %v", ErrHttpRequest, t.url, err)
	}

	d.mu.Lock()
	offset := t.received
	d.mu.Unlock()
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, t.url, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		// Full body; any previously received bytes are discarded.
		flags |= os.O_TRUNC
		d.mu.Lock()
		t.received = 0
		t.total = resp.ContentLength
		d.mu.Unlock()
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		d.mu.Lock()
		if resp.ContentLength > 0 {
			t.total = offset + resp.ContentLength
		}
		d.mu.Unlock()
	default:
		return fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, t.url)
	}

	file, err := os.OpenFile(t.tempPath, flags, 0640)
	if err != nil {
		return fmt.Errorf("%w: opening temporary file %s: %v", ErrFileSystem, t.tempPath, err)
	}

	// Count from the post-status offset: a 200 to a Range request means the
	// server restarted the body and the old prefix was discarded.
	d.mu.Lock()
	resumeFrom := t.received
	d.mu.Unlock()

	var lastReport time.Time
	counter := &helpers.CounterWriter{
		Writer: file,
		Total:  uint64(resumeFrom),
		OnWrite: func(total uint64) {
			d.mu.Lock()
			t.received = int64(total)
			totalBytes := t.total
			events := d.events
			d.mu.Unlock()

			if events != nil && time.Since(lastReport) >= progressInterval {
				lastReport = time.Now()
				events.HandleProgress(t.handle, int64(total), totalBytes)
			}
		},
	}

	_, copyErr := io.Copy(counter, resp.Body)
	if closeErr := file.Close(); closeErr != nil && copyErr == nil {
		copyErr = fmt.Errorf("%w: closing temporary file %s: %v", ErrFileSystem, t.tempPath, closeErr)
	}
	if copyErr != nil {
		return copyErr
	}

	// Final byte count, so short transfers always report at least once.
	d.mu.Lock()
	received, totalBytes, events := t.received, t.total, d.events
	d.mu.Unlock()
	if events != nil {
		events.HandleProgress(t.handle, received, totalBytes)
	}
	return nil
}

// finalize moves the temp file into place, correcting a missing extension
// from the sniffed content type.
func (d *Downloader) finalize(t *transfer) error {
	finalPath := t.destPath
	if filepath.Ext(finalPath) == "" {
		if ext := sniffExtension(t.tempPath); ext != "" {
			finalPath += ext
		}
	}
	if err := os.Rename(t.tempPath, finalPath); err != nil {
		return fmt.Errorf("%w: renaming %s to %s: %v", ErrFileSystem, t.tempPath, finalPath, err)
	}
	t.destPath = finalPath
	return nil
}

// sniffExtension detects the MIME type of a file's first bytes and maps it
// to an extension, returning "" when unknown.
func sniffExtension(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return ""
	}
	mimeType := http.DetectContentType(buffer[:n])
	if ext, ok := helpers.GetExtensionFromMimeType(mimeType); ok {
		return ext
	}
	return ""
}

// Cancel aborts a transfer and discards its partial file. The terminal
// callback confirms the cancellation asynchronously.
func (d *Downloader) Cancel(handle string) error {
	d.mu.Lock()
	t, ok := d.transfers[handle]
	if !ok {
		d.mu.Unlock()
		return ErrUnknownHandle
	}
	t.cancelled = true
	cancel := t.cancel
	paused := t.paused
	events := d.events
	d.mu.Unlock()

	if paused {
		// No active goroutine to abort; confirm the cancellation directly
		// unless a lingering one finalizes first.
		if d.takeTransfer(handle) {
			_ = os.Remove(t.tempPath)
			if events != nil {
				events.HandleTerminal(handle, queue.TerminalInterrupted, "cancelled by user")
			}
		}
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Pause aborts the transfer goroutine but keeps the temp file and offset.
func (d *Downloader) Pause(handle string) error {
	d.mu.Lock()
	t, ok := d.transfers[handle]
	if !ok || t.paused {
		d.mu.Unlock()
		return ErrUnknownHandle
	}
	t.paused = true
	cancel := t.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Resume relaunches a paused transfer from its stored byte offset.
func (d *Downloader) Resume(handle string) error {
	d.mu.Lock()
	t, ok := d.transfers[handle]
	if !ok || !t.paused {
		d.mu.Unlock()
		return ErrUnknownHandle
	}
	received := t.received
	d.mu.Unlock()

	log.Debugf("Resuming transfer %s from %d bytes", handle, received)
	d.launch(t)
	return nil
}

// ActiveTransfers returns the number of tracked transfers, paused ones
// included.
func (d *Downloader) ActiveTransfers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transfers)
}

// DestinationOf reports the (possibly extension-corrected) final path for a
// handle, while the transfer is still tracked.
func (d *Downloader) DestinationOf(handle string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.transfers[handle]; ok {
		return t.destPath, true
	}
	return "", false
}

// takeTransfer removes the transfer and reports whether this caller owned
// the removal; exactly one caller gets to emit the terminal event.
func (d *Downloader) takeTransfer(handle string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.transfers[handle]; !ok {
		return false
	}
	delete(d.transfers, handle)
	return true
}
