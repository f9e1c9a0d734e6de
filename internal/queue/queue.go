// Package queue implements the download scheduler: a strict-FIFO queue of
// download requests dispatched to an external initiation capability under a
// concurrency bound and an optional dispatch throttle. Lifecycle events from
// the capability (progress, completion, interruption) flow back in through
// HandleProgress/HandleTerminal; terminal items are snapshotted into the
// history ledger and dropped from the live queue.
package queue

import (
	"context"
	"math"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/peterzhang0216/mediagrab/internal/history"
	"github.com/peterzhang0216/mediagrab/internal/models"
	"github.com/peterzhang0216/mediagrab/internal/paths"
)

// StartRequest is what the scheduler hands to the download capability.
type StartRequest struct {
	URL      string
	Filename string
	SaveAs   bool
}

// Initiator is the external download-initiation capability. Start returns
// an opaque handle immediately; progress and terminal state arrive later
// through the scheduler's Handle* methods.
type Initiator interface {
	Start(req StartRequest) (handle string, err error)
	Cancel(handle string) error
	Pause(handle string) error
	Resume(handle string) error
}

// TerminalState is what the capability reports when a transfer ends.
type TerminalState string

const (
	TerminalComplete    TerminalState = "complete"
	TerminalInterrupted TerminalState = "interrupted"
)

// EventType identifies an outbound notification.
type EventType string

const (
	EventStarted  EventType = "downloadStarted"
	EventProgress EventType = "downloadProgress"
	EventComplete EventType = "downloadComplete"
	EventFailed   EventType = "downloadFailed"
)

// Event carries a queue item snapshot to whoever is listening (CLI display,
// log shipper).
type Event struct {
	Type EventType
	Item models.QueueItem
}

// earlyTerminal is a terminal callback that arrived before its handle was
// registered.
type earlyTerminal struct {
	state  TerminalState
	errMsg string
}

// Notifier receives outbound events. It is called outside the scheduler
// lock and must not call back into the scheduler synchronously from the
// same goroutine graph that blocks on it.
type Notifier func(Event)

// Config carries the scheduler's tunables.
type Config struct {
	MaxConcurrent  int
	SpeedLimitKBps int
	PathOptions    paths.Options
	OnEvent        Notifier
}

// DispatchDelay computes the per-dispatch throttle gate:
// min(5000, 1024/speedKBps*1000) milliseconds, 0 when unlimited. This
// spaces out start times assuming a fixed average transfer size; it is not
// a bandwidth shaper.
func DispatchDelay(speedLimitKBps int) time.Duration {
	if speedLimitKBps <= 0 {
		return 0
	}
	ms := 1024.0 / float64(speedLimitKBps) * 1000.0
	if ms > 5000 {
		ms = 5000
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Scheduler owns the live queue. All state is guarded by one mutex; the
// drain loop is single-flight so concurrent triggers collapse into one
// pass.
type Scheduler struct {
	mu              sync.Mutex
	items           map[string]*models.QueueItem
	pending         []string
	byHandle        map[string]string
	cancelRequested map[string]bool
	activeCount     int
	draining        bool

	// A transfer can end before Start has even returned its handle to the
	// drain loop. Terminal callbacks for not-yet-registered handles are
	// parked here while a dispatch is in flight and replayed once the
	// handle is mapped.
	earlyTerminals map[string]earlyTerminal
	startsInFlight int

	maxConcurrent int
	pathOptions   paths.Options
	limiter       *rate.Limiter

	initiator Initiator
	ledger    *history.Ledger
	notify    Notifier
}

// New creates a scheduler. MaxConcurrent is clamped to at least 1.
func New(initiator Initiator, ledger *history.Ledger, cfg Config) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	var limiter *rate.Limiter
	if delay := DispatchDelay(cfg.SpeedLimitKBps); delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	return &Scheduler{
		items:           make(map[string]*models.QueueItem),
		byHandle:        make(map[string]string),
		cancelRequested: make(map[string]bool),
		earlyTerminals:  make(map[string]earlyTerminal),
		maxConcurrent:   maxConcurrent,
		pathOptions:     cfg.PathOptions,
		limiter:         limiter,
		initiator:       initiator,
		ledger:          ledger,
		notify:          cfg.OnEvent,
	}
}

// Enqueue adds a download request for a resource and triggers a drain
// pass. Requests are always accepted; duplicate URLs queue independently,
// matching the user's intent to re-download. A nil resource or one without
// a URL is a no-op returning an empty id.
func (s *Scheduler) Enqueue(resource *models.Resource, opts models.EnqueueOptions) string {
	if resource == nil || resource.URL == "" {
		log.Debug("Ignoring enqueue without resource URL")
		return ""
	}

	pathOpts := s.pathOptions
	if opts.SiteName != "" {
		pathOpts.SiteName = opts.SiteName
	}
	if opts.SaveAs != "" {
		pathOpts.SaveAs = opts.SaveAs
	}
	if opts.CategorizeByWebsite {
		pathOpts.ByWebsite = true
	}
	if opts.CategorizeByType {
		pathOpts.ByType = true
	}

	item := &models.QueueItem{
		ID:            uuid.NewString(),
		Resource:      resource,
		Status:        models.StatusQueued,
		AddedTime:     time.Now(),
		SuggestedPath: paths.Suggested(resource, pathOpts),
	}

	s.mu.Lock()
	s.items[item.ID] = item
	s.pending = append(s.pending, item.ID)
	s.mu.Unlock()

	log.WithField("url", resource.URL).Debugf("Enqueued download %s -> %s", item.ID, item.SuggestedPath)
	s.maybeDrain()
	return item.ID
}

// maybeDrain starts a drain pass unless one is already in flight.
func (s *Scheduler) maybeDrain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	go s.drain()
}

// drain dispatches queued items oldest-first while concurrency slots are
// free. Initiation failure is terminal immediately: retries are a
// user-driven resume action, never automatic.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.activeCount >= s.maxConcurrent {
			s.draining = false
			s.mu.Unlock()
			return
		}
		item := s.nextQueuedLocked()
		if item == nil {
			s.draining = false
			s.mu.Unlock()
			return
		}

		item.Status = models.StatusStarting
		item.StartTime = time.Now()
		s.activeCount++
		s.startsInFlight++
		req := StartRequest{
			URL:      item.Resource.URL,
			Filename: item.SuggestedPath,
		}
		s.mu.Unlock()

		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				log.WithError(err).Warn("Dispatch limiter interrupted")
			}
		}

		handle, err := s.initiator.Start(req)

		s.mu.Lock()
		if err != nil {
			s.startDoneLocked()
			item.Status = models.StatusError
			item.Error = err.Error()
			item.EndTime = time.Now()
			s.activeCount--
			snapshot := s.finalizeLocked(item)
			s.mu.Unlock()
			s.emit(EventFailed, snapshot)
			continue
		}

		item.ExternalHandle = handle
		item.Status = models.StatusInProgress
		s.byHandle[handle] = item.ID
		early, ended := s.earlyTerminals[handle]
		delete(s.earlyTerminals, handle)
		s.startDoneLocked()
		cancelPending := s.cancelRequested[item.ID] && !ended
		snapshot := *item
		s.mu.Unlock()

		// A cancel that raced the start is forwarded now that the handle
		// exists.
		if cancelPending {
			if cerr := s.initiator.Cancel(handle); cerr != nil {
				log.WithError(cerr).Warnf("Failed to forward cancellation for %s", item.ID)
			}
		}

		s.emit(EventStarted, snapshot)

		// The transfer ended while Start was still returning; replay the
		// parked terminal now that the handle is mapped.
		if ended {
			s.HandleTerminal(handle, early.state, early.errMsg)
		}
	}
}

// startDoneLocked marks one dispatch as no longer in flight. Once none
// remain, any leftover parked terminals belong to already-finalized handles
// and are dropped.
func (s *Scheduler) startDoneLocked() {
	s.startsInFlight--
	if s.startsInFlight == 0 && len(s.earlyTerminals) > 0 {
		s.earlyTerminals = make(map[string]earlyTerminal)
	}
}

// nextQueuedLocked pops the oldest still-queued id, skipping ids whose
// items were removed while waiting.
func (s *Scheduler) nextQueuedLocked() *models.QueueItem {
	for len(s.pending) > 0 {
		id := s.pending[0]
		s.pending = s.pending[1:]
		if item, ok := s.items[id]; ok && item.Status == models.StatusQueued {
			return item
		}
	}
	return nil
}

// HandleProgress is the capability's progress callback. Progress events
// update byte counts only; they never change status.
func (s *Scheduler) HandleProgress(handle string, bytesReceived, totalBytes int64) {
	s.mu.Lock()
	id, ok := s.byHandle[handle]
	if !ok {
		s.mu.Unlock()
		return
	}
	item := s.items[id]
	item.BytesReceived = bytesReceived
	if totalBytes > 0 {
		item.TotalBytes = totalBytes
		item.Progress = int(math.Round(100 * float64(bytesReceived) / float64(totalBytes)))
	}
	snapshot := *item
	s.mu.Unlock()

	s.emit(EventProgress, snapshot)
}

// HandleTerminal is the capability's end-of-transfer callback. It writes
// the history entry, frees the concurrency slot, drops the live item, and
// re-triggers the drain loop; this is the sole mechanism that advances the
// queue past its concurrency ceiling.
func (s *Scheduler) HandleTerminal(handle string, state TerminalState, errMsg string) {
	s.mu.Lock()
	id, ok := s.byHandle[handle]
	if !ok {
		// The handle may belong to a dispatch whose Start has not returned
		// yet; park the callback so registration can replay it. With no
		// dispatch in flight this is a stale duplicate and is dropped.
		if s.startsInFlight > 0 {
			if _, dup := s.earlyTerminals[handle]; !dup {
				s.earlyTerminals[handle] = earlyTerminal{state: state, errMsg: errMsg}
			}
		}
		s.mu.Unlock()
		return
	}
	item := s.items[id]
	delete(s.byHandle, handle)

	if item.Status.IsActive() {
		s.activeCount--
	}

	switch {
	case state == TerminalComplete:
		item.Status = models.StatusComplete
		item.Progress = 100
	case s.cancelRequested[id]:
		item.Status = models.StatusCancelled
	default:
		item.Status = models.StatusInterrupted
	}
	item.Error = errMsg
	item.EndTime = time.Now()

	snapshot := s.finalizeLocked(item)
	s.mu.Unlock()

	if snapshot.Status == models.StatusComplete {
		s.emit(EventComplete, snapshot)
	} else {
		s.emit(EventFailed, snapshot)
	}
	s.maybeDrain()
}

// finalizeLocked appends the history entry and removes the live item.
// Caller holds the lock; the returned snapshot is safe to use after
// unlocking.
func (s *Scheduler) finalizeLocked(item *models.QueueItem) models.QueueItem {
	snapshot := *item
	delete(s.items, item.ID)
	delete(s.cancelRequested, item.ID)

	if s.ledger != nil {
		entry := models.HistoryEntry{
			URL:       snapshot.Resource.URL,
			Filename:  path.Base(snapshot.SuggestedPath),
			Outcome:   snapshot.Status,
			Error:     snapshot.Error,
			AddedTime: snapshot.AddedTime,
			EndTime:   snapshot.EndTime,
		}
		entry.Type = snapshot.Resource.Type
		entry.Size = snapshot.Resource.Size
		s.ledger.Append(entry)
	}
	return snapshot
}

// Cancel cancels a queue item. A queued item is removed immediately with no
// side effects; an active or paused one has cancellation requested from the
// capability and stays live until the confirmation callback arrives.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	if item.Status == models.StatusQueued {
		delete(s.items, id)
		s.mu.Unlock()
		return true
	}

	s.cancelRequested[id] = true
	handle := item.ExternalHandle
	s.mu.Unlock()

	if handle != "" {
		if err := s.initiator.Cancel(handle); err != nil {
			log.WithError(err).Warnf("Failed to request cancellation for %s", id)
			return false
		}
	}
	return true
}

// Pause suspends an in-progress item, freeing its concurrency slot.
func (s *Scheduler) Pause(id string) bool {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.Status != models.StatusInProgress || item.ExternalHandle == "" {
		s.mu.Unlock()
		return false
	}
	handle := item.ExternalHandle
	s.mu.Unlock()

	if err := s.initiator.Pause(handle); err != nil {
		log.WithError(err).Warnf("Failed to pause %s", id)
		return false
	}

	s.mu.Lock()
	if item.Status == models.StatusInProgress {
		item.Status = models.StatusPaused
		s.activeCount--
	}
	s.mu.Unlock()

	s.maybeDrain()
	return true
}

// Resume returns a paused item to in_progress with its previously known
// byte counts as the starting point. It requires a free concurrency slot so
// the active bound keeps holding.
func (s *Scheduler) Resume(id string) bool {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.Status != models.StatusPaused || item.ExternalHandle == "" {
		s.mu.Unlock()
		return false
	}
	if s.activeCount >= s.maxConcurrent {
		s.mu.Unlock()
		return false
	}
	handle := item.ExternalHandle
	item.Status = models.StatusInProgress
	s.activeCount++
	s.mu.Unlock()

	if err := s.initiator.Resume(handle); err != nil {
		log.WithError(err).Warnf("Failed to resume %s", id)
		s.mu.Lock()
		if item.Status == models.StatusInProgress {
			item.Status = models.StatusPaused
			s.activeCount--
		}
		s.mu.Unlock()
		return false
	}
	return true
}

// Item returns a snapshot of a live queue item.
func (s *Scheduler) Item(id string) (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		return *item, true
	}
	return models.QueueItem{}, false
}

// Items returns snapshots of all live items: queued ones first in FIFO
// order, then the rest ordered by admission time so repeated calls render
// identically.
func (s *Scheduler) Items() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueItem, 0, len(s.items))
	for _, id := range s.pending {
		if item, ok := s.items[id]; ok && item.Status == models.StatusQueued {
			out = append(out, *item)
		}
	}
	live := make([]models.QueueItem, 0, len(s.items))
	for _, item := range s.items {
		if item.Status != models.StatusQueued {
			live = append(live, *item)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].AddedTime.Equal(live[j].AddedTime) {
			return live[i].AddedTime.Before(live[j].AddedTime)
		}
		return live[i].ID < live[j].ID
	})
	return append(out, live...)
}

// ActiveCount returns the number of items holding a concurrency slot.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount
}

// Len returns the number of live items.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Wait blocks until the live queue is empty or the context ends.
func (s *Scheduler) Wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) emit(typ EventType, item models.QueueItem) {
	if s.notify != nil {
		s.notify(Event{Type: typ, Item: item})
	}
}
