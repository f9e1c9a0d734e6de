// Package history keeps the capped ledger of terminal download outcomes.
// Every append is persisted through the key/value store fire-and-forget: a
// failed write is logged, never surfaced, since the ledger must not be able
// to stall the download pipeline.
package history

import (
	"encoding/json"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/peterzhang0216/mediagrab/internal/database"
	"github.com/peterzhang0216/mediagrab/internal/models"
)

// DefaultCap is the maximum number of entries retained; the oldest entry is
// evicted first.
const DefaultCap = 100

const ledgerKey = "download_history"

// Persister is the slice of the database contract the ledger needs.
type Persister interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Ledger is an append-only, capped log of history entries.
type Ledger struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	cap     int
	store   Persister
}

// New creates a ledger backed by the given store, loading any previously
// persisted entries. A nil store yields an in-memory ledger.
func New(store Persister) *Ledger {
	l := &Ledger{cap: DefaultCap, store: store}
	l.load()
	return l
}

func (l *Ledger) load() {
	if l.store == nil {
		return
	}
	raw, err := l.store.Get([]byte(ledgerKey))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warn("Failed to load download history")
		}
		return
	}
	if err := json.Unmarshal(raw, &l.entries); err != nil {
		log.WithError(err).Warn("Failed to parse persisted download history, starting fresh")
		l.entries = nil
		return
	}
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
}

// Append adds an entry, evicting the oldest when the cap is exceeded, and
// persists the ledger.
func (l *Ledger) Append(e models.HistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	l.persist()
}

// Entries returns a newest-first copy of the ledger.
func (l *Ledger) Entries() []models.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.HistoryEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len returns the current number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the ledger and removes the persisted copy.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	if l.store == nil {
		return
	}
	if err := l.store.Delete([]byte(ledgerKey)); err != nil {
		log.WithError(err).Warn("Failed to clear persisted download history")
	}
}

// persist writes the ledger under the mutex. Errors are logged only.
func (l *Ledger) persist() {
	if l.store == nil {
		return
	}
	raw, err := json.Marshal(l.entries)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal download history")
		return
	}
	if err := l.store.Put([]byte(ledgerKey), raw); err != nil {
		log.WithError(err).Warn("Failed to persist download history")
	}
}
