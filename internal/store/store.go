// Package store keeps the per-context collections of detected resources and
// owns all merge and dedup decisions. A context is the scope (one browser
// tab, one sniffed page) within which resource URLs are unique.
package store

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/peterzhang0216/mediagrab/internal/fingerprint"
	"github.com/peterzhang0216/mediagrab/internal/models"
	"github.com/peterzhang0216/mediagrab/internal/scoring"
)

// Similarity thresholds used by callers of FindDuplicate. Detectors
// reporting predicted resources use the coarser threshold.
const (
	DuplicateThreshold          = 0.8
	PredictedDuplicateThreshold = 0.7
)

// Store holds resource records grouped by context id. All mutation goes
// through its methods; the mutex makes every operation atomic with respect
// to the others.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*contextState
}

type contextState struct {
	byURL map[string]*models.Resource
	// byKey indexes URLs by fingerprint digest so exact-signature lookups
	// stay O(1) amortized instead of scanning the whole context.
	byKey map[string][]string
	order []string
}

// New creates an empty store.
func New() *Store {
	return &Store{contexts: make(map[string]*contextState)}
}

func (s *Store) context(id string) *contextState {
	ctx, ok := s.contexts[id]
	if !ok {
		ctx = &contextState{
			byURL: make(map[string]*models.Resource),
			byKey: make(map[string][]string),
		}
		s.contexts[id] = ctx
	}
	return ctx
}

// AddResource merges a candidate sighting into the context. An exact URL
// match merges into the existing record and reports isNew=false; otherwise
// a new record is created, scored, and appended. A candidate without a URL
// is a no-op: the store is a defensive boundary and never panics on
// malformed detector input.
func (s *Store) AddResource(contextID string, c models.Candidate) (*models.Resource, bool) {
	if c.URL == "" {
		log.Debug("Ignoring candidate without URL")
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.context(contextID)

	if existing, ok := ctx.byURL[c.URL]; ok {
		merge(existing, c)
		return existing, false
	}

	r := newResource(c)
	ctx.byURL[r.URL] = r
	key := fingerprint.Key(r.URL)
	ctx.byKey[key] = append(ctx.byKey[key], r.URL)
	ctx.order = append(ctx.order, r.URL)

	log.WithField("url", r.URL).Debugf("Added resource (type=%s score=%d) to context %s", r.Type, r.Score, contextID)
	return r, true
}

func newResource(c models.Candidate) *models.Resource {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	r := &models.Resource{
		URL:         c.URL,
		Type:        c.Type,
		ContentType: c.ContentType,
		Size:        c.Size,
		Width:       c.Width,
		Height:      c.Height,
		Quality:     c.Quality,
		Timestamp:   ts,
		Fingerprint: fingerprint.Fingerprint(c.URL),
		IsPredicted: c.IsPredicted,
		Confidence:  c.Confidence,
	}
	if r.Type == "" {
		r.Type = models.TypeOther
	}
	r.AddSource(c.Source)
	if r.Quality == "" || r.Quality == models.QualityUnknown {
		r.Quality = scoring.EstimateQuality(r)
	}
	r.Score = scoring.Score(r).Score
	return r
}

// merge folds a new sighting into an existing record. Dimensions widen only
// when the new pixel area is strictly larger; quality is overwritten only by
// a measured (non-unknown) value; size and contentType backfill only when
// absent. The score is recomputed whenever quality-relevant data changed.
func merge(r *models.Resource, c models.Candidate) {
	rescore := false

	if c.Width > 0 && c.Height > 0 && c.Width*c.Height > r.PixelArea() {
		r.Width = c.Width
		r.Height = c.Height
		rescore = true
	}
	if c.Quality != "" && c.Quality != models.QualityUnknown {
		r.Quality = c.Quality
	}
	if r.Size == 0 && c.Size > 0 {
		r.Size = c.Size
		rescore = true
	}
	if r.ContentType == "" && c.ContentType != "" {
		r.ContentType = c.ContentType
	}
	if c.Source != "" && !r.HasSource(c.Source) {
		r.AddSource(c.Source)
		rescore = true
	}

	// A concrete sighting of a previously predicted resource confirms it.
	if r.IsPredicted && !c.IsPredicted {
		r.IsPredicted = false
		r.Confidence = 0
	}

	if rescore {
		if r.Quality == models.QualityUnknown {
			r.Quality = scoring.EstimateQuality(r)
		}
		r.Score = scoring.Score(r).Score
	}
}

// Resources returns the context's records in insertion order.
func (s *Store) Resources(contextID string) []*models.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[contextID]
	if !ok {
		return nil
	}
	out := make([]*models.Resource, 0, len(ctx.order))
	for _, url := range ctx.order {
		out = append(out, ctx.byURL[url])
	}
	return out
}

// Get returns the record for an exact URL, or nil.
func (s *Store) Get(contextID, url string) *models.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ctx, ok := s.contexts[contextID]; ok {
		return ctx.byURL[url]
	}
	return nil
}

// Clear drops all records for a context. Called when the owning context
// (tab, page) navigates away or closes.
func (s *Store) Clear(contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, contextID)
}

// FindSimilar returns records sharing the URL's normalized signature, the
// candidates-for-merge set from the fingerprint index.
func (s *Store) FindSimilar(contextID, url string) []*models.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[contextID]
	if !ok {
		return nil
	}
	var out []*models.Resource
	for _, u := range ctx.byKey[fingerprint.Key(url)] {
		if u != url {
			out = append(out, ctx.byURL[u])
		}
	}
	return out
}

// FindDuplicate returns the most similar existing record at or above the
// threshold, or nil. This is the explicit fuzzy path: it is not invoked on
// every add, so the linear fallback scan is acceptable here.
func (s *Store) FindDuplicate(contextID string, c models.Candidate, threshold float64) *models.Resource {
	if c.URL == "" {
		return nil
	}
	if threshold <= 0 {
		threshold = DuplicateThreshold
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[contextID]
	if !ok {
		return nil
	}

	var best *models.Resource
	bestScore := 0.0

	// Same-signature bucket first; it is where near-duplicates live.
	for _, u := range ctx.byKey[fingerprint.Key(c.URL)] {
		if sim := fingerprint.Similarity(u, c.URL); sim >= threshold && sim > bestScore {
			best = ctx.byURL[u]
			bestScore = sim
		}
	}
	if best != nil {
		return best
	}

	for _, u := range ctx.order {
		if sim := fingerprint.Similarity(u, c.URL); sim >= threshold && sim > bestScore {
			best = ctx.byURL[u]
			bestScore = sim
		}
	}
	return best
}

// Count returns the number of records in the context.
func (s *Store) Count(contextID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ctx, ok := s.contexts[contextID]; ok {
		return len(ctx.order)
	}
	return 0
}
