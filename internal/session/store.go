// Package session holds the in-memory state of one catalog browsing session:
// the raw collection, its category index, the filter criteria, the derived
// view and the detail selection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/dexview/internal/catalog"
	"github.com/kalambet/dexview/internal/view"
)

// FailureMessage is the user-facing text shown while the session is Failed.
const FailureMessage = "failed to fetch catalog data"

var (
	// ErrUnknownCategory is returned when a category filter names a category
	// the current collection does not contain.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNotStarted is returned by Wait before the first Start.
	ErrNotStarted = errors.New("session not started")
)

// Acquirer produces a complete catalog or fails as a whole.
type Acquirer interface {
	Acquire(ctx context.Context) ([]catalog.Item, error)
}

// Snapshot is a consistent, read-only copy of the store.
type Snapshot struct {
	SessionID  string           `json:"session_id"`
	Status     catalog.Status   `json:"status"`
	Error      string           `json:"error,omitempty"`
	Cause      string           `json:"cause,omitempty"`
	Total      int              `json:"total"`
	Items      []catalog.Item   `json:"items"`
	Categories []string         `json:"categories"`
	Criteria   catalog.Criteria `json:"criteria"`
	Selected   *catalog.Item    `json:"selected,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
}

// Store is the single owner of session state. Acquisition results enter
// only through the completion of Start; filter and selection changes enter
// only through the setters. The derived view is recomputed inside the same
// critical section as every change to its inputs.
type Store struct {
	acquirer Acquirer
	logger   *slog.Logger

	mu         sync.RWMutex
	generation uint64
	sessionID  string
	status     catalog.Status
	err        error
	raw        []catalog.Item
	categories []string
	criteria   catalog.Criteria
	visible    []catalog.Item
	selected   *catalog.Item
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an idle store in the Loading state. Call Start to acquire.
func New(acquirer Acquirer, opts ...Option) *Store {
	s := &Store{
		acquirer:   acquirer,
		logger:     slog.Default(),
		status:     catalog.StatusLoading,
		categories: []string{},
		criteria:   catalog.Criteria{Category: catalog.AllCategories},
		visible:    []catalog.Item{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a new session and returns its ID. All state is reset to
// Loading and the acquisition runs in the background under ctx. Any
// acquisition still running for an earlier session is cancelled and its
// result, should it still arrive, is discarded.
func (s *Store) Start(ctx context.Context) string {
	acqCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.sessionID = uuid.NewString()
	s.status = catalog.StatusLoading
	s.err = nil
	s.raw = nil
	s.categories = []string{}
	s.criteria = catalog.Criteria{Category: catalog.AllCategories}
	s.selected = nil
	s.startedAt = time.Now().UTC()
	s.cancel = cancel
	s.done = done
	s.refreshLocked()
	id := s.sessionID
	s.mu.Unlock()

	s.logger.Info("catalog session started", "session", id, "generation", gen)

	go func() {
		defer close(done)
		defer cancel()
		items, err := s.acquirer.Acquire(acqCtx)
		s.complete(gen, items, err)
	}()
	return id
}

// complete applies an acquisition result if it belongs to the current
// generation. Loading -> Ready or Loading -> Failed happens here only.
func (s *Store) complete(gen uint64, items []catalog.Item, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.status != catalog.StatusLoading {
		s.logger.Debug("discarding stale acquisition result", "generation", gen, "current", s.generation)
		return
	}

	elapsed := time.Since(s.startedAt)
	if err != nil {
		s.status = catalog.StatusFailed
		s.err = err
		s.raw = nil
		s.categories = []string{}
		s.refreshLocked()
		s.logger.Error("catalog acquisition failed", "session", s.sessionID, "error", err, "elapsed", elapsed)
		return
	}

	s.raw = items
	s.categories = view.Categories(items)
	s.status = catalog.StatusReady
	// A category chosen while loading can only be "all"; keep it valid anyway.
	if !view.ValidCategory(s.categories, s.criteria.Category) {
		s.criteria.Category = catalog.AllCategories
	}
	s.refreshLocked()
	s.logger.Info("catalog ready", "session", s.sessionID, "items", len(items), "categories", len(s.categories), "elapsed", elapsed)
}

func (s *Store) refreshLocked() {
	s.visible = view.Visible(s.raw, s.criteria)
}

// Close cancels any in-flight acquisition.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the current session leaves Loading or ctx is done. A
// restart while waiting makes Wait follow the new session.
func (s *Store) Wait(ctx context.Context) (catalog.Status, error) {
	for {
		s.mu.RLock()
		status, err, done := s.status, s.err, s.done
		s.mu.RUnlock()

		if status != catalog.StatusLoading {
			return status, err
		}
		if done == nil {
			return status, ErrNotStarted
		}
		select {
		case <-done:
		case <-ctx.Done():
			return catalog.StatusLoading, ctx.Err()
		}
	}
}

// SetSearch replaces the search term.
func (s *Store) SetSearch(term string) Snapshot {
	snap, _ := s.UpdateCriteria(&term, nil)
	return snap
}

// SetCategory replaces the category filter. c must be "all" (or empty) or
// a member of the category index.
func (s *Store) SetCategory(c string) (Snapshot, error) {
	return s.UpdateCriteria(nil, &c)
}

// UpdateCriteria replaces the non-nil filter inputs and keeps the others as
// they are at the moment of the update. Nothing changes when the category
// is invalid.
func (s *Store) UpdateCriteria(search, category *string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.criteria
	if search != nil {
		c.Search = *search
	}
	if category != nil {
		c.Category = *category
	}
	c = c.Normalized()
	if !view.ValidCategory(s.categories, c.Category) {
		return s.snapshotLocked(), fmt.Errorf("%w: %q", ErrUnknownCategory, c.Category)
	}
	s.criteria = c
	s.refreshLocked()
	return s.snapshotLocked(), nil
}

// SetCriteria replaces both filter inputs at once. Nothing changes when the
// category is invalid.
func (s *Store) SetCriteria(c catalog.Criteria) (Snapshot, error) {
	c = c.Normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !view.ValidCategory(s.categories, c.Category) {
		return s.snapshotLocked(), fmt.Errorf("%w: %q", ErrUnknownCategory, c.Category)
	}
	s.criteria = c
	s.refreshLocked()
	return s.snapshotLocked(), nil
}

// Select opens the detail selection for the item with the given ID. It is
// a no-op returning false unless the session is Ready and the item exists.
func (s *Store) Select(id int) (catalog.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != catalog.StatusReady {
		return catalog.Item{}, false
	}
	it, ok := view.Find(s.raw, id)
	if !ok {
		return catalog.Item{}, false
	}
	sel := it.Clone()
	s.selected = &sel
	return it.Clone(), true
}

// ClearSelection closes the detail selection.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Item looks up an item of the raw collection.
func (s *Store) Item(id int) (catalog.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := view.Find(s.raw, id)
	if !ok {
		return catalog.Item{}, false
	}
	return it.Clone(), true
}

// Status returns the current status and, when Failed, its cause.
func (s *Store) Status() (catalog.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.err
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  s.sessionID,
		Status:     s.status,
		Total:      len(s.raw),
		Items:      catalog.CloneItems(s.visible),
		Categories: append([]string(nil), s.categories...),
		Criteria:   s.criteria,
		StartedAt:  s.startedAt,
	}
	if snap.Categories == nil {
		snap.Categories = []string{}
	}
	if s.err != nil {
		snap.Error = FailureMessage
		snap.Cause = s.err.Error()
	}
	if s.selected != nil {
		sel := s.selected.Clone()
		snap.Selected = &sel
	}
	return snap
}
