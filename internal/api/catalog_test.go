package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/dexview/internal/catalog"
	"github.com/kalambet/dexview/internal/session"
)

// staticAcquirer returns a fixed result, optionally after a gate opens.
type staticAcquirer struct {
	items []catalog.Item
	err   error
	gate  chan struct{}
}

func (a *staticAcquirer) Acquire(ctx context.Context) ([]catalog.Item, error) {
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.items, a.err
}

func starters() []catalog.Item {
	return []catalog.Item{
		{ID: 1, Name: "bulbasaur", Categories: []string{"grass", "poison"}, Height: 7, Weight: 69, Abilities: []string{"overgrow"}},
		{ID: 2, Name: "ivysaur", Categories: []string{"grass", "poison"}},
		{ID: 4, Name: "charmander", Categories: []string{"fire"}},
	}
}

func newStore(t *testing.T, acq session.Acquirer) *session.Store {
	t.Helper()
	s := session.New(acq, session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(s.Close)
	return s
}

func readyStore(t *testing.T) *session.Store {
	t.Helper()
	s := newStore(t, &staticAcquirer{items: starters()})
	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if status, err := s.Wait(ctx); status != catalog.StatusReady {
		t.Fatalf("store not ready: %v %v", status, err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func decodeSnapshot(t *testing.T, rr *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	return snap
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

func TestHealth(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, `"catalog":"ready"`) {
		t.Errorf("body = %s", got)
	}
}

func TestSnapshot(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	for _, path := range []string{"/catalog", "/catalog/"} {
		rr := do(t, h, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, rr.Code)
		}
		snap := decodeSnapshot(t, rr)
		if snap.Status != catalog.StatusReady || snap.Total != 3 || len(snap.Items) != 3 {
			t.Errorf("GET %s snapshot = %+v", path, snap)
		}
		if snap.Criteria.Category != catalog.AllCategories {
			t.Errorf("Criteria.Category = %q, want all", snap.Criteria.Category)
		}
	}
}

func TestCategories(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodGet, "/catalog/categories", "")
	var cats []string
	if err := json.NewDecoder(rr.Body).Decode(&cats); err != nil {
		t.Fatal(err)
	}
	if strings.Join(cats, ",") != "grass,poison,fire" {
		t.Errorf("categories = %v", cats)
	}
}

func TestGetItem(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodGet, "/catalog/items/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var it catalog.Item
	if err := json.NewDecoder(rr.Body).Decode(&it); err != nil {
		t.Fatal(err)
	}
	if it.Name != "bulbasaur" || it.Weight != 69 || len(it.Abilities) != 1 {
		t.Errorf("item = %+v", it)
	}

	if rr := do(t, h, http.MethodGet, "/catalog/items/99", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing item status = %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/catalog/items/abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rr.Code)
	}
}

func TestFilter(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodPatch, "/catalog/filter", `{"search":"SAUR"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	snap := decodeSnapshot(t, rr)
	if len(snap.Items) != 2 {
		t.Errorf("items = %d, want 2", len(snap.Items))
	}

	// Category only: search term is kept.
	rr = do(t, h, http.MethodPatch, "/catalog/filter", `{"category":"fire"}`)
	snap = decodeSnapshot(t, rr)
	if snap.Criteria.Search != "SAUR" || snap.Criteria.Category != "fire" {
		t.Errorf("criteria = %+v", snap.Criteria)
	}
	if len(snap.Items) != 0 {
		t.Errorf("items = %v, want none", snap.Items)
	}

	rr = do(t, h, http.MethodPatch, "/catalog/filter", `{"search":"","category":"all"}`)
	if snap = decodeSnapshot(t, rr); len(snap.Items) != 3 {
		t.Errorf("items = %d, want 3", len(snap.Items))
	}
}

func TestFilter_UnknownCategory(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodPatch, "/catalog/filter", `{"category":"dragon"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := errorType(t, rr); got != "invalid_request_error" {
		t.Errorf("error type = %q", got)
	}
}

// racingStore lets another writer change the search term once, right
// before the handler's own update lands.
type racingStore struct {
	*session.Store
	once sync.Once
}

func (r *racingStore) race() {
	r.once.Do(func() { r.Store.SetSearch("char") })
}

func (r *racingStore) Snapshot() session.Snapshot {
	snap := r.Store.Snapshot()
	r.race()
	return snap
}

func (r *racingStore) UpdateCriteria(search, category *string) (session.Snapshot, error) {
	r.race()
	return r.Store.UpdateCriteria(search, category)
}

func TestFilter_KeepsConcurrentSearch(t *testing.T) {
	store := &racingStore{Store: readyStore(t)}
	h := NewHandler(Deps{Store: store})

	rr := do(t, h, http.MethodPatch, "/catalog/filter", `{"category":"fire"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if c := store.Store.Snapshot().Criteria; c.Search != "char" || c.Category != "fire" {
		t.Errorf("criteria = %+v, want {char fire}", c)
	}
}

func TestFilter_ConcurrentPartialUpdates(t *testing.T) {
	s := readyStore(t)
	h := NewHandler(Deps{Store: s})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		body := `{"search":"char"}`
		if i%2 == 1 {
			body = `{"category":"fire"}`
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/catalog/filter", strings.NewReader(body)))
			if rr.Code != http.StatusOK {
				t.Errorf("PATCH %s = %d", body, rr.Code)
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Criteria.Search != "char" || snap.Criteria.Category != "fire" {
		t.Errorf("criteria = %+v, want {char fire}", snap.Criteria)
	}
	if len(snap.Items) != 1 || snap.Items[0].Name != "charmander" {
		t.Errorf("items = %+v", snap.Items)
	}
}

func TestFilter_BadBody(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodPatch, "/catalog/filter", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSelection(t *testing.T) {
	h := NewHandler(Deps{Store: readyStore(t)})

	rr := do(t, h, http.MethodPut, "/catalog/selection", `{"id":4}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if snap := decodeSnapshot(t, rr); snap.Selected == nil || snap.Selected.Name != "charmander" {
		t.Errorf("Selected = %+v", snap.Selected)
	}

	if rr := do(t, h, http.MethodPut, "/catalog/selection", `{"id":99}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown item status = %d, want 404", rr.Code)
	}

	rr = do(t, h, http.MethodDelete, "/catalog/selection", "")
	if snap := decodeSnapshot(t, rr); snap.Selected != nil {
		t.Errorf("Selected = %+v, want nil", snap.Selected)
	}
}

func TestSelection_WhileLoading(t *testing.T) {
	gate := make(chan struct{})
	s := newStore(t, &staticAcquirer{items: starters(), gate: gate})
	s.Start(context.Background())
	defer close(gate)

	h := NewHandler(Deps{Store: s})
	rr := do(t, h, http.MethodPut, "/catalog/selection", `{"id":1}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if s.Snapshot().Selected != nil {
		t.Error("selection set while loading")
	}
}

func TestReload(t *testing.T) {
	acq := &staticAcquirer{err: &catalog.AcquisitionError{Stage: catalog.StageSummary, Err: errors.New("down")}}
	s := newStore(t, acq)
	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if status, _ := s.Wait(ctx); status != catalog.StatusFailed {
		t.Fatalf("status = %v, want failed", status)
	}

	h := NewHandler(Deps{Store: s})
	snap := decodeSnapshot(t, do(t, h, http.MethodGet, "/catalog", ""))
	if snap.Error == "" || snap.Cause == "" {
		t.Errorf("failed snapshot lacks error: %+v", snap)
	}

	acq.err = nil
	acq.items = starters()
	rr := do(t, h, http.MethodPost, "/catalog/reload", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}

	if status, _ := s.Wait(ctx); status != catalog.StatusReady {
		t.Fatalf("status after reload = %v, want ready", status)
	}
	if snap := s.Snapshot(); snap.Total != 3 || snap.Error != "" {
		t.Errorf("snapshot after reload = %+v", snap)
	}
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("dexview_up 1\n"))
	})

	h := NewHandler(Deps{Store: readyStore(t), Metrics: metrics})
	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "dexview_up") {
		t.Errorf("metrics = %d %q", rr.Code, rr.Body.String())
	}

	h = NewHandler(Deps{Store: readyStore(t)})
	if rr := do(t, h, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rr.Code)
	}
}
