package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/dexview/internal/catalog"
	"github.com/kalambet/dexview/internal/session"
)

const maxRequestBodySize = 64 << 10 // 64KB

// CatalogStore is the set of store entry points the presentation layer may
// use. *session.Store satisfies it.
type CatalogStore interface {
	Start(ctx context.Context) string
	Snapshot() session.Snapshot
	SetCriteria(c catalog.Criteria) (session.Snapshot, error)
	UpdateCriteria(search, category *string) (session.Snapshot, error)
	Select(id int) (catalog.Item, bool)
	ClearSelection()
	Item(id int) (catalog.Item, bool)
}

type Deps struct {
	Store CatalogStore
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// ReloadContext bounds acquisitions started by a reload request. It must
	// outlive the request itself; defaults to context.Background().
	ReloadContext context.Context
}

// FilterRequest is the body of PATCH /catalog/filter. Absent fields keep
// their current value.
type FilterRequest struct {
	Search   *string `json:"search"`
	Category *string `json:"category"`
}

// SelectRequest is the body of PUT /catalog/selection.
type SelectRequest struct {
	ID int `json:"id"`
}

// NewHandler returns the JSON API over the session store.
func NewHandler(deps Deps) http.Handler {
	if deps.ReloadContext == nil {
		deps.ReloadContext = context.Background()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", handleSnapshot(deps))
		r.Get("/categories", handleCategories(deps))
		r.Get("/items/{id}", handleGetItem(deps))
		r.Patch("/filter", handleFilter(deps))
		r.Put("/selection", handleSelect(deps))
		r.Delete("/selection", handleClearSelection(deps))
		r.Post("/reload", handleReload(deps))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"catalog": deps.Store.Snapshot().Status.String(),
		})
	}
}

func handleSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Store.Snapshot())
	}
}

func handleCategories(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Store.Snapshot().Categories)
	}
}

func handleGetItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil || id <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid item id %q", chi.URLParam(r, "id"))
			return
		}
		it, ok := deps.Store.Item(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "item %d not found", id)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleFilter(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FilterRequest
		if !decodeBody(w, r, &req) {
			return
		}

		snap, err := deps.Store.UpdateCriteria(req.Search, req.Category)
		if errors.Is(err, session.ErrUnknownCategory) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updating filter: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleSelect(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if _, ok := deps.Store.Select(req.ID); !ok {
			snap := deps.Store.Snapshot()
			if snap.Status != catalog.StatusReady {
				httpError(w, http.StatusConflict, "conflict_error", "catalog is %s", snap.Status)
				return
			}
			httpError(w, http.StatusNotFound, "not_found", "item %d not found", req.ID)
			return
		}
		writeJSON(w, http.StatusOK, deps.Store.Snapshot())
	}
}

func handleClearSelection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Store.ClearSelection()
		writeJSON(w, http.StatusOK, deps.Store.Snapshot())
	}
}

func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Store.Start(deps.ReloadContext)
		writeJSON(w, http.StatusAccepted, deps.Store.Snapshot())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
