package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/additionsec/as-gateway/collector/internal/store"
)

// Handler serves the report API from a store.
type Handler struct {
	store   store.Store
	started time.Time
	now     func() time.Time
}

// New creates a Handler reading from st.
func New(st store.Store) *Handler {
	return &Handler{store: st, started: time.Now(), now: time.Now}
}

// Register adds the report routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/reports", h.listReports).Methods(http.MethodGet)
	r.HandleFunc("/v1/reports/{id}", h.getReport).Methods(http.MethodGet)
	r.HandleFunc("/v1/reports/{id}/raw", h.getRaw).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", h.stats).Methods(http.MethodGet)
}

// listReports returns GET /v1/reports, optionally capped by ?limit=N.
func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.store.List()
	if err != nil {
		slog.Error("api: list reports failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]ReportSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, Summarize(e))
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, toReportResponse(e))
}

// getRaw returns the request body exactly as the device sent it.
func (h *Handler) getRaw(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Raw)))
	w.WriteHeader(http.StatusOK)
	w.Write(e.Raw) //nolint:errcheck
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	n, err := h.store.Count()
	if err != nil {
		slog.Error("api: count reports failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	jsonResp(w, http.StatusOK, StatsResponse{
		Reports:       n,
		StartedAt:     h.started.UTC(),
		UptimeSeconds: h.now().Sub(h.started).Seconds(),
	})
}

// lookup resolves {id} and writes the error response itself when it fails.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*store.Entry, bool) {
	id := mux.Vars(r)["id"]
	e, err := h.store.Get(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "report not found")
		return nil, false
	case err != nil:
		slog.Error("api: get report failed", "id", id, "err", err)
		jsonErr(w, http.StatusInternalServerError, "store unavailable")
		return nil, false
	}
	return e, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
