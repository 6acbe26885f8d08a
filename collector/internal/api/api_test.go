package api_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/additionsec/as-gateway/collector/internal/api"
	"github.com/additionsec/as-gateway/collector/internal/store"
	"github.com/additionsec/as-gateway/pkg/cti"
)

// --- test helpers -----------------------------------------------------------

func newRouter(st store.Store) *mux.Router {
	r := mux.NewRouter()
	api.New(st).Register(r)
	return r
}

func newStore(t *testing.T, entries ...*store.Entry) store.Store {
	t.Helper()
	st := store.NewMemory(time.Hour)
	for _, e := range entries {
		if err := st.Put(e); err != nil {
			t.Fatalf("Put(%s): %v", e.ID, err)
		}
	}
	return st
}

func entry(id string, age time.Duration) *store.Entry {
	r := &cti.Report{
		OrganizationID: []byte{0xbb, 0x54},
		SystemID:       []byte{0x01},
		ApplicationID:  "com.example.app",
	}
	ob := r.AddObservation(&cti.Observation{ObservationType: 2, Timestamp: 1700000000, TestID: 50})
	ob.AddData(10, []byte("/dev/null"))
	raw, _ := cti.Marshal(r)
	return &store.Entry{
		ID:           id,
		ReceivedAt:   time.Now().Add(-age),
		RemoteIP:     "10.0.0.1",
		Report:       r,
		Raw:          raw,
		SkippedItems: 2,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

type brokenStore struct{ store.Store }

func (brokenStore) List() ([]*store.Entry, error)    { return nil, errors.New("bolt: closed") }
func (brokenStore) Get(string) (*store.Entry, error) { return nil, errors.New("bolt: closed") }
func (brokenStore) Count() (int, error)              { return 0, errors.New("bolt: closed") }

// --- GET /v1/reports --------------------------------------------------------

func TestListReports_Empty(t *testing.T) {
	rr := get(t, newRouter(newStore(t)), "/v1/reports")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got []api.ReportSummary
	decode(t, rr, &got)
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty array", got)
	}
}

func TestListReports_NewestFirst(t *testing.T) {
	st := newStore(t, entry("old", 2*time.Minute), entry("new", time.Second), entry("mid", time.Minute))
	rr := get(t, newRouter(st), "/v1/reports")

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var got []api.ReportSummary
	decode(t, rr, &got)
	if len(got) != 3 {
		t.Fatalf("len: got %d, want 3", len(got))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if got[i].ID != want {
			t.Errorf("[%d].id: got %q, want %q", i, got[i].ID, want)
		}
	}
	s := got[0]
	if s.OrganizationID != "bb54" || s.ApplicationID != "com.example.app" {
		t.Errorf("identity: got %q %q", s.OrganizationID, s.ApplicationID)
	}
	if s.Observations != 1 || s.DataItems != 1 || s.SkippedItems != 2 {
		t.Errorf("counts: got %+v", s)
	}
}

func TestListReports_Limit(t *testing.T) {
	st := newStore(t, entry("a", 3*time.Second), entry("b", 2*time.Second), entry("c", time.Second))
	var got []api.ReportSummary
	decode(t, get(t, newRouter(st), "/v1/reports?limit=2"), &got)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("got %+v, want [c b]", got)
	}
}

func TestListReports_BadLimit(t *testing.T) {
	for _, q := range []string{"abc", "-1"} {
		rr := get(t, newRouter(newStore(t)), "/v1/reports?limit="+q)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want 400", q, rr.Code)
		}
	}
}

func TestListReports_ExcludesStale(t *testing.T) {
	st := newStore(t, entry("live", time.Minute), entry("stale", 2*time.Hour))
	var got []api.ReportSummary
	decode(t, get(t, newRouter(st), "/v1/reports"), &got)
	if len(got) != 1 || got[0].ID != "live" {
		t.Errorf("got %+v, want only live", got)
	}
}

// --- GET /v1/reports/{id} ---------------------------------------------------

func TestGetReport(t *testing.T) {
	rr := get(t, newRouter(newStore(t, entry("r1", time.Second))), "/v1/reports/r1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got api.ReportResponse
	decode(t, rr, &got)

	if got.ID != "r1" || got.SystemID != "01" || got.RemoteIP != "10.0.0.1" {
		t.Errorf("header fields: got %+v", got)
	}
	if len(got.Observations) != 1 {
		t.Fatalf("observations: got %d, want 1", len(got.Observations))
	}
	ob := got.Observations[0]
	if ob.Type != 2 || ob.Timestamp != 1700000000 || ob.TestID != 50 {
		t.Errorf("observation: got %+v", ob)
	}
	if len(ob.Datas) != 1 || ob.Datas[0].Type != 10 {
		t.Fatalf("datas: got %+v", ob.Datas)
	}
	data, err := base64.StdEncoding.DecodeString(ob.Datas[0].Data)
	if err != nil || string(data) != "/dev/null" {
		t.Errorf("data: got %q (%v)", data, err)
	}
}

func TestGetReport_NotFound(t *testing.T) {
	rr := get(t, newRouter(newStore(t)), "/v1/reports/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestGetReport_StoreError(t *testing.T) {
	rr := get(t, newRouter(brokenStore{newStore(t)}), "/v1/reports/r1")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

// --- GET /v1/reports/{id}/raw -----------------------------------------------

func TestGetRaw(t *testing.T) {
	e := entry("r1", time.Second)
	rr := get(t, newRouter(newStore(t, e)), "/v1/reports/r1/raw")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !bytes.Equal(rr.Body.Bytes(), e.Raw) {
		t.Error("raw body differs from stored bytes")
	}
	if _, err := cti.Unmarshal(rr.Body.Bytes()); err != nil {
		t.Errorf("raw body does not decode: %v", err)
	}
}

func TestGetRaw_NotFound(t *testing.T) {
	rr := get(t, newRouter(newStore(t)), "/v1/reports/missing/raw")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- GET /v1/stats ----------------------------------------------------------

func TestStats(t *testing.T) {
	rr := get(t, newRouter(newStore(t, entry("a", time.Second), entry("b", time.Second))), "/v1/stats")
	var got api.StatsResponse
	decode(t, rr, &got)
	if got.Reports != 2 {
		t.Errorf("reports: got %d, want 2", got.Reports)
	}
	if got.StartedAt.IsZero() || got.UptimeSeconds < 0 {
		t.Errorf("uptime fields: got %+v", got)
	}
}

func TestStats_StoreError(t *testing.T) {
	rr := get(t, newRouter(brokenStore{newStore(t)}), "/v1/stats")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

// --- method handling ----------------------------------------------------------

func TestNonGETNotRouted(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(newStore(t)).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/reports", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: got %d, want 405", rr.Code)
	}
}

func TestSummarize_NilReport(t *testing.T) {
	s := api.Summarize(&store.Entry{ID: "x", Raw: []byte{1, 2, 3}})
	if s.ID != "x" || s.RawBytes != 3 || s.Observations != 0 {
		t.Errorf("got %+v", s)
	}
}
