package receiver

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/additionsec/as-gateway/collector/internal/config"
	"github.com/additionsec/as-gateway/collector/internal/metrics"
	"github.com/additionsec/as-gateway/collector/internal/store"
	"github.com/additionsec/as-gateway/pkg/cti"
)

var testOrg = bytes.Repeat([]byte{0xbb}, 20)

func defaultLimits() Limits {
	return LimitsFromConfig(config.Defaults().Collector.Limits)
}

func validReport() *cti.Report {
	r := &cti.Report{
		OrganizationID: testOrg,
		SystemID:       testOrg,
		ApplicationID:  "com.example.app",
	}
	ob := r.AddObservation(&cti.Observation{ObservationType: 2, Timestamp: 1700000000, TestID: 50})
	ob.AddData(10, []byte("/dev/null"))
	return r
}

func encode(t *testing.T, r *cti.Report) []byte {
	t.Helper()
	b, err := cti.Marshal(r)
	require.NoError(t, err)
	return b
}

type failingStore struct{ store.Store }

func (failingStore) Put(*store.Entry) error { return errors.New("disk full") }

type emitFunc func(*store.Entry) error

func (f emitFunc) Emit(e *store.Entry) error { return f(e) }

type fixture struct {
	rc      *Receiver
	st      store.Store
	m       *metrics.Metrics
	router  *mux.Router
	entries []*store.Entry
}

func newFixture(t *testing.T, st store.Store, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{st: st, m: metrics.New(), router: mux.NewRouter()}
	opts := Options{
		Limits:       defaultLimits(),
		MaxBodyBytes: 65536,
		OnAccept:     func(e *store.Entry) { f.entries = append(f.entries, e) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.rc = New(st, f.m, opts)
	f.rc.now = func() time.Time { return time.Unix(1700000000, 0) }
	ids := 0
	f.rc.newID = func() string {
		ids++
		return "id-" + string(rune('0'+ids))
	}
	f.rc.Register(f.router)
	return f
}

func (f *fixture) post(body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/msg", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// readCounter returns the value of a labelled counter.
func readCounter(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestIngest_StoresValidReport(t *testing.T) {
	f := newFixture(t, store.NewMemory(time.Hour), nil)
	body := encode(t, validReport())

	rec := f.post(body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	n, err := f.st.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	e, err := f.st.Get("id-1")
	require.NoError(t, err)
	assert.True(t, cti.Equal(validReport(), e.Report))
	assert.Equal(t, body, e.Raw)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), e.ReceivedAt)
	assert.Empty(t, e.RemoteIP, "remote ip must not be saved by default")
	assert.Zero(t, e.SkippedItems)

	require.Len(t, f.entries, 1)
	assert.Equal(t, "id-1", f.entries[0].ID)
	assert.Equal(t, 1.0, readCounter(t, f.m.ReportsTotal.WithLabelValues(metrics.ResultAccepted)))
}

func TestIngest_DropsWithOK(t *testing.T) {
	longOrg := validReport()
	longOrg.OrganizationID = bytes.Repeat([]byte{'A'}, 33)
	longSys := validReport()
	longSys.SystemID = bytes.Repeat([]byte{'A'}, 33)
	longApp := validReport()
	longApp.ApplicationID = string(bytes.Repeat([]byte{'A'}, 257))
	empty := validReport()
	empty.Observations = nil

	tests := []struct {
		name   string
		body   []byte
		reason DropReason
	}{
		{"undecodable", []byte{0x0a, 0x10, 0x01}, DropDecode},
		{"no observations", encode(t, empty), DropNoObservations},
		{"organization id too long", encode(t, longOrg), DropOrgTooLong},
		{"system id too long", encode(t, longSys), DropSysTooLong},
		{"application id too long", encode(t, longApp), DropAppTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, store.NewMemory(time.Hour), nil)

			rec := f.post(tc.body, nil)
			assert.Equal(t, http.StatusOK, rec.Code)

			n, err := f.st.Count()
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, f.entries)
			assert.Equal(t, 1.0, readCounter(t, f.m.DroppedTotal.WithLabelValues(string(tc.reason))))
		})
	}
}

func TestIngest_BoundaryLengthsAccepted(t *testing.T) {
	r := validReport()
	r.OrganizationID = bytes.Repeat([]byte{'A'}, 32)
	r.SystemID = bytes.Repeat([]byte{'A'}, 32)
	r.ApplicationID = string(bytes.Repeat([]byte{'A'}, 256))

	f := newFixture(t, store.NewMemory(time.Hour), nil)
	assert.Equal(t, http.StatusOK, f.post(encode(t, r), nil).Code)
	assert.Len(t, f.entries, 1)
}

func TestIngest_BodyTooLarge(t *testing.T) {
	f := newFixture(t, store.NewMemory(time.Hour), func(o *Options) { o.MaxBodyBytes = 64 })
	r := validReport()
	r.Observations[0].Datas[0].Data = bytes.Repeat([]byte{'A'}, 100)

	rec := f.post(encode(t, r), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.entries)
	assert.Equal(t, 1.0, readCounter(t, f.m.ReportsTotal.WithLabelValues(metrics.ResultTooLarge)))
}

func TestIngest_StoreFailure(t *testing.T) {
	f := newFixture(t, failingStore{store.NewMemory(time.Hour)}, nil)

	rec := f.post(encode(t, validReport()), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.entries)
	assert.Equal(t, 1.0, readCounter(t, f.m.ReportsTotal.WithLabelValues(metrics.ResultError)))
}

func TestIngest_OutputFailure(t *testing.T) {
	f := newFixture(t, store.NewMemory(time.Hour), func(o *Options) {
		o.Output = emitFunc(func(*store.Entry) error { return errors.New("syslog unreachable") })
	})

	rec := f.post(encode(t, validReport()), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.entries)
	n, err := f.st.Count()
	require.NoError(t, err)
	assert.Zero(t, n, "report must not be stored when forwarding fails")
	assert.Equal(t, 1.0, readCounter(t, f.m.ReportsTotal.WithLabelValues(metrics.ResultError)))
}

func TestIngest_OutputSeesAdmittedEntry(t *testing.T) {
	var got []*store.Entry
	f := newFixture(t, store.NewMemory(time.Hour), func(o *Options) {
		o.SaveIP = true
		o.Output = emitFunc(func(e *store.Entry) error {
			got = append(got, e)
			return nil
		})
	})
	r := validReport()
	r.Observations[0].AddData(11, bytes.Repeat([]byte{'A'}, 2049))

	require.Equal(t, http.StatusOK, f.post(encode(t, r), nil).Code)
	require.Len(t, got, 1)
	assert.Equal(t, "192.0.2.1", got[0].RemoteIP)
	assert.True(t, cti.Equal(validReport(), got[0].Report), "output must see the admitted report")
	assert.Len(t, f.entries, 1)
}

func TestIngest_LimitOrg(t *testing.T) {
	other := validReport()
	other.OrganizationID = bytes.Repeat([]byte{0xcc}, 20)
	absent := validReport()
	absent.OrganizationID = nil

	f := newFixture(t, store.NewMemory(time.Hour), func(o *Options) { o.Limits.Org = testOrg })

	for _, r := range []*cti.Report{other, absent} {
		assert.Equal(t, http.StatusOK, f.post(encode(t, r), nil).Code)
	}
	assert.Empty(t, f.entries)
	assert.Equal(t, 2.0, readCounter(t, f.m.DroppedTotal.WithLabelValues(string(DropOrgMismatch))))

	assert.Equal(t, http.StatusOK, f.post(encode(t, validReport()), nil).Code)
	assert.Len(t, f.entries, 1)
}

func TestIngest_SavesClientIP(t *testing.T) {
	f := newFixture(t, store.NewMemory(time.Hour), func(o *Options) { o.SaveIP = true })

	f.post(encode(t, validReport()), http.Header{"X-Forwarded-For": {"10.1.2.3, 192.168.0.1"}})
	f.post(encode(t, validReport()), nil)

	require.Len(t, f.entries, 2)
	assert.Equal(t, "10.1.2.3", f.entries[0].RemoteIP)
	// httptest.NewRequest uses 192.0.2.1:1234 as the peer.
	assert.Equal(t, "192.0.2.1", f.entries[1].RemoteIP)
}

func TestPingAndHealth(t *testing.T) {
	f := newFixture(t, store.NewMemory(time.Hour), nil)
	for _, path := range []string{"/v1/msg", "/"} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAdmit_SkipsOversizeAndCapsCount(t *testing.T) {
	r := validReport()
	ob := r.Observations[0]
	ob.AddData(11, bytes.Repeat([]byte{'A'}, 2049))
	for i := range 10 {
		ob.AddData(int32(20+i), []byte{byte(i)})
	}

	got, skips, reason := Admit(r, defaultLimits())
	require.Equal(t, DropNone, reason)

	// 1 original + 1 oversize + 10 small: keep the original and 7 small.
	assert.Equal(t, 1, skips.Oversize)
	assert.Equal(t, 3, skips.OverCount)
	assert.Equal(t, 4, skips.Total())
	require.Len(t, got.Observations[0].Datas, 8)
	assert.Equal(t, int32(10), got.Observations[0].Datas[0].DataType)
	assert.Equal(t, int32(20), got.Observations[0].Datas[1].DataType)

	assert.Len(t, r.Observations[0].Datas, 12, "input report modified")
}

func TestAdmit_SkipsEmptyData(t *testing.T) {
	r := validReport()
	ob := r.Observations[0]
	ob.AddData(5, nil)
	ob.AddData(6, []byte{})
	ob.AddData(7, []byte("x"))

	got, skips, reason := Admit(r, defaultLimits())
	require.Equal(t, DropNone, reason)
	assert.Equal(t, 2, skips.Empty)
	assert.Equal(t, 2, skips.Total())
	datas := got.Observations[0].Datas
	require.Len(t, datas, 2)
	assert.Equal(t, int32(10), datas[0].DataType)
	assert.Equal(t, int32(7), datas[1].DataType)
}

func TestIngest_CountsEmptyDataSkips(t *testing.T) {
	f := newFixture(t, store.NewMemory(time.Hour), nil)
	r := validReport()
	r.Observations[0].AddData(5, nil)

	require.Equal(t, http.StatusOK, f.post(encode(t, r), nil).Code)
	require.Len(t, f.entries, 1)
	assert.Equal(t, 1, f.entries[0].SkippedItems)
	assert.Len(t, f.entries[0].Report.Observations[0].Datas, 1)
	assert.Equal(t, 1.0, readCounter(t, f.m.SkippedItemsTotal.WithLabelValues("empty")))
}

func TestAdmit_DataAtLimitKept(t *testing.T) {
	r := validReport()
	r.Observations[0].Datas[0].Data = bytes.Repeat([]byte{'A'}, 2048)

	got, skips, reason := Admit(r, defaultLimits())
	require.Equal(t, DropNone, reason)
	assert.Zero(t, skips.Total())
	assert.Len(t, got.Observations[0].Datas, 1)
}

func TestAdmit_RepeatedItemsAccepted(t *testing.T) {
	r := validReport()
	for range 255 {
		r.Observations[0].AddData(10, []byte("/dev/null"))
	}

	got, skips, reason := Admit(r, defaultLimits())
	require.Equal(t, DropNone, reason)
	assert.Equal(t, 248, skips.OverCount)
	assert.Len(t, got.Observations[0].Datas, 8)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"peer v4", "203.0.113.9:5555", "", "203.0.113.9"},
		{"peer v6", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"forwarded single", "203.0.113.9:5555", "10.0.0.1", "10.0.0.1"},
		{"forwarded chain", "203.0.113.9:5555", " 10.0.0.2 , 10.0.0.3", "10.0.0.2"},
		{"forwarded garbage", "203.0.113.9:5555", "not-an-ip", ""},
		{"peer without port", "203.0.113.9", "", "203.0.113.9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/msg", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}
