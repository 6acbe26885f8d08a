package receiver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/additionsec/as-gateway/collector/internal/metrics"
	"github.com/additionsec/as-gateway/collector/internal/store"
	"github.com/additionsec/as-gateway/pkg/cti"
)

// Emitter forwards an accepted entry before it is stored.
type Emitter interface {
	Emit(e *store.Entry) error
}

// Options configures a Receiver.
type Options struct {
	Limits       Limits
	MaxBodyBytes int64
	SaveIP       bool

	// Output, when set, receives every admitted report. A failure answers 500
	// and the report is not stored.
	Output Emitter

	// OnAccept, when set, is called with every stored entry.
	OnAccept func(*store.Entry)
}

// Receiver handles report ingestion.
type Receiver struct {
	store   store.Store
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time // injectable for deterministic tests
	newID   func() string
}

// New creates a Receiver that writes admitted reports to st.
func New(st store.Store, m *metrics.Metrics, opts Options) *Receiver {
	return &Receiver{
		store:   st,
		opts:    opts,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Register adds the ingestion, ping, and health routes to r.
func (rc *Receiver) Register(r *mux.Router) {
	r.HandleFunc("/v1/msg", rc.ingest).Methods(http.MethodPost)
	r.HandleFunc("/v1/msg", ok).Methods(http.MethodGet)
	r.HandleFunc("/", ok).Methods(http.MethodGet)
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (rc *Receiver) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rc.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rc.metrics.ReportsTotal.WithLabelValues(metrics.ResultTooLarge).Inc()
			slog.Debug("receiver: body over limit", "limit", rc.opts.MaxBodyBytes)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		rc.metrics.ReportsTotal.WithLabelValues(metrics.ResultError).Inc()
		slog.Warn("receiver: read body failed", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rc.metrics.PayloadBytes.Observe(float64(len(body)))

	report, err := cti.Unmarshal(body)
	if err != nil {
		rc.drop(w, DropDecode, len(body), err)
		return
	}

	admitted, skips, reason := Admit(report, rc.opts.Limits)
	if reason != DropNone {
		rc.drop(w, reason, len(body), nil)
		return
	}
	if skips.Empty > 0 {
		rc.metrics.SkippedItemsTotal.WithLabelValues("empty").Add(float64(skips.Empty))
	}
	if skips.Oversize > 0 {
		rc.metrics.SkippedItemsTotal.WithLabelValues("oversize").Add(float64(skips.Oversize))
	}
	if skips.OverCount > 0 {
		rc.metrics.SkippedItemsTotal.WithLabelValues("over_count").Add(float64(skips.OverCount))
	}

	e := &store.Entry{
		ID:           rc.newID(),
		ReceivedAt:   rc.now().UTC(),
		Report:       admitted,
		Raw:          body,
		SkippedItems: skips.Total(),
	}
	if rc.opts.SaveIP {
		e.RemoteIP = clientIP(r)
	}

	if rc.opts.Output != nil {
		if err := rc.opts.Output.Emit(e); err != nil {
			rc.metrics.ReportsTotal.WithLabelValues(metrics.ResultError).Inc()
			slog.Error("receiver: forward report failed", "id", e.ID, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	if err := rc.store.Put(e); err != nil {
		rc.metrics.ReportsTotal.WithLabelValues(metrics.ResultError).Inc()
		slog.Error("receiver: store report failed", "id", e.ID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	rc.metrics.ReportsTotal.WithLabelValues(metrics.ResultAccepted).Inc()

	slog.Debug("receiver: report stored",
		"id", e.ID,
		"app", admitted.ApplicationID,
		"observations", len(admitted.Observations),
		"skipped_items", e.SkippedItems,
	)

	if rc.opts.OnAccept != nil {
		rc.opts.OnAccept(e)
	}
	w.WriteHeader(http.StatusOK)
}

// drop records a discarded report. The client still gets 200.
func (rc *Receiver) drop(w http.ResponseWriter, reason DropReason, size int, err error) {
	rc.metrics.ReportsTotal.WithLabelValues(metrics.ResultDropped).Inc()
	rc.metrics.DroppedTotal.WithLabelValues(string(reason)).Inc()
	if err != nil {
		slog.Info("receiver: report dropped", "reason", reason, "bytes", size, "err", err)
	} else {
		slog.Info("receiver: report dropped", "reason", reason, "bytes", size)
	}
	w.WriteHeader(http.StatusOK)
}
