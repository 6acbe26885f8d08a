package output

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/additionsec/as-gateway/collector/internal/config"
	"github.com/additionsec/as-gateway/collector/internal/store"
)

// stampLayout prefixes file records with the time they were received.
const stampLayout = "Jan 02 2006 15:04:05"

// Pipeline transforms accepted entries and hands the records to a sink.
type Pipeline struct {
	transform Transform
	sink      Sink

	// stamp prefixes every record with the receive time and host.
	stamp bool
	host  string
}

// New builds the pipeline described by tc and oc. The output type must not
// be "none".
func New(tc config.TransformConfig, oc config.OutputConfig) (*Pipeline, error) {
	t, err := NewTransform(tc)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{transform: t, host: oc.Hostname}

	switch oc.Type {
	case "console":
		p.sink = &Console{W: os.Stdout}
	case "file":
		f, err := OpenFile(oc.Path, time.Now())
		if err != nil {
			return nil, err
		}
		p.sink = f
		p.stamp = true
	case "udpsyslog", "tcpsyslog":
		if t.MultiLine() {
			return nil, fmt.Errorf("output: transform %s is not compatible with %s", t.Name(), oc.Type)
		}
		s, err := DialSyslog(oc.Type[:3], oc.Syslog, oc.Hostname)
		if err != nil {
			return nil, err
		}
		p.sink = s
	default:
		return nil, fmt.Errorf("output: unknown output %q", oc.Type)
	}

	slog.Info("output: forwarding observations", "transform", t.Name(), "output", p.sink.Name())
	return p, nil
}

// NewWithSink builds a pipeline around an existing sink.
func NewWithSink(t Transform, s Sink) *Pipeline {
	return &Pipeline{transform: t, sink: s}
}

// Emit forwards every observation of e. Nothing is written when any
// observation fails to transform.
func (p *Pipeline) Emit(e *store.Entry) error {
	evs := Events(e)
	records := make([][]byte, 0, len(evs))
	for _, ev := range evs {
		rec, err := p.transform.Transform(ev)
		if err != nil {
			return fmt.Errorf("output: %s transform: %w", p.transform.Name(), err)
		}
		if p.stamp {
			prefix := ev.ReceivedAt.Format(stampLayout) + " " + p.host + " "
			rec = append([]byte(prefix), rec...)
		}
		records = append(records, rec)
	}
	if err := p.sink.Write(records); err != nil {
		return fmt.Errorf("output: %s: %w", p.sink.Name(), err)
	}
	return nil
}

// Close releases the sink.
func (p *Pipeline) Close() error {
	return p.sink.Close()
}
