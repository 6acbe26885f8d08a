package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/additionsec/as-gateway/pkg/cti"
	"github.com/additionsec/as-gateway/probe/internal/builder"
	"github.com/additionsec/as-gateway/probe/internal/delivery"
)

// Sender delivers one payload and returns the response status.
// *delivery.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, uri string, payload []byte) (int, error)
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario     string        `json:"scenario"`
	Passed       bool          `json:"passed"`
	Expected     int           `json:"expected_status"`
	Status       int           `json:"status,omitempty"` // 0 when no response was received
	PayloadBytes int           `json:"payload_bytes"`
	Duration     time.Duration `json:"duration_ns"`
	Err          error         `json:"-"`
}

// Error returns the failure text, or "" for a passing result.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Summary collects the results of one Run.
type Summary struct {
	RunID    string    `json:"run_id"`
	Target   string    `json:"target"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`

	// Cert is the target's TLS certificate state, nil for http targets.
	Cert *delivery.CertStatus `json:"cert,omitempty"`
}

// Passed returns the number of passing scenarios.
func (s *Summary) Passed() int {
	n := 0
	for _, r := range s.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

// Failed returns the number of failing scenarios.
func (s *Summary) Failed() int { return len(s.Results) - s.Passed() }

// OK reports whether every scenario passed.
func (s *Summary) OK() bool { return s.Failed() == 0 }

// Driver runs scenarios sequentially against one target.
type Driver struct {
	sender  Sender
	target  string
	builder *builder.Builder
	dumpDir string
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithBuilder replaces the default wall-clock Builder.
func WithBuilder(b *builder.Builder) Option {
	return func(d *Driver) { d.builder = b }
}

// WithDumpDir writes every marshalled payload to <dir>/<scenario>.pb.
func WithDumpDir(dir string) Option {
	return func(d *Driver) { d.dumpDir = dir }
}

// NewDriver returns a Driver that sends through sender to target.
func NewDriver(sender Sender, target string, opts ...Option) *Driver {
	d := &Driver{
		sender:  sender,
		target:  target,
		builder: builder.New(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run executes scenarios in order and returns their results. A failing or
// panicking scenario is recorded and the run continues.
func (d *Driver) Run(ctx context.Context, scenarios []Scenario) *Summary {
	sum := &Summary{
		RunID:   uuid.NewString(),
		Target:  d.target,
		Started: d.now().UTC(),
		Results: make([]Result, 0, len(scenarios)),
	}
	log := slog.With("run_id", sum.RunID, "target", d.target)

	if d.dumpDir != "" {
		if err := os.MkdirAll(d.dumpDir, 0o755); err != nil {
			log.Warn("scenario: cannot create dump dir, payloads will not be saved",
				"dir", d.dumpDir, "err", err)
		}
	}

	for _, sc := range scenarios {
		res := d.runOne(ctx, sc)
		if res.Passed {
			log.Info("scenario: passed",
				"scenario", res.Scenario, "status", res.Status,
				"payload_bytes", res.PayloadBytes, "duration", res.Duration)
		} else {
			log.Error("scenario: failed",
				"scenario", res.Scenario, "status", res.Status,
				"expected", res.Expected, "payload_bytes", res.PayloadBytes, "err", res.Err)
		}
		sum.Results = append(sum.Results, res)
	}

	sum.Finished = d.now().UTC()
	log.Info("scenario: run complete",
		"passed", sum.Passed(), "failed", sum.Failed())
	return sum
}

func (d *Driver) runOne(ctx context.Context, sc Scenario) (res Result) {
	res = Result{Scenario: sc.Name, Expected: sc.Expect()}
	start := d.now()
	defer func() {
		if p := recover(); p != nil {
			res.Passed = false
			res.Err = fmt.Errorf("scenario panicked: %v", p)
		}
		res.Duration = d.now().Sub(start)
	}()

	if sc.Build == nil {
		res.Err = fmt.Errorf("scenario %q has no Build func", sc.Name)
		return res
	}
	report, err := sc.Build(d.builder)
	if err != nil {
		res.Err = fmt.Errorf("build: %w", err)
		return res
	}

	payload, err := cti.Marshal(report)
	if err != nil {
		res.Err = fmt.Errorf("marshal: %w", err)
		return res
	}
	res.PayloadBytes = len(payload)
	d.dump(sc.Name, payload)

	status, err := d.sender.Send(ctx, d.target, payload)
	res.Status = status
	if err != nil {
		res.Err = err
		return res
	}
	if err := delivery.CheckStatus(status, res.Expected); err != nil {
		res.Err = err
		return res
	}
	res.Passed = true
	return res
}

// dump saves payload for later inspection. Failures are logged only.
func (d *Driver) dump(name string, payload []byte) {
	if d.dumpDir == "" {
		return
	}
	path := filepath.Join(d.dumpDir, name+".pb")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		slog.Warn("scenario: dump payload failed", "path", path, "err", err)
	}
}
