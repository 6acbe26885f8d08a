package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/additionsec/as-gateway/probe/internal/delivery"
	"github.com/additionsec/as-gateway/probe/internal/scenario"
)

// jsonSummary is the on-disk shape of a run summary.
type jsonSummary struct {
	RunID    string       `json:"run_id"`
	Target   string       `json:"target"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	OK       bool         `json:"ok"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Results  []jsonResult `json:"results"`

	Cert *delivery.CertStatus `json:"cert,omitempty"`
}

type jsonResult struct {
	Scenario     string  `json:"scenario"`
	Passed       bool    `json:"passed"`
	Expected     int     `json:"expected_status"`
	Status       int     `json:"status"`
	PayloadBytes int     `json:"payload_bytes"`
	DurationMS   float64 `json:"duration_ms"`
	Error        string  `json:"error,omitempty"`
}

// WriteJSON writes sum to w as indented JSON.
func WriteJSON(w io.Writer, sum *scenario.Summary) error {
	out := jsonSummary{
		RunID:    sum.RunID,
		Target:   sum.Target,
		Started:  sum.Started,
		Finished: sum.Finished,
		OK:       sum.OK(),
		Passed:   sum.Passed(),
		Failed:   sum.Failed(),
		Results:  make([]jsonResult, 0, len(sum.Results)),
		Cert:     sum.Cert,
	}
	for _, r := range sum.Results {
		out.Results = append(out.Results, jsonResult{
			Scenario:     r.Scenario,
			Passed:       r.Passed,
			Expected:     r.Expected,
			Status:       r.Status,
			PayloadBytes: r.PayloadBytes,
			DurationMS:   float64(r.Duration) / float64(time.Millisecond),
			Error:        r.Error(),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// WriteJSONFile atomically replaces path with the JSON summary.
func WriteJSONFile(path string, sum *scenario.Summary) error {
	return writeAtomic(path, func(w io.Writer) error { return WriteJSON(w, sum) })
}

// writeAtomic writes through a temp file in path's directory, then renames.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("export: create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("export: chmod: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}
