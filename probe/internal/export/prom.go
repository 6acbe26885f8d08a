package export

import (
	"fmt"
	"io"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/additionsec/as-gateway/probe/internal/scenario"
)

// Metric names written by WriteMetrics.
const (
	MetricScenarioPassed   = "as_probe_scenario_passed"
	MetricScenarioStatus   = "as_probe_scenario_status_code"
	MetricScenarioPayload  = "as_probe_scenario_payload_bytes"
	MetricScenarioDuration = "as_probe_scenario_duration_seconds"
	MetricRunFailed        = "as_probe_run_failed_scenarios"
	MetricRunTimestamp     = "as_probe_run_timestamp_seconds"
	MetricCertDaysLeft     = "as_probe_target_cert_days_left"
)

// WriteMetrics writes sum to w in the Prometheus text format.
func WriteMetrics(w io.Writer, sum *scenario.Summary) error {
	for _, mf := range families(sum) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("export: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteMetricsFile atomically replaces path with the metrics for sum.
func WriteMetricsFile(path string, sum *scenario.Summary) error {
	return writeAtomic(path, func(w io.Writer) error { return WriteMetrics(w, sum) })
}

func families(sum *scenario.Summary) []*dto.MetricFamily {
	passed := gaugeFamily(MetricScenarioPassed, "1 if the scenario returned its expected status.")
	status := gaugeFamily(MetricScenarioStatus, "HTTP status returned for the scenario, 0 if none.")
	payload := gaugeFamily(MetricScenarioPayload, "Serialized report size sent by the scenario.")
	duration := gaugeFamily(MetricScenarioDuration, "Wall time spent building and sending the scenario.")

	for _, r := range sum.Results {
		var ok float64
		if r.Passed {
			ok = 1
		}
		labels := []*dto.LabelPair{
			{Name: proto.String("scenario"), Value: proto.String(r.Scenario)},
			{Name: proto.String("target"), Value: proto.String(sum.Target)},
		}
		passed.Metric = append(passed.Metric, gauge(labels, ok))
		status.Metric = append(status.Metric, gauge(labels, float64(r.Status)))
		payload.Metric = append(payload.Metric, gauge(labels, float64(r.PayloadBytes)))
		duration.Metric = append(duration.Metric, gauge(labels, r.Duration.Seconds()))
	}

	runLabels := []*dto.LabelPair{
		{Name: proto.String("run_id"), Value: proto.String(sum.RunID)},
		{Name: proto.String("target"), Value: proto.String(sum.Target)},
	}
	failed := gaugeFamily(MetricRunFailed, "Number of scenarios that failed in the last run.")
	failed.Metric = append(failed.Metric, gauge(runLabels, float64(sum.Failed())))
	ts := gaugeFamily(MetricRunTimestamp, "Unix time the last run finished.")
	ts.Metric = append(ts.Metric, gauge(runLabels, unixSeconds(sum.Finished)))

	out := []*dto.MetricFamily{passed, status, payload, duration, failed, ts}
	if c := sum.Cert; c != nil {
		cert := gaugeFamily(MetricCertDaysLeft, "Days until the target's TLS certificate expires.")
		cert.Metric = append(cert.Metric, gauge([]*dto.LabelPair{
			{Name: proto.String("status"), Value: proto.String(c.Status)},
			{Name: proto.String("target"), Value: proto.String(sum.Target)},
		}, float64(c.DaysLeft)))
		out = append(out, cert)
	}
	return out
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
