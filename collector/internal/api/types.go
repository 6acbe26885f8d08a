package api

import (
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/additionsec/as-gateway/collector/internal/store"
	"github.com/additionsec/as-gateway/pkg/cti"
)

// ReportSummary is the list view of a stored report.
type ReportSummary struct {
	ID             string    `json:"id"`
	ReceivedAt     time.Time `json:"received_at"`
	RemoteIP       string    `json:"remote_ip,omitempty"`
	OrganizationID string    `json:"organization_id"`
	ApplicationID  string    `json:"application_id"`
	Observations   int       `json:"observations"`
	DataItems      int       `json:"data_items"`
	SkippedItems   int       `json:"skipped_items,omitempty"`
	RawBytes       int       `json:"raw_bytes"`
}

// ReportResponse is the detail view of a stored report.
type ReportResponse struct {
	ID             string                `json:"id"`
	ReceivedAt     time.Time             `json:"received_at"`
	RemoteIP       string                `json:"remote_ip,omitempty"`
	OrganizationID string                `json:"organization_id"`
	SystemID       string                `json:"system_id"`
	ApplicationID  string                `json:"application_id"`
	Observations   []ObservationResponse `json:"observations"`
	SkippedItems   int                   `json:"skipped_items"`
	RawBytes       int                   `json:"raw_bytes"`
}

// ObservationResponse is one observation within a ReportResponse.
type ObservationResponse struct {
	Type      int32          `json:"type"`
	Timestamp int64          `json:"ts"`
	TestID    int32          `json:"test_id"`
	Datas     []DataResponse `json:"datas"`
}

// DataResponse carries a data item; Data is base64.
type DataResponse struct {
	Type int32  `json:"type"`
	Data string `json:"data"`
}

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	Reports       int       `json:"reports"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Summarize maps a store.Entry to its list view. The ws hub uses it too.
func Summarize(e *store.Entry) ReportSummary {
	s := ReportSummary{
		ID:           e.ID,
		ReceivedAt:   e.ReceivedAt,
		RemoteIP:     e.RemoteIP,
		SkippedItems: e.SkippedItems,
		RawBytes:     len(e.Raw),
	}
	if r := e.Report; r != nil {
		s.OrganizationID = hex.EncodeToString(r.OrganizationID)
		s.ApplicationID = r.ApplicationID
		s.Observations = len(r.Observations)
		s.DataItems = r.DataCount()
	}
	return s
}

func toReportResponse(e *store.Entry) ReportResponse {
	resp := ReportResponse{
		ID:           e.ID,
		ReceivedAt:   e.ReceivedAt,
		RemoteIP:     e.RemoteIP,
		SkippedItems: e.SkippedItems,
		RawBytes:     len(e.Raw),
		Observations: []ObservationResponse{},
	}
	r := e.Report
	if r == nil {
		r = &cti.Report{}
	}
	resp.OrganizationID = hex.EncodeToString(r.OrganizationID)
	resp.SystemID = hex.EncodeToString(r.SystemID)
	resp.ApplicationID = r.ApplicationID
	for _, ob := range r.Observations {
		o := ObservationResponse{
			Type:      ob.ObservationType,
			Timestamp: ob.Timestamp,
			TestID:    ob.TestID,
			Datas:     make([]DataResponse, 0, len(ob.Datas)),
		}
		for _, d := range ob.Datas {
			o.Datas = append(o.Datas, DataResponse{
				Type: d.DataType,
				Data: base64.StdEncoding.EncodeToString(d.Data),
			})
		}
		resp.Observations = append(resp.Observations, o)
	}
	return resp
}
