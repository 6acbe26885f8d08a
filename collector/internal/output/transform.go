package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/additionsec/as-gateway/collector/internal/config"
	"github.com/additionsec/as-gateway/collector/internal/store"
	"github.com/additionsec/as-gateway/pkg/cti"
)

// Event is one observation together with the identity of the report that
// carried it.
type Event struct {
	ReceivedAt  time.Time
	RemoteIP    string
	Org         []byte
	System      []byte
	App         string
	Observation *cti.Observation
}

// Events splits an accepted entry into one event per observation.
func Events(e *store.Entry) []Event {
	r := e.Report
	evs := make([]Event, 0, len(r.Observations))
	for _, ob := range r.Observations {
		evs = append(evs, Event{
			ReceivedAt:  e.ReceivedAt,
			RemoteIP:    e.RemoteIP,
			Org:         r.OrganizationID,
			System:      r.SystemID,
			App:         r.ApplicationID,
			Observation: ob,
		})
	}
	return evs
}

// recvIP is the client address, or 0.0.0.0 when it was not recorded.
func (ev Event) recvIP() string {
	if ev.RemoteIP == "" {
		return "0.0.0.0"
	}
	return ev.RemoteIP
}

// Transform renders one event as one record.
type Transform interface {
	Name() string

	// MultiLine reports whether records may not fit a single syslog line.
	MultiLine() bool

	Transform(ev Event) ([]byte, error)
}

// NewTransform builds the transform named by c.Format.
func NewTransform(c config.TransformConfig) (Transform, error) {
	switch c.Format {
	case "json":
		return JSON{IncludeOrg: c.IncludeOrg}, nil
	case "kvp":
		return KVP{IncludeOrg: c.IncludeOrg}, nil
	default:
		return nil, fmt.Errorf("output: unknown transform %q", c.Format)
	}
}

// JSON renders an event as a JSON object with a fixed key order.
type JSON struct {
	IncludeOrg bool
}

func (JSON) Name() string    { return "json" }
func (JSON) MultiLine() bool { return true }

func (t JSON) Transform(ev Event) ([]byte, error) {
	ob := ev.Observation
	b := make([]byte, 0, 256)

	b = append(b, `{"id":`...)
	b = strconv.AppendInt(b, int64(ob.TestID), 10)
	b = appendJSONField(b, "timestamp", isoTime(ob.Timestamp))
	if ob.ObservationType > 0 {
		b = appendJSONField(b, "category", ObservationType(ob.ObservationType))
	}
	b = appendJSONField(b, "recvIp", ev.recvIP())
	if t.IncludeOrg {
		b = appendJSONField(b, "org", hexID(ev.Org))
	}
	if len(ev.System) > 0 {
		b = appendJSONField(b, "systemId", hexID(ev.System))
	}
	if ev.App != "" {
		b = appendJSONField(b, "application", ev.App)
	}

	b = append(b, `,"observableData":{`...)
	seen := make(map[string]bool, len(ob.Datas))
	for i, d := range ob.Datas {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendJSONString(b, uniqueKey(seen, dataKey(d.DataType), ""))
		b = append(b, ':')
		b = appendJSONString(b, renderData(d.DataType, d.Data, plainText))
	}
	b = append(b, "}}"...)
	return b, nil
}

func appendJSONField(b []byte, key, value string) []byte {
	b = append(b, ',')
	b = appendJSONString(b, key)
	b = append(b, ':')
	return appendJSONString(b, value)
}

func appendJSONString(b []byte, s string) []byte {
	q, _ := json.Marshal(s) // strings always marshal
	return append(b, q...)
}

// KVP renders an event as comma separated key=value pairs on one line.
// Free text values are quoted and escaped.
type KVP struct {
	IncludeOrg bool
}

func (KVP) Name() string    { return "kvp" }
func (KVP) MultiLine() bool { return false }

func (t KVP) Transform(ev Event) ([]byte, error) {
	ob := ev.Observation
	var sb strings.Builder

	sb.WriteString("recvIp=" + ev.recvIP())
	if t.IncludeOrg {
		sb.WriteString(", org=" + hexID(ev.Org))
	}
	if len(ev.System) > 0 {
		sb.WriteString(", systemId=" + hexID(ev.System))
	}
	if ev.App != "" {
		sb.WriteString(`, application="` + kvpEscape([]byte(ev.App)) + `"`)
	}
	sb.WriteString(", eventId=" + strconv.Itoa(int(ob.TestID)))
	sb.WriteString(", ts=" + isoTime(ob.Timestamp))
	if ob.ObservationType > 0 {
		sb.WriteString(", cat=" + ObservationType(ob.ObservationType))
	}

	seen := make(map[string]bool, len(ob.Datas))
	for _, d := range ob.Datas {
		key := uniqueKey(seen, dataKey(d.DataType), "_")
		value := renderData(d.DataType, d.Data, kvpEscape)
		sb.WriteString(", " + key + `="` + value + `"`)
	}
	return []byte(sb.String()), nil
}

// isoTime formats unix seconds as a UTC instant, e.g. 2023-11-14T22:13:20Z.
func isoTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
