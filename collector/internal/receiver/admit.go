package receiver

import (
	"bytes"

	"github.com/additionsec/as-gateway/collector/internal/config"
	"github.com/additionsec/as-gateway/pkg/cti"
)

// DropReason explains why a decoded report was discarded.
type DropReason string

// Drop reasons, also used as the reason label on the dropped metric.
const (
	DropNone           DropReason = ""
	DropDecode         DropReason = "decode"
	DropOrgMismatch    DropReason = "org_mismatch"
	DropNoObservations DropReason = "no_observations"
	DropOrgTooLong     DropReason = "org_too_long"
	DropSysTooLong     DropReason = "sys_too_long"
	DropAppTooLong     DropReason = "app_too_long"
)

// Limits bounds the reports Admit accepts.
type Limits struct {
	MaxOrg       int
	MaxSys       int
	MaxApp       int
	MaxDataSize  int
	MaxDataCount int

	// Org, when non-nil, is the only organization id accepted.
	Org []byte
}

// LimitsFromConfig converts the YAML limits section.
func LimitsFromConfig(c config.LimitsConfig) Limits {
	return Limits{
		MaxOrg:       c.MaxOrg,
		MaxSys:       c.MaxSys,
		MaxApp:       c.MaxApp,
		MaxDataSize:  c.MaxDataSize,
		MaxDataCount: c.MaxDataCount,
		Org:          c.LimitOrgBytes(),
	}
}

// Skips counts data items removed by Admit.
type Skips struct {
	Empty     int // no data bytes
	Oversize  int // data longer than MaxDataSize
	OverCount int // beyond MaxDataCount in one observation
}

// Total returns the number of skipped items.
func (s Skips) Total() int { return s.Empty + s.Oversize + s.OverCount }

// Admit applies lim to r. It returns the report to store, or a non-empty
// DropReason when the whole report must be discarded. r is not modified.
func Admit(r *cti.Report, lim Limits) (*cti.Report, Skips, DropReason) {
	var skips Skips

	if lim.Org != nil && !bytes.Equal(r.OrganizationID, lim.Org) {
		return nil, skips, DropOrgMismatch
	}
	if len(r.Observations) == 0 {
		return nil, skips, DropNoObservations
	}
	switch {
	case len(r.OrganizationID) > lim.MaxOrg:
		return nil, skips, DropOrgTooLong
	case len(r.SystemID) > lim.MaxSys:
		return nil, skips, DropSysTooLong
	case len(r.ApplicationID) > lim.MaxApp:
		return nil, skips, DropAppTooLong
	}

	out := &cti.Report{
		OrganizationID: r.OrganizationID,
		SystemID:       r.SystemID,
		ApplicationID:  r.ApplicationID,
		Observations:   make([]*cti.Observation, 0, len(r.Observations)),
	}
	for _, ob := range r.Observations {
		kept := out.AddObservation(&cti.Observation{
			ObservationType: ob.ObservationType,
			Timestamp:       ob.Timestamp,
			TestID:          ob.TestID,
		})
		for i, d := range ob.Datas {
			if len(kept.Datas) >= lim.MaxDataCount {
				skips.OverCount += len(ob.Datas) - i
				break
			}
			if len(d.Data) == 0 {
				skips.Empty++
				continue
			}
			if len(d.Data) > lim.MaxDataSize {
				skips.Oversize++
				continue
			}
			kept.AddData(d.DataType, d.Data)
		}
	}
	return out, skips, DropNone
}
