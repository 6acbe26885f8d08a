package scenario

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/additionsec/as-gateway/pkg/cti"
	"github.com/additionsec/as-gateway/probe/internal/builder"
)

// ErrUnknownScenario is returned when a name matches no catalog entry.
var ErrUnknownScenario = errors.New("scenario: unknown scenario")

// DefaultExpectStatus is the status every scenario expects unless overridden.
const DefaultExpectStatus = http.StatusOK

// OversizeBytes is the size of every inflated field or payload in the catalog.
const OversizeBytes = 8192

// RepeatedItems is the number of data items in repeated-data-items.
const RepeatedItems = 256

var devNull = []byte("/dev/null")

// Scenario is one independent build-send-check case.
type Scenario struct {
	Name        string
	Description string

	// ExpectStatus is the status that counts as a pass. Zero means
	// DefaultExpectStatus.
	ExpectStatus int

	Build func(b *builder.Builder) (*cti.Report, error)
}

// Expect returns the effective expected status.
func (s Scenario) Expect() int {
	if s.ExpectStatus == 0 {
		return DefaultExpectStatus
	}
	return s.ExpectStatus
}

// Catalog returns the built-in scenarios in run order.
func Catalog() []Scenario {
	return []Scenario{
		{
			Name:        "oversized-data",
			Description: "one data item of 8192 filler bytes",
			Build: func(b *builder.Builder) (*cti.Report, error) {
				r := builder.Baseline()
				b.Observe(r, builder.Filler(OversizeBytes))
				return r, nil
			},
		},
		inflated("oversized-organization-id", builder.FieldOrganizationID),
		inflated("oversized-system-id", builder.FieldSystemID),
		inflated("oversized-application-id", builder.FieldApplicationID),
		{
			Name:        "repeated-data-items",
			Description: "one observation with 256 /dev/null data items",
			Build: func(b *builder.Builder) (*cti.Report, error) {
				r := builder.Baseline()
				ob := b.Observe(r, devNull)
				builder.RepeatDataItems(ob, RepeatedItems-1, devNull)
				return r, nil
			},
		},
	}
}

// inflated returns a scenario that sends a /dev/null data item with field
// blown up to OversizeBytes.
func inflated(name string, field builder.Field) Scenario {
	return Scenario{
		Name:        name,
		Description: fmt.Sprintf("%s of %d filler bytes", field, OversizeBytes),
		Build: func(b *builder.Builder) (*cti.Report, error) {
			r := builder.Baseline()
			b.Observe(r, devNull)
			if err := builder.Inflate(r, field, OversizeBytes); err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

// Select returns the scenarios named in names, in catalog order. An empty
// names selects the whole catalog.
func Select(catalog []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return catalog, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []Scenario
	for _, s := range catalog {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, n)
	}
	return out, nil
}

// ApplyExpectations returns a copy of scenarios with ExpectStatus replaced
// from expect, keyed by name. Keys naming no scenario in the list are an
// error.
func ApplyExpectations(scenarios []Scenario, expect map[string]int) ([]Scenario, error) {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)

	seen := make(map[string]bool, len(expect))
	for i := range out {
		if code, ok := expect[out[i].Name]; ok {
			out[i].ExpectStatus = code
			seen[out[i].Name] = true
		}
	}
	for name := range expect {
		if !seen[name] {
			return nil, fmt.Errorf("%w: %q in expectations", ErrUnknownScenario, name)
		}
	}
	return out, nil
}
