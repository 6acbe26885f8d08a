package builder

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/additionsec/as-gateway/pkg/cti"
)

// Baseline identity shared by every scenario.
const (
	BaselineIDHex         = "bb54cfac59e73d9dae01b84bd476bbadde7d8747"
	BaselineApplicationID = "com.additionsecurity.deploytest"
)

// Defaults used by Observe.
const (
	DefaultTestID          int32 = 50
	DefaultObservationType int32 = 2
	DefaultDataType        int32 = 10
)

// FillerByte is the byte Inflate and Filler repeat ('A', valid UTF-8).
const FillerByte byte = 0x41

// Field names a top-level Report field for Inflate.
type Field string

const (
	FieldOrganizationID Field = "organization_id"
	FieldSystemID       Field = "system_id"
	FieldApplicationID  Field = "application_id"
)

// ErrUnknownField is returned by Inflate for a field it cannot inflate.
var ErrUnknownField = errors.New("builder: unknown field")

var baselineID = mustDecodeHex(BaselineIDHex)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("builder: bad baseline id %q: %v", s, err))
	}
	return b
}

// Builder stamps observations with the time from its clock.
type Builder struct {
	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces time.Now as the observation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New returns a Builder using the wall clock unless overridden.
func New(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Baseline returns a fresh report with the baseline identity and no
// observations. Each call returns independent slices.
func Baseline() *cti.Report {
	return &cti.Report{
		OrganizationID: bytes.Clone(baselineID),
		SystemID:       bytes.Clone(baselineID),
		ApplicationID:  BaselineApplicationID,
	}
}

// ObserveOption adjusts the observation appended by Observe.
type ObserveOption func(*observeOptions)

type observeOptions struct {
	dataType        int32
	observationType int32
	testID          int32
}

// WithDataType sets the data type of the wrapped payload.
func WithDataType(t int32) ObserveOption {
	return func(o *observeOptions) { o.dataType = t }
}

// WithObservationType sets the observation type.
func WithObservationType(t int32) ObserveOption {
	return func(o *observeOptions) { o.observationType = t }
}

// WithTestID sets the observation test id.
func WithTestID(id int32) ObserveOption {
	return func(o *observeOptions) { o.testID = id }
}

// Observe appends one observation holding a single data item that wraps
// payload, and returns it for further mutation.
func (b *Builder) Observe(r *cti.Report, payload []byte, opts ...ObserveOption) *cti.Observation {
	o := observeOptions{
		dataType:        DefaultDataType,
		observationType: DefaultObservationType,
		testID:          DefaultTestID,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ob := r.AddObservation(&cti.Observation{
		ObservationType: o.observationType,
		Timestamp:       b.now().Unix(),
		TestID:          o.testID,
	})
	ob.AddData(o.dataType, payload)
	return ob
}

// Inflate overwrites field with size filler bytes. A negative size is
// treated as zero.
func Inflate(r *cti.Report, field Field, size int) error {
	fill := Filler(size)
	switch field {
	case FieldOrganizationID:
		r.OrganizationID = fill
	case FieldSystemID:
		r.SystemID = fill
	case FieldApplicationID:
		r.ApplicationID = string(fill)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// RepeatDataItems appends count data items of DefaultDataType, each
// carrying payload. The items share the payload slice.
func RepeatDataItems(ob *cti.Observation, count int, payload []byte) {
	for range count {
		ob.AddData(DefaultDataType, payload)
	}
}

// Filler returns size bytes of FillerByte.
func Filler(size int) []byte {
	if size < 0 {
		size = 0
	}
	return bytes.Repeat([]byte{FillerByte}, size)
}
