// Package builder constructs CTI reports for the probe scenarios.
//
// Baseline() returns a report carrying the fixed deploy-test identity
// (organization and system id decoded from BaselineIDHex, application id
// BaselineApplicationID) and no observations. A Builder then appends
// observations stamped with its clock:
//
//	b := builder.New()
//	r := builder.Baseline()
//	ob := b.Observe(r, []byte("/dev/null"))
//	builder.RepeatDataItems(ob, 255, []byte("/dev/null"))
//	_ = builder.Inflate(r, builder.FieldOrganizationID, 8192)
//
// Nothing here validates sizes. Oversized values are the point: limits are
// the receiver's concern, so the builder never truncates or rejects them.
// Inflate fails only for an unknown field name (ErrUnknownField).
package builder
