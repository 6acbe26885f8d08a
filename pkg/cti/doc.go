// Package cti defines the CTI report record shared by the probe and the
// collector, together with its protobuf wire codec.
//
// Top-level types:
//   - Report{OrganizationID, SystemID, ApplicationID, Observations}
//   - Observation{ObservationType, Timestamp, TestID, Datas}
//   - DataItem{DataType, Data}
//
// The model enforces no limits: oversized identifiers and payloads are legal
// values. Limits are the receiver's concern (see collector/internal/receiver).
//
// Marshal/Unmarshal implement the tag-length-value encoding directly on top of
// protowire, so no generated code is needed. Marshal is deterministic: fields
// are written in field-number order and repeated elements in slice order,
// which lets callers compare payload bytes across runs.
//
// Descriptor builds the equivalent protobuf message descriptor at runtime;
// ToJSON uses it with dynamicpb and protojson to render a raw payload for
// humans (probe decode).
package cti
