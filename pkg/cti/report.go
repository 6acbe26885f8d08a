package cti

import "bytes"

// Report is the top-level record delivered to a collector.
type Report struct {
	// OrganizationID is nominally a 20-byte SHA-1 identifier but may hold any
	// number of bytes.
	OrganizationID []byte

	// SystemID has the same shape as OrganizationID.
	SystemID []byte

	// ApplicationID is a text identifier such as a package name.
	ApplicationID string

	// Observations are serialized in slice order.
	Observations []*Observation
}

// Observation is one sighting carried by a Report.
type Observation struct {
	ObservationType int32
	Timestamp       int64 // unix seconds
	TestID          int32
	Datas           []*DataItem
}

// DataItem is a typed payload blob attached to an Observation.
type DataItem struct {
	DataType int32
	Data     []byte
}

// AddObservation appends ob to r and returns it.
func (r *Report) AddObservation(ob *Observation) *Observation {
	r.Observations = append(r.Observations, ob)
	return ob
}

// AddData appends a DataItem with the given type and payload and returns it.
func (o *Observation) AddData(dataType int32, data []byte) *DataItem {
	d := &DataItem{DataType: dataType, Data: data}
	o.Datas = append(o.Datas, d)
	return d
}

// DataCount returns the total number of data items across all observations.
func (r *Report) DataCount() int {
	n := 0
	for _, ob := range r.Observations {
		n += len(ob.Datas)
	}
	return n
}

// Equal reports whether a and b carry the same field values in the same order.
// A nil byte slice and an empty one compare equal, as they encode identically.
func Equal(a, b *Report) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !bytes.Equal(a.OrganizationID, b.OrganizationID) ||
		!bytes.Equal(a.SystemID, b.SystemID) ||
		a.ApplicationID != b.ApplicationID ||
		len(a.Observations) != len(b.Observations) {
		return false
	}
	for i := range a.Observations {
		if !equalObservation(a.Observations[i], b.Observations[i]) {
			return false
		}
	}
	return true
}

func equalObservation(a, b *Observation) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ObservationType != b.ObservationType ||
		a.Timestamp != b.Timestamp ||
		a.TestID != b.TestID ||
		len(a.Datas) != len(b.Datas) {
		return false
	}
	for i := range a.Datas {
		x, y := a.Datas[i], b.Datas[i]
		if x == nil || y == nil {
			if x != y {
				return false
			}
			continue
		}
		if x.DataType != y.DataType || !bytes.Equal(x.Data, y.Data) {
			return false
		}
	}
	return true
}
