package cti

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the CTI wire schema.
const (
	fieldReportOrganizationID protowire.Number = 1
	fieldReportSystemID       protowire.Number = 2
	fieldReportApplicationID  protowire.Number = 3
	fieldReportObservations   protowire.Number = 4

	fieldObservationType      protowire.Number = 1
	fieldObservationTimestamp protowire.Number = 2
	fieldObservationTestID    protowire.Number = 3
	fieldObservationDatas     protowire.Number = 4

	fieldDataType protowire.Number = 1
	fieldDataData protowire.Number = 2
)

// ErrMalformed is wrapped by every Unmarshal error caused by bad framing.
var ErrMalformed = errors.New("cti: malformed payload")

// Marshal encodes r into its protobuf wire form.
// Zero-valued scalars and empty byte fields are omitted.
func Marshal(r *Report) ([]byte, error) {
	if r == nil {
		return nil, errors.New("cti: marshal nil report")
	}
	if err := checkNil(r); err != nil {
		return nil, err
	}
	return appendReport(make([]byte, 0, Size(r)), r), nil
}

// Size returns the exact number of bytes Marshal produces for r. Nil
// observations and data items count as zero bytes; Marshal rejects them.
func Size(r *Report) int {
	if r == nil {
		return 0
	}
	n := sizeBytesField(fieldReportOrganizationID, r.OrganizationID)
	n += sizeBytesField(fieldReportSystemID, r.SystemID)
	n += sizeBytesField(fieldReportApplicationID, []byte(r.ApplicationID))
	for _, ob := range r.Observations {
		if ob == nil {
			continue
		}
		n += sizeMessageField(fieldReportObservations, sizeObservation(ob))
	}
	return n
}

// Unmarshal decodes a protobuf wire payload into a Report.
// Unknown fields are skipped. Byte fields never alias b.
func Unmarshal(b []byte) (*Report, error) {
	r := &Report{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("report tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldReportOrganizationID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("organization_id", n)
			}
			r.OrganizationID = clone(v)
			b = b[n:]
		case num == fieldReportSystemID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("system_id", n)
			}
			r.SystemID = clone(v)
			b = b[n:]
		case num == fieldReportApplicationID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("application_id", n)
			}
			r.ApplicationID = string(v)
			b = b[n:]
		case num == fieldReportObservations && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("observations", n)
			}
			ob, err := unmarshalObservation(v)
			if err != nil {
				return nil, err
			}
			r.Observations = append(r.Observations, ob)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(fmt.Sprintf("unknown field %d", num), n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func unmarshalObservation(b []byte) (*Observation, error) {
	ob := &Observation{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("observation tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldObservationType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed("observation_type", n)
			}
			ob.ObservationType = int32(v)
			b = b[n:]
		case num == fieldObservationTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed("timestamp", n)
			}
			ob.Timestamp = int64(v)
			b = b[n:]
		case num == fieldObservationTestID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed("test_id", n)
			}
			ob.TestID = int32(v)
			b = b[n:]
		case num == fieldObservationDatas && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("datas", n)
			}
			d, err := unmarshalDataItem(v)
			if err != nil {
				return nil, err
			}
			ob.Datas = append(ob.Datas, d)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(fmt.Sprintf("observation unknown field %d", num), n)
			}
			b = b[n:]
		}
	}
	return ob, nil
}

func unmarshalDataItem(b []byte) (*DataItem, error) {
	d := &DataItem{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("data item tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldDataType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed("data_type", n)
			}
			d.DataType = int32(v)
			b = b[n:]
		case num == fieldDataData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("data", n)
			}
			d.Data = clone(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(fmt.Sprintf("data item unknown field %d", num), n)
			}
			b = b[n:]
		}
	}
	return d, nil
}

// --- encoding ---------------------------------------------------------------

func appendReport(b []byte, r *Report) []byte {
	b = appendBytesField(b, fieldReportOrganizationID, r.OrganizationID)
	b = appendBytesField(b, fieldReportSystemID, r.SystemID)
	b = appendBytesField(b, fieldReportApplicationID, []byte(r.ApplicationID))
	for _, ob := range r.Observations {
		b = protowire.AppendTag(b, fieldReportObservations, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(sizeObservation(ob)))
		b = appendObservation(b, ob)
	}
	return b
}

func appendObservation(b []byte, ob *Observation) []byte {
	b = appendVarintField(b, fieldObservationType, uint64(int64(ob.ObservationType)))
	b = appendVarintField(b, fieldObservationTimestamp, uint64(ob.Timestamp))
	b = appendVarintField(b, fieldObservationTestID, uint64(int64(ob.TestID)))
	for _, d := range ob.Datas {
		b = protowire.AppendTag(b, fieldObservationDatas, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(sizeDataItem(d)))
		b = appendDataItem(b, d)
	}
	return b
}

func appendDataItem(b []byte, d *DataItem) []byte {
	b = appendVarintField(b, fieldDataType, uint64(int64(d.DataType)))
	return appendBytesField(b, fieldDataData, d.Data)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func sizeObservation(ob *Observation) int {
	n := sizeVarintField(fieldObservationType, uint64(int64(ob.ObservationType)))
	n += sizeVarintField(fieldObservationTimestamp, uint64(ob.Timestamp))
	n += sizeVarintField(fieldObservationTestID, uint64(int64(ob.TestID)))
	for _, d := range ob.Datas {
		if d == nil {
			continue
		}
		n += sizeMessageField(fieldObservationDatas, sizeDataItem(d))
	}
	return n
}

func sizeDataItem(d *DataItem) int {
	return sizeVarintField(fieldDataType, uint64(int64(d.DataType))) +
		sizeBytesField(fieldDataData, d.Data)
}

func sizeBytesField(num protowire.Number, v []byte) int {
	if len(v) == 0 {
		return 0
	}
	return protowire.SizeTag(num) + protowire.SizeBytes(len(v))
}

func sizeVarintField(num protowire.Number, v uint64) int {
	if v == 0 {
		return 0
	}
	return protowire.SizeTag(num) + protowire.SizeVarint(v)
}

func sizeMessageField(num protowire.Number, size int) int {
	return protowire.SizeTag(num) + protowire.SizeBytes(size)
}

// checkNil rejects nil entries in repeated fields; they have no wire form.
func checkNil(r *Report) error {
	for i, ob := range r.Observations {
		if ob == nil {
			return fmt.Errorf("cti: observation %d is nil", i)
		}
		for j, d := range ob.Datas {
			if d == nil {
				return fmt.Errorf("cti: observation %d data item %d is nil", i, j)
			}
		}
	}
	return nil
}

func malformed(what string, n int) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, what, protowire.ParseError(n))
}

func clone(v []byte) []byte {
	if len(v) == 0 {
		return nil
	}
	return append([]byte(nil), v...)
}
