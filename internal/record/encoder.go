package record

import (
	"fmt"
	"strings"

	"github.com/mbartocci/odoovec/internal/wire"
)

// EncodedRecord is the wire artifact for one source record.
type EncodedRecord struct {
	RecordID     int64
	Model        string
	ModelID      int64
	Payload      string
	SegmentCount int
}

// PointID returns the globally unique vector store identifier for this
// record.
func (r EncodedRecord) PointID() int64 {
	return wire.PointID(r.ModelID, r.RecordID)
}

// Encoder turns raw records of one model into coordinate-encoded strings.
// Fields marked restricted encode as the restriction marker instead of
// being fetched, so downstream records stay structurally complete.
type Encoder struct {
	proto      *wire.Protocol
	m          *EncodingMap
	restricted map[string]bool
}

// NewEncoder creates an encoder over a model's encoding map.
func NewEncoder(proto *wire.Protocol, m *EncodingMap) *Encoder {
	return &Encoder{proto: proto, m: m, restricted: make(map[string]bool)}
}

// Restrict marks a field as denied by the source system for the remainder
// of the run. Its segments carry the restriction marker from now on.
func (e *Encoder) Restrict(field string) {
	e.restricted[field] = true
}

// Encode produces one encoded record. It never fails on odd data values;
// those simply omit their segments; the only error is the programmer
// contract that a record must carry a numeric id.
func (e *Encoder) Encode(rec map[string]any) (EncodedRecord, error) {
	id, ok := recordID(rec)
	if !ok {
		return EncodedRecord{}, fmt.Errorf("record of model %s has no numeric id", e.m.Model)
	}

	var (
		b     strings.Builder
		count int
	)
	for _, name := range e.m.order {
		enc := e.m.fields[name]

		var segment string
		if e.restricted[name] {
			segment = enc.Coordinate + string(e.proto.ValueDelim) + wire.RestrictedMarker
		} else {
			v, present := rec[name]
			if !present {
				continue // field was not attempted
			}
			value, emit := e.proto.EncodeValue(v, enc.FieldType)
			if !emit {
				continue
			}
			segment = enc.Coordinate + string(e.proto.ValueDelim) + value
		}
		if count > 0 {
			b.WriteByte(e.proto.FieldDelim)
		}
		b.WriteString(segment)
		count++
	}

	return EncodedRecord{
		RecordID:     id,
		Model:        e.m.Model,
		ModelID:      e.m.ModelID,
		Payload:      b.String(),
		SegmentCount: count,
	}, nil
}

// EncodeBatch encodes a fetched batch in order.
func (e *Encoder) EncodeBatch(recs []map[string]any) ([]EncodedRecord, error) {
	out := make([]EncodedRecord, 0, len(recs))
	for i, rec := range recs {
		enc, err := e.Encode(rec)
		if err != nil {
			return nil, fmt.Errorf("encoding record %d: %w", i, err)
		}
		out = append(out, enc)
	}
	return out, nil
}

func recordID(rec map[string]any) (int64, bool) {
	switch v := rec["id"].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
