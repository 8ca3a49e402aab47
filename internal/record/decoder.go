package record

import (
	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/wire"
)

// DecodedField is one segment of a decoded record. Known is false when the
// coordinate did not resolve against the registry; the raw data is still
// carried; decode never drops data silently.
type DecodedField struct {
	Coordinate string
	Model      string
	FieldName  string
	FieldLabel string
	FieldType  wire.FieldType
	Value      any
	Raw        string
	Known      bool
}

// DecodedRecord groups decode output both as a flat ordered list and as a
// model-keyed map. Unknown segments group under the empty model key.
type DecodedRecord struct {
	Fields  []DecodedField
	ByModel map[string][]DecodedField
}

// Decode reconstructs a structured record from an encoded payload. It is
// total: malformed segments come back tagged unknown rather than failing
// the whole record.
func Decode(reg *schema.Registry, payload string) DecodedRecord {
	proto := reg.Protocol()
	out := DecodedRecord{ByModel: make(map[string][]DecodedField)}
	if payload == "" {
		return out
	}

	for _, segment := range proto.SplitFields(payload) {
		if segment == "" {
			continue
		}
		coord, raw, ok := proto.SplitSegment(segment)
		if !ok {
			// No value delimiter at all: keep the raw segment.
			out.add(DecodedField{Raw: segment, Value: proto.Unescape(segment)})
			continue
		}

		f := DecodedField{Coordinate: coord, Raw: raw}
		if d, found := reg.Lookup(coord); found {
			f.Known = true
			f.Model = d.OwnerModel
			f.FieldName = d.FieldName
			f.FieldLabel = d.FieldLabel
			f.FieldType = d.FieldType
			f.Value = proto.DecodeValue(raw, d.FieldType)
		} else {
			f.Value = proto.Unescape(raw)
		}
		out.add(f)
	}
	return out
}

// ModelsInOrder returns the model keys in first-appearance order, with
// the unknown-field group (empty key) always last.
func (r *DecodedRecord) ModelsInOrder() []string {
	var (
		models  []string
		seen    = make(map[string]bool)
		unknown bool
	)
	for _, f := range r.Fields {
		if f.Model == "" {
			unknown = true
			continue
		}
		if !seen[f.Model] {
			seen[f.Model] = true
			models = append(models, f.Model)
		}
	}
	if unknown {
		models = append(models, "")
	}
	return models
}

func (r *DecodedRecord) add(f DecodedField) {
	r.Fields = append(r.Fields, f)
	r.ByModel[f.Model] = append(r.ByModel[f.Model], f)
}
