// Package record encodes raw source records into coordinate-encoded
// strings and decodes them back through the schema registry.
package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/wire"
)

// FieldEncoding is one entry of an encoding map: the coordinate prefix and
// type used to encode a named field of one model.
type FieldEncoding struct {
	Coordinate   string
	FieldType    wire.FieldType
	IsForeignKey bool
	TargetModel  string
}

// EncodingMap maps field names of a single model to their wire encodings,
// in a stable iteration order.
type EncodingMap struct {
	Model   string
	ModelID int64
	fields  map[string]FieldEncoding
	order   []string
}

// BuildEncodingMap produces the encoding map for a model. The central
// rule: a many2one field does not use its owner's coordinate, it borrows
// the identity coordinate of the model it targets, so two records from
// different models referencing the same row produce byte-identical
// sub-segments for that relationship. To-many fields and scalars use the
// owner's own coordinate; the two rules must not be conflated.
//
// A many2one whose target model has no identity coordinate in the registry
// is an error: encoding it under the owner's coordinate would silently
// break the substitution invariant.
func BuildEncodingMap(reg *schema.Registry, model string) (*EncodingMap, error) {
	descriptors := reg.FieldsOf(model)
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("model %q has no fields in the schema registry", model)
	}

	m := &EncodingMap{
		Model:  model,
		fields: make(map[string]FieldEncoding, len(descriptors)),
	}
	if id, ok := reg.ModelID(model); ok {
		m.ModelID = id
	}

	var unresolved []string
	for _, d := range descriptors {
		enc := FieldEncoding{
			Coordinate:   d.Coordinate,
			FieldType:    d.FieldType,
			IsForeignKey: d.IsForeignKey(),
			TargetModel:  d.ForeignKeyTarget,
		}
		if d.FieldType == wire.FieldMany2one {
			identity, ok := reg.IdentityCoordinate(d.ForeignKeyTarget)
			if !ok {
				unresolved = append(unresolved, fmt.Sprintf("%s -> %s", d.FieldName, d.ForeignKeyTarget))
				continue
			}
			enc.Coordinate = identity
		}
		m.fields[d.FieldName] = enc
		m.order = append(m.order, d.FieldName)
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, fmt.Errorf("model %s has many2one fields with unresolvable targets: %s",
			model, strings.Join(unresolved, ", "))
	}
	return m, nil
}

// Field returns the encoding for a field name.
func (m *EncodingMap) Field(name string) (FieldEncoding, bool) {
	enc, ok := m.fields[name]
	return enc, ok
}

// FieldNames returns the mapped field names in stable encode order.
func (m *EncodingMap) FieldNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of mapped fields.
func (m *EncodingMap) Len() int { return len(m.fields) }

// ValidateSample checks a fetched record against the map and returns the
// field names the schema does not know about. Callers must abort the sync
// when any are present (fail-closed): the wire format must never carry
// undocumented fields.
func ValidateSample(m *EncodingMap, sample map[string]any) []string {
	var missing []string
	for name := range sample {
		if _, ok := m.fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
