// Package schema holds the field descriptor registry: the single source of
// truth mapping a wire coordinate to the field it identifies, with lookup
// by coordinate, by owning model, and by foreign-key target.
package schema

import (
	"strings"

	"github.com/mbartocci/odoovec/internal/wire"
)

// StorageComputed is the storage location literal for non-stored,
// computed fields.
const StorageComputed = "Computed"

// FieldDescriptor is one row of the registry: everything known about a
// single field of a source-system model.
type FieldDescriptor struct {
	// Coordinate is the field's unique wire key (e.g. "344^6327" for the
	// dynamic protocol, "O_1" for the letter protocol).
	Coordinate string

	// ModelID and FieldID are the numeric identities behind a dynamic
	// coordinate. Zero for coordinate formats that carry no ids.
	ModelID int64
	FieldID int64

	// OwnerModel is the technical model name, e.g. "crm.lead".
	OwnerModel string

	// FieldName is the technical field name, FieldLabel the display name.
	FieldName  string
	FieldLabel string

	FieldType wire.FieldType

	// StorageLocation describes where the value physically lives:
	// "<model>.<field>" for native fields, "<targetModel>.id" for
	// relational fields, or the literal "Computed".
	StorageLocation string

	IsStored bool

	// ForeignKeyTarget is the target model name, set iff the field type
	// is relational.
	ForeignKeyTarget string
}

// IsForeignKey reports whether this field points at other records. It is
// derived from the field type, never stored.
func (d *FieldDescriptor) IsForeignKey() bool {
	return d.FieldType.IsRelational()
}

// targetFromStorage derives the foreign-key target model from a
// "<targetModel>.id" storage location.
func targetFromStorage(storage string) string {
	if t, ok := strings.CutSuffix(storage, ".id"); ok {
		return t
	}
	return ""
}
