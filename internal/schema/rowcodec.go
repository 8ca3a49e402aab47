package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mbartocci/odoovec/internal/wire"
)

// The schema bootstrap file is a schema-of-schema: each line is itself a
// coordinate-encoded row describing one field, under a reserved coordinate
// namespace distinct from ordinary data. Model id 1 is reserved for these
// meta rows; its nine field ordinals are fixed.
const (
	MetaModelID = 1

	metaModelID    = 1 // numeric id of the described model
	metaFieldID    = 2 // numeric id of the described field
	metaFieldName  = 3 // technical field name
	metaFieldLabel = 4 // display label
	metaFieldType  = 5 // field type name
	metaModelName  = 6 // technical model name
	metaStorage    = 7 // primary data storage location
	metaStored     = 8 // "Yes" when the field is stored
	metaPrimaryRef = 9 // combined modelId^fieldId reference
)

// storedYes is the literal the stored-flag column uses; anything else
// means not stored.
const storedYes = "Yes"

// ParseRow decodes one schema-of-schema line into a descriptor. The error
// is diagnostic only; callers drop the row and keep loading.
func ParseRow(proto *wire.Protocol, line string) (FieldDescriptor, error) {
	var d FieldDescriptor
	cols := make(map[int64]string)

	segments := proto.SplitFields(line)
	if len(segments) < 2 {
		return d, fmt.Errorf("too few segments (%d)", len(segments))
	}
	for _, seg := range segments {
		coordText, raw, ok := proto.SplitSegment(seg)
		if !ok {
			return d, fmt.Errorf("segment %q has no value delimiter", seg)
		}
		coord, ok := proto.ParseCoordinate(coordText)
		if !ok || coord.ModelID != MetaModelID {
			return d, fmt.Errorf("segment %q is outside the reserved namespace", seg)
		}
		cols[coord.FieldID] = proto.Unescape(raw)
	}

	modelID, err := strconv.ParseInt(cols[metaModelID], 10, 64)
	if err != nil {
		return d, fmt.Errorf("unparsable model id %q", cols[metaModelID])
	}
	fieldID, err := strconv.ParseInt(cols[metaFieldID], 10, 64)
	if err != nil {
		return d, fmt.Errorf("unparsable field id %q", cols[metaFieldID])
	}
	name := cols[metaFieldName]
	model := cols[metaModelName]
	if name == "" || model == "" {
		return d, fmt.Errorf("missing field name or model name")
	}
	ft, ok := wire.ParseFieldType(cols[metaFieldType])
	if !ok {
		return d, fmt.Errorf("unknown field type %q", cols[metaFieldType])
	}

	d = FieldDescriptor{
		Coordinate:      proto.FormatCoordinate(modelID, fieldID),
		ModelID:         modelID,
		FieldID:         fieldID,
		OwnerModel:      model,
		FieldName:       name,
		FieldLabel:      cols[metaFieldLabel],
		FieldType:       ft,
		StorageLocation: cols[metaStorage],
		IsStored:        cols[metaStored] == storedYes,
	}
	if d.FieldLabel == "" {
		d.FieldLabel = name
	}
	if d.IsForeignKey() {
		d.ForeignKeyTarget = targetFromStorage(d.StorageLocation)
	}
	// The primary reference column repeats the coordinate; when present it
	// must agree with the id columns.
	if ref := cols[metaPrimaryRef]; ref != "" && ref != d.Coordinate {
		return FieldDescriptor{}, fmt.Errorf("primary reference %q disagrees with ids %q", ref, d.Coordinate)
	}
	return d, nil
}

// FormatRow encodes a descriptor as one schema-of-schema line, the inverse
// of ParseRow.
func FormatRow(proto *wire.Protocol, d FieldDescriptor) string {
	stored := "No"
	if d.IsStored {
		stored = storedYes
	}
	cols := []struct {
		ordinal int64
		value   string
	}{
		{metaModelID, strconv.FormatInt(d.ModelID, 10)},
		{metaFieldID, strconv.FormatInt(d.FieldID, 10)},
		{metaFieldName, d.FieldName},
		{metaFieldLabel, d.FieldLabel},
		{metaFieldType, string(d.FieldType)},
		{metaModelName, d.OwnerModel},
		{metaStorage, d.StorageLocation},
		{metaStored, stored},
		{metaPrimaryRef, d.Coordinate},
	}
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		coord := proto.FormatCoordinate(MetaModelID, col.ordinal)
		parts = append(parts, coord+string(proto.ValueDelim)+proto.Escape(col.value))
	}
	return strings.Join(parts, string(proto.FieldDelim))
}
