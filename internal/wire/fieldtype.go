package wire

// FieldType is the logical type of a field value as understood by the
// coordinate codec. The names match the source system's field type
// vocabulary so schema rows can be parsed without a translation table.
type FieldType string

const (
	FieldChar      FieldType = "char"
	FieldText      FieldType = "text"
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldBoolean   FieldType = "boolean"
	FieldDate      FieldType = "date"
	FieldDatetime  FieldType = "datetime"
	FieldSelection FieldType = "selection"
	FieldMany2one  FieldType = "many2one"
	FieldOne2many  FieldType = "one2many"
	FieldMany2many FieldType = "many2many"
	FieldBinary    FieldType = "binary"
)

var knownFieldTypes = map[FieldType]bool{
	FieldChar:      true,
	FieldText:      true,
	FieldInteger:   true,
	FieldFloat:     true,
	FieldBoolean:   true,
	FieldDate:      true,
	FieldDatetime:  true,
	FieldSelection: true,
	FieldMany2one:  true,
	FieldOne2many:  true,
	FieldMany2many: true,
	FieldBinary:    true,
}

// ParseFieldType validates a field type string from an external source.
func ParseFieldType(s string) (FieldType, bool) {
	ft := FieldType(s)
	return ft, knownFieldTypes[ft]
}

// IsRelational reports whether the type points at other records
// (many2one, one2many or many2many).
func (ft FieldType) IsRelational() bool {
	return ft == FieldMany2one || ft == FieldOne2many || ft == FieldMany2many
}

// IsToMany reports whether the type holds a list of related record ids.
func (ft FieldType) IsToMany() bool {
	return ft == FieldOne2many || ft == FieldMany2many
}
