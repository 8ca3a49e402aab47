package schema

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Describe generates the semantic text that gets embedded for a field.
// Two descriptors that produce the same text hash identically in the sync
// engine, so only meaning-changing schema edits trigger re-embedding.
//
// The text is NFC-normalized so cosmetically different byte sequences for
// the same label (composed vs decomposed accents) do not churn checksums.
func Describe(d *FieldDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) on model %s: %s field", d.FieldLabel, d.FieldName, d.OwnerModel, d.FieldType)
	if d.IsForeignKey() && d.ForeignKeyTarget != "" {
		fmt.Fprintf(&b, " referencing %s", d.ForeignKeyTarget)
	}
	switch {
	case d.StorageLocation == StorageComputed:
		b.WriteString(", computed")
	case d.StorageLocation != "":
		fmt.Fprintf(&b, ", stored at %s", d.StorageLocation)
	}
	return norm.NFC.String(b.String())
}

// DescribeModel generates the query-side text for semantic discovery of a
// model, matching the register the field descriptions are written in.
func DescribeModel(model string, fields []*FieldDescriptor) string {
	names := make([]string, 0, len(fields))
	for _, d := range fields {
		names = append(names, d.FieldName)
	}
	return norm.NFC.String(fmt.Sprintf("model %s with fields %s", model, strings.Join(names, ", ")))
}
