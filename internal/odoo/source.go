package odoo

import (
	"context"
	"fmt"

	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/wire"
)

// MetadataSource builds the schema registry from the source system's own
// metadata tables (ir.model / ir.model.fields), yielding the dynamic
// protocol's modelId^fieldId coordinates straight from live ids.
type MetadataSource struct {
	Client *Client
	Proto  *wire.Protocol
	Models []string
}

// NewMetadataSource creates a source limited to the given models.
func NewMetadataSource(client *Client, proto *wire.Protocol, models []string) *MetadataSource {
	return &MetadataSource{Client: client, Proto: proto, Models: models}
}

// Load queries metadata for every configured model.
func (s *MetadataSource) Load(ctx context.Context) ([]schema.FieldDescriptor, error) {
	if len(s.Models) == 0 {
		return nil, fmt.Errorf("metadata source has no models configured")
	}

	models, err := s.Client.SearchRead(ctx, "ir.model",
		[]any{[]any{"model", "in", s.Models}}, []string{"id", "model"}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reading ir.model: %w", err)
	}
	modelIDs := make(map[string]int64, len(models))
	for _, m := range models {
		name, _ := m["model"].(string)
		if id, ok := numericID(m["id"]); ok && name != "" {
			modelIDs[name] = id
		}
	}
	for _, want := range s.Models {
		if _, ok := modelIDs[want]; !ok {
			return nil, fmt.Errorf("model %q not found in ir.model", want)
		}
	}

	rows, err := s.Client.SearchRead(ctx, "ir.model.fields",
		[]any{[]any{"model", "in", s.Models}},
		[]string{"id", "name", "field_description", "ttype", "relation", "store", "model"}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reading ir.model.fields: %w", err)
	}

	fields := make([]schema.FieldDescriptor, 0, len(rows))
	for _, row := range rows {
		d, ok := s.descriptorFromRow(modelIDs, row)
		if !ok {
			continue // unsupported field type, not an error
		}
		fields = append(fields, d)
	}
	return fields, nil
}

func (s *MetadataSource) descriptorFromRow(modelIDs map[string]int64, row map[string]any) (schema.FieldDescriptor, bool) {
	var d schema.FieldDescriptor

	model, _ := row["model"].(string)
	name, _ := row["name"].(string)
	fieldID, okID := numericID(row["id"])
	modelID, okModel := modelIDs[model]
	if !okID || !okModel || name == "" {
		return d, false
	}
	ft, ok := wire.ParseFieldType(stringOr(row["ttype"], ""))
	if !ok {
		return d, false
	}

	label := stringOr(row["field_description"], name)
	stored, _ := row["store"].(bool)
	relation := stringOr(row["relation"], "")

	d = schema.FieldDescriptor{
		Coordinate: s.Proto.FormatCoordinate(modelID, fieldID),
		ModelID:    modelID,
		FieldID:    fieldID,
		OwnerModel: model,
		FieldName:  name,
		FieldLabel: label,
		FieldType:  ft,
		IsStored:   stored,
	}
	switch {
	case ft.IsRelational() && relation != "":
		d.StorageLocation = relation + ".id"
		d.ForeignKeyTarget = relation
	case stored:
		d.StorageLocation = model + "." + name
	default:
		d.StorageLocation = schema.StorageComputed
	}
	return d, true
}

func numericID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}

// stringOr tolerates the source system's false-for-unset sentinel.
func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
