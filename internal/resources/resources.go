// Package resources implements the MCP resource handlers.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (odoovec://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/history"
	"github.com/mbartocci/odoovec/internal/schema"
)

// Handler manages the resource endpoints.
type Handler struct {
	loader *schema.Loader
	hist   *history.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(loader *schema.Loader, hist *history.Store) *Handler {
	return &Handler{loader: loader, hist: hist}
}

// SchemaResource returns the MCP resource definition for the model map.
func (h *Handler) SchemaResource() mcp.Resource {
	return mcp.NewResource(
		"odoovec://schema/models",
		"ERP Schema Models",
		mcp.WithResourceDescription("Models known to the schema registry with their fields, types and relations"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSchema returns the registry's model map as JSON.
func (h *Handler) HandleSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reg, err := h.loader.Registry(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	type fieldView struct {
		Name       string `json:"name"`
		Label      string `json:"label"`
		Type       string `json:"type"`
		Coordinate string `json:"coordinate"`
		Target     string `json:"target,omitempty"`
	}
	models := map[string][]fieldView{}
	for _, model := range reg.Models() {
		for _, d := range reg.FieldsOf(model) {
			models[model] = append(models[model], fieldView{
				Name:       d.FieldName,
				Label:      d.FieldLabel,
				Type:       string(d.FieldType),
				Coordinate: d.Coordinate,
				Target:     d.ForeignKeyTarget,
			})
		}
	}

	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// StatusResource returns the MCP resource definition for sync status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"odoovec://sync/status",
		"Sync Run History",
		mcp.WithResourceDescription("Recent sync runs with outcomes and field restrictions"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the recent run history as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.hist == nil {
		return errorResource(req.Params.URI, "run history is not configured"), nil
	}
	runs, err := h.hist.RecentRuns(20)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	text, err := history.MarshalRuns(runs)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     text,
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
