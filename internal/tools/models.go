package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/schema"
)

// ListModelsTool handles the list_models MCP tool.
type ListModelsTool struct {
	loader *schema.Loader
}

// NewListModelsTool creates a ListModelsTool.
func NewListModelsTool(loader *schema.Loader) *ListModelsTool {
	return &ListModelsTool{loader: loader}
}

// Definition returns the MCP tool definition for list_models.
func (t *ListModelsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_models",
		mcp.WithDescription(
			"List the ERP models known to the schema registry, with their field counts.",
		),
	)
}

// Handle processes the list_models tool call.
func (t *ListModelsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg, err := t.loader.Registry(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading schema: %v", err)), nil
	}

	models := reg.Models()
	if len(models) == 0 {
		return mcp.NewToolResultText("The schema registry is empty. Run sync_schema first."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d models in the registry:\n\n", len(models))
	for _, model := range models {
		fields := reg.FieldsOf(model)
		refs := len(reg.ReferencesTo(model))
		fmt.Fprintf(&b, "  %s — %d fields", model, len(fields))
		if refs > 0 {
			fmt.Fprintf(&b, ", referenced by %d relation(s)", refs)
		}
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}
