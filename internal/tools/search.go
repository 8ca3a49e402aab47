package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/embed"
	"github.com/mbartocci/odoovec/internal/record"
	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/vector"
)

// SearchRecordsTool handles the search_records MCP tool.
type SearchRecordsTool struct {
	embedder embed.Embedder
	store    vector.Store
	loader   *schema.Loader
}

// NewSearchRecordsTool creates a SearchRecordsTool.
func NewSearchRecordsTool(embedder embed.Embedder, store vector.Store, loader *schema.Loader) *SearchRecordsTool {
	return &SearchRecordsTool{embedder: embedder, store: store, loader: loader}
}

// Definition returns the MCP tool definition for search_records.
func (t *SearchRecordsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_records",
		mcp.WithDescription(
			"Semantic search over synced ERP records. Returns the closest records "+
				"decoded into readable field: value lines, grouped by model.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — natural language or keywords"),
		),
		mcp.WithString("model",
			mcp.Description("Restrict results to one model, e.g. crm.lead"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5, max: 20)"),
		),
	)
}

// Handle processes the search_records tool call.
func (t *SearchRecordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	model := req.GetString("model", "")
	limit := intArg(req, "limit", 5)
	if limit > 20 {
		limit = 20
	}

	vectors, err := t.embedder.Embed(ctx, []string{query})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("embedding query: %v", err)), nil
	}

	hits, err := t.store.Search(ctx, vectors[0], limit, vector.Filter{Kind: vector.KindData, Model: model})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No records found matching your query."), nil
	}

	reg, err := t.loader.Registry(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading schema: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d records:\n\n", len(hits))
	for i, hit := range hits {
		fmt.Fprintf(&b, "[%d] %s #%d (score %.3f)\n", i+1, hit.Payload.Model, hit.Payload.RecordID, hit.Score)
		writeDecoded(&b, record.Decode(reg, hit.Payload.Encoded))
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}

// writeDecoded renders a decoded record grouped by the model each field
// belongs to. Unknown coordinates are listed last, by coordinate.
func writeDecoded(b *strings.Builder, rec record.DecodedRecord) {
	for _, model := range rec.ModelsInOrder() {
		label := model
		if label == "" {
			label = "(unknown fields)"
		}
		fmt.Fprintf(b, "    %s:\n", label)
		for _, f := range rec.ByModel[model] {
			name := f.FieldLabel
			if name == "" {
				name = f.FieldName
			}
			if name == "" {
				name = f.Coordinate
			}
			fmt.Fprintf(b, "      %s: %v\n", name, f.Value)
		}
	}
}
