package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/record"
	"github.com/mbartocci/odoovec/internal/schema"
)

// DecodeRecordTool handles the decode_record MCP tool.
type DecodeRecordTool struct {
	loader *schema.Loader
}

// NewDecodeRecordTool creates a DecodeRecordTool.
func NewDecodeRecordTool(loader *schema.Loader) *DecodeRecordTool {
	return &DecodeRecordTool{loader: loader}
}

// Definition returns the MCP tool definition for decode_record.
func (t *DecodeRecordTool) Definition() mcp.Tool {
	return mcp.NewTool("decode_record",
		mcp.WithDescription(
			"Decode a coordinate-encoded record string into readable fields. "+
				"Useful for inspecting what a stored point actually contains.",
		),
		mcp.WithString("encoded",
			mcp.Required(),
			mcp.Description("The encoded record string, e.g. 344^6320*12345|344^6327*Hospital Project"),
		),
	)
}

// Handle processes the decode_record tool call.
func (t *DecodeRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	encoded := req.GetString("encoded", "")
	if encoded == "" {
		return mcp.NewToolResultError("'encoded' is required"), nil
	}

	reg, err := t.loader.Registry(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading schema: %v", err)), nil
	}

	rec := record.Decode(reg, encoded)
	if len(rec.Fields) == 0 {
		return mcp.NewToolResultText("Nothing to decode: the input has no segments."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decoded %d segments:\n", len(rec.Fields))
	writeDecoded(&b, rec)
	unknown := len(rec.ByModel[""])
	if unknown > 0 {
		fmt.Fprintf(&b, "\n%d segment(s) did not resolve against the current schema.\n", unknown)
	}
	return mcp.NewToolResultText(b.String()), nil
}
