package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/history"
)

// SyncStatusTool handles the sync_status MCP tool.
type SyncStatusTool struct {
	hist *history.Store
}

// NewSyncStatusTool creates a SyncStatusTool.
func NewSyncStatusTool(hist *history.Store) *SyncStatusTool {
	return &SyncStatusTool{hist: hist}
}

// Definition returns the MCP tool definition for sync_status.
func (t *SyncStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("sync_status",
		mcp.WithDescription(
			"Show recent sync runs with their outcomes, counts and any field "+
				"restrictions the ERP imposed.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Max runs to show (default: 10)"),
		),
	)
}

// Handle processes the sync_status tool call.
func (t *SyncStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.hist == nil {
		return mcp.NewToolResultText("Run history is not configured."), nil
	}
	limit := intArg(req, "limit", 10)

	runs, err := t.hist.RecentRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading run history: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No sync runs recorded yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d sync runs:\n\n", len(runs))
	for i, r := range runs {
		outcome := "ok"
		if !r.Success {
			outcome = "FAILED"
		}
		switch r.Kind {
		case history.KindSchema:
			fmt.Fprintf(&b, "[%d] %s schema %s: added=%d modified=%d deleted=%d unchanged=%d (%dms)\n",
				i+1, r.StartedAt, outcome, r.Added, r.Modified, r.Deleted, r.Unchanged, r.DurationMS)
		default:
			fmt.Fprintf(&b, "[%d] %s data %s %s: fetched=%d upserted=%d (%dms)\n",
				i+1, r.StartedAt, r.Model, outcome, r.Fetched, r.Upserted, r.DurationMS)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", r.Error)
		}
		for _, restr := range r.Restrictions {
			fmt.Fprintf(&b, "    restricted: %s (%s)\n", restr.FieldName, restr.Reason)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
