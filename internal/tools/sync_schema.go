package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/history"
	"github.com/mbartocci/odoovec/internal/syncer"
)

// SyncSchemaTool handles the sync_schema MCP tool.
type SyncSchemaTool struct {
	engine *syncer.Engine
	hist   *history.Store
}

// NewSyncSchemaTool creates a SyncSchemaTool.
func NewSyncSchemaTool(engine *syncer.Engine, hist *history.Store) *SyncSchemaTool {
	return &SyncSchemaTool{engine: engine, hist: hist}
}

// Definition returns the MCP tool definition for sync_schema.
func (t *SyncSchemaTool) Definition() mcp.Tool {
	return mcp.NewTool("sync_schema",
		mcp.WithDescription(
			"Sync the ERP field schema into the vector store. Only fields whose "+
				"description changed since the last run are re-embedded.",
		),
	)
}

// Handle processes the sync_schema tool call.
func (t *SyncSchemaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.engine.SyncSchema(ctx)
	if err == syncer.ErrAlreadyRunning {
		return mcp.NewToolResultText("A schema sync is already running."), nil
	}

	run := history.Run{
		ID:         res.RunID,
		Kind:       history.KindSchema,
		Added:      len(res.Diff.Added),
		Modified:   len(res.Diff.Modified),
		Deleted:    len(res.Diff.Deleted),
		Unchanged:  len(res.Diff.Unchanged),
		Success:    err == nil,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	recordRun(t.hist, run)

	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schema sync failed in phase %s: %v", res.Phase, err)), nil
	}
	if res.Skipped {
		return mcp.NewToolResultText("Schema unchanged since last sync, nothing to do."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schema sync complete (run %s):\n", res.RunID)
	fmt.Fprintf(&b, "  added: %d\n  modified: %d\n  deleted: %d\n  unchanged: %d\n",
		len(res.Diff.Added), len(res.Diff.Modified), len(res.Diff.Deleted), len(res.Diff.Unchanged))
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return mcp.NewToolResultText(b.String()), nil
}
