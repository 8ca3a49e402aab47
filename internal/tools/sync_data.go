package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/history"
	"github.com/mbartocci/odoovec/internal/syncer"
)

// SyncModelDataTool handles the sync_model_data MCP tool.
type SyncModelDataTool struct {
	engine *syncer.Engine
	hist   *history.Store
}

// NewSyncModelDataTool creates a SyncModelDataTool.
func NewSyncModelDataTool(engine *syncer.Engine, hist *history.Store) *SyncModelDataTool {
	return &SyncModelDataTool{engine: engine, hist: hist}
}

// Definition returns the MCP tool definition for sync_model_data.
func (t *SyncModelDataTool) Definition() mcp.Tool {
	return mcp.NewTool("sync_model_data",
		mcp.WithDescription(
			"Fetch all records of one ERP model, encode them and sync them into "+
				"the vector store. Fields the ERP refuses to serve are excluded "+
				"automatically and reported.",
		),
		mcp.WithString("model",
			mcp.Required(),
			mcp.Description("Technical model name, e.g. crm.lead"),
		),
		mcp.WithNumber("batch_size",
			mcp.Description("Records per fetch batch (default: configured batch size)"),
		),
	)
}

// Handle processes the sync_model_data tool call.
func (t *SyncModelDataTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model := req.GetString("model", "")
	if model == "" {
		return mcp.NewToolResultError("'model' is required"), nil
	}

	res, err := t.engine.SyncModelData(ctx, model, intArg(req, "batch_size", 0), nil)
	if err == syncer.ErrAlreadyRunning {
		return mcp.NewToolResultText(fmt.Sprintf("A data sync for %s is already running.", model)), nil
	}

	run := history.Run{
		ID:         res.RunID,
		Kind:       history.KindData,
		Model:      model,
		Fetched:    res.Fetched,
		Upserted:   res.Upserted,
		Success:    err == nil && res.Success,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
	} else if !res.Success {
		run.Error = fmt.Sprintf("fields missing in schema: %s", strings.Join(res.MissingInSchema, ", "))
	}
	for _, r := range res.Restrictions {
		run.Restrictions = append(run.Restrictions, history.Restriction{
			FieldName: r.FieldName,
			Reason:    string(r.Reason),
			Offset:    r.DiscoveredAtOffset,
		})
	}
	recordRun(t.hist, run)

	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("data sync for %s failed: %v", model, err)), nil
	}
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf(
			"data sync for %s refused: sample record has fields unknown to the schema: %s",
			model, strings.Join(res.MissingInSchema, ", "))), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Data sync for %s complete (run %s):\n", model, res.RunID)
	fmt.Fprintf(&b, "  fetched: %d\n  upserted: %d\n  batches: %d\n", res.Fetched, res.Upserted, res.Batches)
	if len(res.Restrictions) > 0 {
		b.WriteString("  restricted fields:\n")
		for _, r := range res.Restrictions {
			fmt.Fprintf(&b, "    %s (%s, discovered at offset %d)\n", r.FieldName, r.Reason, r.DiscoveredAtOffset)
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return mcp.NewToolResultText(b.String()), nil
}
