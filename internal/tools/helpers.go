// Package tools provides the MCP tool handlers exposed by the server.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
package tools

import (
	"log"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbartocci/odoovec/internal/history"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// recordRun writes a run to the audit store when one is configured.
// History is observability; a write failure never fails the tool call.
func recordRun(store *history.Store, run history.Run) {
	if store == nil {
		return
	}
	if err := store.RecordRun(run); err != nil {
		log.Printf("recording run %s: %v", run.ID, err)
	}
}
