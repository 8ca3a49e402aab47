// Package prompts implements the MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ExplorePrompt handles the odoovec-explore MCP prompt.
// It guides the AI through searching the synced ERP data for a topic.
type ExplorePrompt struct{}

// NewExplorePrompt creates an ExplorePrompt.
func NewExplorePrompt() *ExplorePrompt {
	return &ExplorePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ExplorePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("odoovec-explore",
		mcp.WithPromptDescription(
			"Explore the synced ERP data around a topic. "+
				"Searches records semantically, follows foreign-key relations "+
				"and summarizes what it finds.",
		),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What to look for, e.g. 'hospital construction deals'"),
		),
		mcp.WithArgument("model",
			mcp.ArgumentDescription("Optional model to restrict the search to, e.g. crm.lead"),
		),
	)
}

// Handle processes the odoovec-explore prompt request.
func (p *ExplorePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := "recent activity"
	model := ""
	if args := req.Params.Arguments; args != nil {
		if t, ok := args["topic"]; ok && t != "" {
			topic = t
		}
		if m, ok := args["model"]; ok {
			model = m
		}
	}

	scope := ""
	if model != "" {
		scope = fmt.Sprintf(" restricted to the %s model", model)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Explore ERP data: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to explore the ERP data around '%s'%s.\n\n"+
						"Please:\n"+
						"1. Run `list_models` so you know which models are synced\n"+
						"2. Run `search_records` with my topic as the query\n"+
						"3. For the most relevant hits, note the foreign-key fields (they decode under the target model) and search again for related records\n"+
						"4. Summarize what the records say about the topic, citing record ids\n",
					topic, scope,
				)),
			},
		},
	}, nil
}
