package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/fragment"
	"github.com/papercomputeco/engram/pkg/memory"
)

var (
	recallToolName    = "memory_recall"
	recallDescription = "Recall working memory relevant to a query. Returns an assembled context string that merges the most recent fragments with semantically similar historical ones, trimmed to fit the token budget. Use this to restore context from earlier in the session or from past sessions."
)

// RecallInput represents the input arguments for the memory_recall tool.
type RecallInput struct {
	Query       string `json:"query" jsonschema:"the query text describing what to recall"`
	TokenBudget int    `json:"token_budget,omitempty" jsonschema:"maximum tokens in the assembled context (default: 8192)"`
}

// RecallOutput represents the structured output of a memory recall.
type RecallOutput struct {
	Query      string `json:"query"`
	Context    string `json:"context"`
	TokenCount int    `json:"token_count"`
}

// handleRecall processes a memory recall request via MCP.
func (s *Server) handleRecall(ctx context.Context, _ *mcp.CallToolRequest, input RecallInput) (*mcp.CallToolResult, RecallOutput, error) {
	if input.Query == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "query is required"},
			},
		}, RecallOutput{}, nil
	}

	budget := input.TokenBudget
	if budget <= 0 {
		budget = memory.DefaultMaxWindowTokens
	}

	s.config.Logger.Debug("MCP recall request",
		zap.String("query", input.Query),
		zap.Int("tokenBudget", budget),
	)

	content, err := s.config.Engine.AssembleContext(ctx, input.Query, budget)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Context assembly failed: %v", err)},
			},
		}, RecallOutput{}, nil
	}

	output := RecallOutput{
		Query:      input.Query,
		Context:    content,
		TokenCount: fragment.TokenEstimate(len(content)),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, RecallOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
