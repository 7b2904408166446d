package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/fragment"
)

var (
	ingestToolName    = "memory_ingest"
	ingestDescription = "Store a fragment of context in working memory. Identical content is deduplicated by hash; the returned hash addresses the stored entry. Tag important content so it survives window eviction (user-marked, error, code, question)."
)

// IngestInput represents the input arguments for the memory_ingest tool.
type IngestInput struct {
	Content     string   `json:"content" jsonschema:"the raw fragment content to store"`
	ContentType string   `json:"content_type,omitempty" jsonschema:"kind of content: conversational-turn, file-snapshot, environment-state or derived-summary (default: conversational-turn)"`
	Tags        []string `json:"tags,omitempty" jsonschema:"importance tags: user-marked, error, code, question"`
}

// IngestOutput represents the structured output of a memory ingest.
type IngestOutput struct {
	Hash       string `json:"hash"`
	TokenCount int    `json:"token_count"`
}

// handleIngest processes a memory ingest request via MCP.
func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, IngestOutput, error) {
	if input.Content == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "content is required"},
			},
		}, IngestOutput{}, nil
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = string(fragment.TypeConversationalTurn)
	}
	if !fragment.ValidContentType(contentType) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("unknown content type: %q", contentType)},
			},
		}, IngestOutput{}, nil
	}

	tags := make([]fragment.Tag, 0, len(input.Tags))
	for _, t := range input.Tags {
		if !fragment.ValidTag(t) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("unknown tag: %q", t)},
				},
			}, IngestOutput{}, nil
		}
		tags = append(tags, fragment.Tag(t))
	}

	frag := fragment.New([]byte(input.Content), fragment.ContentType(contentType), fragment.Meta{Tags: tags})

	hash, err := s.config.Engine.Ingest(ctx, frag)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Ingest failed: %v", err)},
			},
		}, IngestOutput{}, nil
	}

	s.config.Logger.Debug("MCP ingest request",
		zap.String("hash", hash),
		zap.String("contentType", contentType),
	)

	output := IngestOutput{
		Hash:       hash,
		TokenCount: frag.TokenCount(),
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, IngestOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
