package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/engram/pkg/fragment"
	"github.com/papercomputeco/engram/pkg/memory"
)

// RecallResponse is the assembled context for a query.
type RecallResponse struct {
	Query       string `json:"query"`
	Context     string `json:"context"`
	TokenBudget int    `json:"token_budget"`
	TokenCount  int    `json:"token_count"`
}

// handleRecallEndpoint handles GET /v1/recall requests.
// Query parameters:
//   - query (required): the recall query text
//   - budget (optional, default 8192): token budget for the assembled context
func (s *Server) handleRecallEndpoint(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	budget := memory.DefaultMaxWindowTokens
	if budgetStr := c.Query("budget"); budgetStr != "" {
		parsed, err := strconv.Atoi(budgetStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "budget must be a positive integer",
			})
		}
		budget = parsed
	}

	content, err := s.engine.AssembleContext(c.Context(), query, budget)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(RecallResponse{
		Query:       query,
		Context:     content,
		TokenBudget: budget,
		TokenCount:  fragment.TokenEstimate(len(content)),
	})
}
