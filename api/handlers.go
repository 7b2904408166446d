package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/fragment"
)

// ErrorResponse is the JSON envelope returned by failing endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestRequest is the body of POST /memory/fragments.
type IngestRequest struct {
	// Content is the raw fragment payload
	Content string `json:"content"`
	// ContentType names the kind of content; defaults to conversational-turn
	ContentType string `json:"content_type,omitempty"`
	// Tags are importance flags attached at creation
	Tags []string `json:"tags,omitempty"`
}

// IngestResponse reports where an ingested fragment landed.
type IngestResponse struct {
	Hash       string `json:"hash"`
	RefCount   int    `json:"ref_count"`
	TokenCount int    `json:"token_count"`
}

// EntryResponse describes a stored entry along with its reconstructed content.
type EntryResponse struct {
	Hash           string    `json:"hash"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	Tags           []string  `json:"tags,omitempty"`
	Tier           string    `json:"tier"`
	Compression    string    `json:"compression"`
	OriginalSize   int64     `json:"original_size"`
	ReferenceCount int       `json:"reference_count"`
	TokenCount     int       `json:"token_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessed   time.Time `json:"last_accessed"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns per-tier store statistics and window occupancy.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.engine.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to collect stats"})
	}

	return c.JSON(stats)
}

// handleIngest stores a fragment and admits it into the context window.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = string(fragment.TypeConversationalTurn)
	}
	if !fragment.ValidContentType(contentType) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: fmt.Sprintf("unknown content type: %q", contentType),
		})
	}

	tags := make([]fragment.Tag, 0, len(req.Tags))
	for _, t := range req.Tags {
		if !fragment.ValidTag(t) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: fmt.Sprintf("unknown tag: %q", t),
			})
		}
		tags = append(tags, fragment.Tag(t))
	}

	frag := fragment.New([]byte(req.Content), fragment.ContentType(contentType), fragment.Meta{Tags: tags})

	hash, err := s.engine.Ingest(c.Context(), frag)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to ingest fragment"})
	}

	resp := IngestResponse{
		Hash:       hash,
		TokenCount: frag.TokenCount(),
	}
	if entry, err := s.engine.Entry(c.Context(), hash); err == nil {
		resp.RefCount = entry.ReferenceCount
	}

	return c.JSON(resp)
}

// handleGetEntry returns a single stored entry by its hash.
func (s *Server) handleGetEntry(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "hash parameter required"})
	}

	entry, err := s.engine.Entry(c.Context(), hash)
	if err != nil {
		if contentstore.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "entry not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load entry"})
	}

	content, err := s.engine.Get(c.Context(), hash)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to reconstruct content"})
	}

	return c.JSON(buildEntryResponse(entry, content))
}

// handleRelease drops one reference to an entry and removes it from the
// context window. The bytes stay in the store until the garbage collector's
// grace period has passed.
func (s *Server) handleRelease(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "hash parameter required"})
	}

	if err := s.engine.Release(c.Context(), hash); err != nil {
		if contentstore.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "entry not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to release entry"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// buildEntryResponse flattens an entry and its content into the API shape.
func buildEntryResponse(entry *contentstore.Entry, content []byte) EntryResponse {
	tags := make([]string, 0, len(entry.Tags))
	for _, t := range entry.Tags {
		tags = append(tags, string(t))
	}

	return EntryResponse{
		Hash:           entry.Hash,
		Content:        string(content),
		ContentType:    string(entry.ContentType),
		Tags:           tags,
		Tier:           string(entry.Tier),
		Compression:    string(entry.Compression),
		OriginalSize:   entry.OriginalSize,
		ReferenceCount: entry.ReferenceCount,
		TokenCount:     fragment.TokenEstimate(len(content)),
		CreatedAt:      entry.CreatedAt,
		LastAccessed:   entry.LastAccessed,
	}
}
