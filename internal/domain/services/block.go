package services

import (
	"context"

	"arbor/internal/domain/models"
)

// BlockService handles content block business logic. Every content write
// is sanitized exactly once, here, immediately before persistence.
type BlockService interface {
	// CreateBlock creates a block. A nil Order appends: the new block takes
	// position == count of the page's live blocks.
	CreateBlock(ctx context.Context, req *CreateBlockRequest) (*models.Block, error)

	// GetBlock retrieves a block with its attachments.
	GetBlock(ctx context.Context, blockID string) (*models.Block, error)

	// UpdateBlock applies a partial update and returns the stored row.
	UpdateBlock(ctx context.Context, blockID string, req *UpdateBlockRequest) (*models.Block, error)

	// DeleteBlock soft-deletes a block. Deletion is destructive and
	// requires confirmation; the empty-block cancel path is the only
	// caller allowed to pass confirmed=true on the user's behalf.
	DeleteBlock(ctx context.Context, blockID string, confirmed bool) error
}

// CreateBlockRequest represents a block creation request
type CreateBlockRequest struct {
	PageID  string `json:"page_id"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
	Order   *int   `json:"order,omitempty"`
}

// UpdateBlockRequest represents a partial block update
type UpdateBlockRequest struct {
	Content *string `json:"content,omitempty"`
	Type    *string `json:"type,omitempty"`
	Order   *int    `json:"order,omitempty"`
}
