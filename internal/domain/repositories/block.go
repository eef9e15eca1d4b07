package repositories

import (
	"context"

	"arbor/internal/domain/models"
)

// BlockRepository defines data access operations for content blocks.
type BlockRepository interface {
	// Create inserts a new block and fills the generated fields.
	Create(ctx context.Context, block *models.Block) error

	// GetByID retrieves a live block by ID.
	GetByID(ctx context.Context, id string) (*models.Block, error)

	// ListByPage retrieves a page's live blocks ordered by position.
	ListByPage(ctx context.Context, pageID string) ([]models.Block, error)

	// CountByPage counts a page's live blocks. New blocks take this count
	// as their position.
	CountByPage(ctx context.Context, pageID string) (int, error)

	// Update rewrites content, type, position and search text.
	Update(ctx context.Context, block *models.Block) error

	// Delete soft-deletes a block.
	Delete(ctx context.Context, id string) error

	// DeleteByPage soft-deletes all blocks of a page.
	DeleteByPage(ctx context.Context, pageID string) error
}
