package repositories

import (
	"context"

	"arbor/internal/domain/models"
)

// AttachmentRepository defines data access operations for uploaded files.
// Disk bytes are owned by the storage layer; rows and bytes are reconciled
// by the attachment service.
type AttachmentRepository interface {
	// Create inserts a new attachment row.
	Create(ctx context.Context, att *models.Attachment) error

	// GetByID retrieves an attachment by ID.
	GetByID(ctx context.Context, id string) (*models.Attachment, error)

	// ListByBlock retrieves a block's attachments, oldest first.
	ListByBlock(ctx context.Context, blockID string) ([]models.Attachment, error)

	// ListByPage retrieves all attachments owned by a page's live blocks.
	ListByPage(ctx context.Context, pageID string) ([]models.Attachment, error)

	// Delete removes an attachment row.
	Delete(ctx context.Context, id string) error
}
