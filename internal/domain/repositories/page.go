package repositories

import (
	"context"

	"arbor/internal/domain/models"
)

// PageRepository defines data access operations for wiki pages.
type PageRepository interface {
	// Create inserts a new page and fills the generated fields.
	Create(ctx context.Context, page *models.Page) error

	// GetByID retrieves a live page by ID.
	GetByID(ctx context.Context, id string) (*models.Page, error)

	// List retrieves all live pages ordered by parent, position, title.
	// Used by tree assembly.
	List(ctx context.Context) ([]models.Page, error)

	// ListRoots retrieves live pages with no parent.
	ListRoots(ctx context.Context) ([]models.Page, error)

	// Update rewrites title, slug, parent and position.
	Update(ctx context.Context, page *models.Page) error

	// Delete soft-deletes a page and its subtree.
	Delete(ctx context.Context, id string) error

	// IsDescendant reports whether candidateID lies in the subtree rooted
	// at pageID. Used to reject cyclic moves.
	IsDescendant(ctx context.Context, pageID, candidateID string) (bool, error)

	// SlugExists reports whether a live sibling under parentID already
	// uses slug.
	SlugExists(ctx context.Context, parentID *string, slug string) (bool, error)

	// Search performs case-insensitive substring matching over page titles
	// and block search text.
	Search(ctx context.Context, opts *models.SearchOptions) (*models.SearchResults, error)
}
