package services

import (
	"context"

	"arbor/internal/domain/models"
)

// PageService handles wiki page business logic.
type PageService interface {
	// CreatePage creates a page, deriving a slug from the title. Creation
	// failures are the one persistence failure the UI surfaces loudly.
	CreatePage(ctx context.Context, req *CreatePageRequest) (*models.Page, error)

	// GetPage retrieves a page with its ordered blocks, each carrying its
	// attachments.
	GetPage(ctx context.Context, pageID string) (*models.Page, error)

	// ListRootPages retrieves top-level pages.
	ListRootPages(ctx context.Context) ([]models.Page, error)

	// GetTree assembles the full page hierarchy.
	GetTree(ctx context.Context) ([]*models.PageTreeNode, error)

	// UpdatePage renames and/or moves a page. Moves into the page's own
	// subtree are rejected.
	UpdatePage(ctx context.Context, pageID string, req *UpdatePageRequest) (*models.Page, error)

	// DeletePage soft-deletes a page, its subtree and their blocks.
	// Requires confirmation.
	DeletePage(ctx context.Context, pageID string, confirmed bool) error

	// RenderPage produces view-mode HTML for every block: plain URLs
	// auto-linkified, and when term is non-empty, matches outside tag
	// boundaries wrapped in highlight markers with the first match
	// reported for scroll-into-view.
	RenderPage(ctx context.Context, pageID, term string) (*RenderedPage, error)

	// Search performs substring search over titles and block content.
	Search(ctx context.Context, req *SearchPagesRequest) (*models.SearchResults, error)
}

// CreatePageRequest represents a page creation request
type CreatePageRequest struct {
	Title    string  `json:"title"`
	ParentID *string `json:"parent_id,omitempty"`
}

// UpdatePageRequest represents a page rename/move request.
// ParentProvided distinguishes "leave the parent alone" from an explicit
// "parent_id": null meaning "move to root"; the handler sets it from the
// raw JSON tri-state.
type UpdatePageRequest struct {
	Title          *string `json:"title,omitempty"`
	ParentID       *string `json:"parent_id,omitempty"`
	ParentProvided bool    `json:"-"`
	Position       *int    `json:"position,omitempty"`
}

// SearchPagesRequest represents a substring search request
type SearchPagesRequest struct {
	Query  string   `json:"query"`
	Fields []string `json:"fields,omitempty"` // "title", "content" (default: both)
	Limit  int      `json:"limit,omitempty"`
	Offset int      `json:"offset,omitempty"`
}

// RenderedBlock is one block's view-mode HTML.
type RenderedBlock struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
	HTML  string `json:"html"`
}

// RenderedPage is the view-mode rendering of a whole page.
type RenderedPage struct {
	PageID string          `json:"page_id"`
	Title  string          `json:"title"`
	Blocks []RenderedBlock `json:"blocks"`

	// FirstMatchBlockID is set when a search term was supplied and matched;
	// clients scroll this block into view on first render.
	FirstMatchBlockID *string `json:"first_match_block_id,omitempty"`
}
