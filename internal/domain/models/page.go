package models

import (
	"time"
)

// Page is one node of the wiki hierarchy. A page has at most one parent
// and any number of children at arbitrary depth.
type Page struct {
	ID        string     `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Slug      string     `json:"slug" db:"slug"`
	ParentID  *string    `json:"parent_id" db:"parent_id"` // NULL = root level
	Position  int        `json:"position" db:"position"`   // sibling order
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`

	// Blocks is populated by the page read path, ordered by block position.
	// Not stored on the page row.
	Blocks []Block `json:"blocks,omitempty"`
}

// PageTreeNode is a page with its children nested, used by the tree endpoint.
type PageTreeNode struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Slug     string          `json:"slug"`
	Position int             `json:"position"`
	Children []*PageTreeNode `json:"children"`
}
