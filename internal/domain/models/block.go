package models

import (
	"time"
)

// BlockTypeText is the only block type today. The column exists so new
// kinds (code, embed) can ship without a schema change.
const BlockTypeText = "text"

// Block is one ordered, independently editable unit of a page's content.
//
// Content is sanitized HTML. Persisted content never carries transient
// editor state (selection markers, resize handles, drag/selection classes);
// the sanitizer enforces that on every write path. Order defines the render
// sequence within a page and is not required to be contiguous.
type Block struct {
	ID      string `json:"id" db:"id"`
	PageID  string `json:"page_id" db:"page_id"`
	Type    string `json:"type" db:"type"`
	Content string `json:"content" db:"content"`
	Order   int    `json:"order" db:"position"`

	// SearchText is the derived plain text of Content, maintained on every
	// content write so substring search never parses HTML.
	SearchText string `json:"-" db:"search_text"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`

	// Attachments owned by this block (grid-displayed), independent of
	// inline images referenced by data-file-id inside Content.
	Attachments []Attachment `json:"attachments,omitempty"`
}
