package models

import (
	"fmt"
	"strings"
)

// SearchField defines which fields to match against.
type SearchField string

const (
	// SearchFieldTitle matches the page title.
	SearchFieldTitle SearchField = "title"

	// SearchFieldContent matches the plain text derived from block content.
	SearchFieldContent SearchField = "content"
)

// Default search configuration values
const (
	DefaultSearchLimit  = 20
	DefaultSearchOffset = 0
	MaxSearchLimit      = 100
)

// SearchOptions configures a substring search over pages and blocks.
// Matching is case-insensitive substring (ILIKE), not full-text ranking;
// the search collaborator is intentionally simple.
type SearchOptions struct {
	// Query is the raw search string (required).
	Query string

	// Fields restricts matching; default is title and content.
	Fields []SearchField

	// Pagination
	Limit  int
	Offset int
}

// ApplyDefaults fills in default values for unset fields
func (opts *SearchOptions) ApplyDefaults() {
	if len(opts.Fields) == 0 {
		opts.Fields = []SearchField{SearchFieldTitle, SearchFieldContent}
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	if opts.Offset < 0 {
		opts.Offset = DefaultSearchOffset
	}
}

// Validate checks that required fields are set and values are reasonable
func (opts *SearchOptions) Validate() error {
	if strings.TrimSpace(opts.Query) == "" {
		return fmt.Errorf("search query cannot be empty")
	}
	if opts.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if opts.Limit > MaxSearchLimit {
		return fmt.Errorf("limit cannot exceed %d (requested: %d)", MaxSearchLimit, opts.Limit)
	}
	if opts.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	for _, field := range opts.Fields {
		switch field {
		case SearchFieldTitle, SearchFieldContent:
		default:
			return fmt.Errorf("invalid search field: %q (supported: title, content)", field)
		}
	}
	return nil
}

// SearchResult is one matching page. When the match came from block
// content, BlockID identifies the block so the client can deep-link to it
// (#pageId:blockId) and Snippet holds the text surrounding the first match.
type SearchResult struct {
	PageID  string      `json:"page_id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Field   SearchField `json:"field"`
	BlockID *string     `json:"block_id,omitempty"`
	Snippet string      `json:"snippet,omitempty"`
}

// SearchResults contains the full search response with pagination metadata
type SearchResults struct {
	Results []SearchResult `json:"results"`

	// TotalCount is the total number of matches regardless of limit/offset.
	TotalCount int `json:"total_count"`

	// HasMore indicates if there are more results beyond this page.
	HasMore bool `json:"has_more"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// NewSearchResults creates a SearchResults with calculated HasMore flag
func NewSearchResults(results []SearchResult, totalCount int, opts *SearchOptions) *SearchResults {
	hasMore := (opts.Offset + len(results)) < totalCount

	return &SearchResults{
		Results:    results,
		TotalCount: totalCount,
		HasMore:    hasMore,
		Offset:     opts.Offset,
		Limit:      opts.Limit,
	}
}
