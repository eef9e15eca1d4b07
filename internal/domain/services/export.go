package services

import (
	"context"
)

// ExportService converts stored pages into portable formats.
type ExportService interface {
	// ExportMarkdown renders a page (title plus every block's HTML) as a
	// single Markdown document. Inline images become links to their
	// attachment URLs.
	ExportMarkdown(ctx context.Context, pageID string) (string, error)
}
