package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"arbor/internal/domain/repositories"
	"arbor/internal/domain/services"
)

// exportService implements the ExportService interface. Block content is
// sanitized on every write, so export converts it as stored; inline images
// come out as Markdown images pointing at their attachment URLs.
type exportService struct {
	pageRepo  repositories.PageRepository
	blockRepo repositories.BlockRepository
	converter *md.Converter
	logger    *slog.Logger
}

// NewExportService creates a new export service
func NewExportService(
	pageRepo repositories.PageRepository,
	blockRepo repositories.BlockRepository,
	logger *slog.Logger,
) services.ExportService {
	return &exportService{
		pageRepo:  pageRepo,
		blockRepo: blockRepo,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// ExportMarkdown renders a page as one Markdown document: the title as a
// top-level heading, then every block in position order.
func (s *exportService) ExportMarkdown(ctx context.Context, pageID string) (string, error) {
	page, err := s.pageRepo.GetByID(ctx, pageID)
	if err != nil {
		return "", err
	}
	blocks, err := s.blockRepo.ListByPage(ctx, pageID)
	if err != nil {
		return "", err
	}

	var html strings.Builder
	for _, blk := range blocks {
		html.WriteString(blk.Content)
		html.WriteString("\n")
	}

	body, err := s.converter.ConvertString(html.String())
	if err != nil {
		return "", fmt.Errorf("convert page to markdown: %w", err)
	}

	var out strings.Builder
	out.WriteString("# ")
	out.WriteString(page.Title)
	out.WriteString("\n")
	if body = strings.TrimSpace(body); body != "" {
		out.WriteString("\n")
		out.WriteString(body)
		out.WriteString("\n")
	}

	s.logger.Info("page exported", "id", pageID, "blocks", len(blocks))
	return out.String(), nil
}
