package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
	"arbor/internal/domain/services"
	"arbor/internal/editor/markup"
)

// blockService implements the BlockService interface. Every content write
// funnels through here and is sanitized exactly once, immediately before
// persistence; search text is re-derived from the sanitized markup on the
// same write.
type blockService struct {
	blockRepo      repositories.BlockRepository
	pageRepo       repositories.PageRepository
	attachmentRepo repositories.AttachmentRepository
	sanitizer      *markup.Sanitizer
	logger         *slog.Logger
}

// NewBlockService creates a new block service
func NewBlockService(
	blockRepo repositories.BlockRepository,
	pageRepo repositories.PageRepository,
	attachmentRepo repositories.AttachmentRepository,
	logger *slog.Logger,
) services.BlockService {
	return &blockService{
		blockRepo:      blockRepo,
		pageRepo:       pageRepo,
		attachmentRepo: attachmentRepo,
		sanitizer:      markup.NewSanitizer(),
		logger:         logger,
	}
}

// CreateBlock creates a block on a page. A nil Order appends: the block
// takes position == count of the page's live blocks.
func (s *blockService) CreateBlock(ctx context.Context, req *services.CreateBlockRequest) (*models.Block, error) {
	if req.Type == "" {
		req.Type = models.BlockTypeText
	}
	if err := s.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if _, err := s.pageRepo.GetByID(ctx, req.PageID); err != nil {
		return nil, err
	}

	clean, err := s.sanitizer.Sanitize(req.Content)
	if err != nil {
		return nil, fmt.Errorf("sanitize block content: %w", err)
	}

	order := 0
	if req.Order != nil {
		if *req.Order < 0 {
			return nil, &domain.ValidationError{Message: "order cannot be negative"}
		}
		order = *req.Order
	} else {
		count, err := s.blockRepo.CountByPage(ctx, req.PageID)
		if err != nil {
			return nil, err
		}
		order = count
	}

	block := &models.Block{
		PageID:     req.PageID,
		Type:       req.Type,
		Content:    clean,
		Order:      order,
		SearchText: extractSearchText(clean),
	}
	if err := s.blockRepo.Create(ctx, block); err != nil {
		return nil, err
	}

	s.logger.Info("block created",
		"id", block.ID,
		"page_id", block.PageID,
		"type", block.Type,
		"position", block.Order,
	)

	return block, nil
}

// GetBlock retrieves a block with its attachments.
func (s *blockService) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	block, err := s.blockRepo.GetByID(ctx, blockID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.attachmentRepo.ListByBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	block.Attachments = attachments
	return block, nil
}

// UpdateBlock applies a partial update and returns the stored row with its
// attachments.
func (s *blockService) UpdateBlock(ctx context.Context, blockID string, req *services.UpdateBlockRequest) (*models.Block, error) {
	block, err := s.blockRepo.GetByID(ctx, blockID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		if len(*req.Content) > config.MaxBlockContentBytes {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("block content exceeds %d bytes", config.MaxBlockContentBytes)}
		}
		clean, err := s.sanitizer.Sanitize(*req.Content)
		if err != nil {
			return nil, fmt.Errorf("sanitize block content: %w", err)
		}
		block.Content = clean
		block.SearchText = extractSearchText(clean)
	}
	if req.Type != nil {
		if err := validation.Validate(*req.Type, validation.Required, validation.In(models.BlockTypeText)); err != nil {
			return nil, fmt.Errorf("%w: type: %v", domain.ErrValidation, err)
		}
		block.Type = *req.Type
	}
	if req.Order != nil {
		if *req.Order < 0 {
			return nil, &domain.ValidationError{Message: "order cannot be negative"}
		}
		block.Order = *req.Order
	}

	if err := s.blockRepo.Update(ctx, block); err != nil {
		return nil, err
	}

	attachments, err := s.attachmentRepo.ListByBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	block.Attachments = attachments

	s.logger.Info("block updated", "id", block.ID, "page_id", block.PageID)
	return block, nil
}

// DeleteBlock soft-deletes a block. Deletion is destructive and requires
// confirmation; the empty-block cancel path is the only caller allowed to
// confirm on the user's behalf.
func (s *blockService) DeleteBlock(ctx context.Context, blockID string, confirmed bool) error {
	block, err := s.blockRepo.GetByID(ctx, blockID)
	if err != nil {
		return err
	}

	if !confirmed {
		return &domain.ConfirmationRequiredError{
			Message:      "deleting this block cannot be undone",
			ResourceType: "block",
			ResourceID:   block.ID,
		}
	}

	if err := s.blockRepo.Delete(ctx, blockID); err != nil {
		return err
	}

	s.logger.Info("block deleted", "id", blockID, "page_id", block.PageID)
	return nil
}

// validateCreateRequest validates a block creation request
func (s *blockService) validateCreateRequest(req *services.CreateBlockRequest) error {
	if len(req.Content) > config.MaxBlockContentBytes {
		return fmt.Errorf("block content exceeds %d bytes", config.MaxBlockContentBytes)
	}
	return validation.ValidateStruct(req,
		validation.Field(&req.PageID, validation.Required),
		validation.Field(&req.Type, validation.Required, validation.In(models.BlockTypeText)),
	)
}

// extractSearchText derives the plain text of sanitized markup for the
// search_text column. Text nodes join with spaces so adjacent elements
// ("<li>one</li><li>two</li>") do not fuse into one token, then whitespace
// collapses to single spaces. Unparseable markup indexes as raw text
// rather than not at all.
func extractSearchText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.Join(strings.Fields(content), " ")
	}
	var parts []string
	var collect func(*goquery.Selection)
	collect = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				parts = append(parts, c.Text())
				return
			}
			collect(c)
		})
	}
	collect(doc.Find("body"))
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
