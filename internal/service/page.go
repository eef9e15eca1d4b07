package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gosimple/slug"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
	"arbor/internal/domain/services"
	"arbor/internal/editor/markup"
)

// pageService implements the PageService interface
type pageService struct {
	pageRepo       repositories.PageRepository
	blockRepo      repositories.BlockRepository
	attachmentRepo repositories.AttachmentRepository
	txManager      repositories.TransactionManager
	logger         *slog.Logger
}

// NewPageService creates a new page service
func NewPageService(
	pageRepo repositories.PageRepository,
	blockRepo repositories.BlockRepository,
	attachmentRepo repositories.AttachmentRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) services.PageService {
	return &pageService{
		pageRepo:       pageRepo,
		blockRepo:      blockRepo,
		attachmentRepo: attachmentRepo,
		txManager:      txManager,
		logger:         logger,
	}
}

// CreatePage creates a page under the requested parent, deriving a slug
// from the title and deduplicating it among live siblings.
func (s *pageService) CreatePage(ctx context.Context, req *services.CreatePageRequest) (*models.Page, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	// Normalize empty string parent_id to nil for root-level pages
	if req.ParentID != nil && *req.ParentID == "" {
		req.ParentID = nil
	}

	if req.ParentID != nil {
		if _, err := s.pageRepo.GetByID(ctx, *req.ParentID); err != nil {
			return nil, err
		}
	}

	pageSlug, err := s.uniqueSlug(ctx, req.ParentID, req.Title)
	if err != nil {
		return nil, err
	}

	page := &models.Page{
		Title:    req.Title,
		Slug:     pageSlug,
		ParentID: req.ParentID,
	}
	if err := s.pageRepo.Create(ctx, page); err != nil {
		return nil, err
	}

	s.logger.Info("page created",
		"id", page.ID,
		"title", page.Title,
		"slug", page.Slug,
		"parent_id", page.ParentID,
	)

	return page, nil
}

// GetPage retrieves a page with its ordered blocks, each carrying its
// attachments. Attachments load in one query and group by block.
func (s *pageService) GetPage(ctx context.Context, pageID string) (*models.Page, error) {
	page, err := s.pageRepo.GetByID(ctx, pageID)
	if err != nil {
		return nil, err
	}

	blocks, err := s.blockRepo.ListByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	attachments, err := s.attachmentRepo.ListByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	byBlock := make(map[string][]models.Attachment)
	for _, att := range attachments {
		if att.BlockID != nil {
			byBlock[*att.BlockID] = append(byBlock[*att.BlockID], att)
		}
	}
	for i := range blocks {
		blocks[i].Attachments = byBlock[blocks[i].ID]
	}

	page.Blocks = blocks
	return page, nil
}

// ListRootPages retrieves top-level pages.
func (s *pageService) ListRootPages(ctx context.Context) ([]models.Page, error) {
	return s.pageRepo.ListRoots(ctx)
}

// GetTree assembles the full page hierarchy with a two-pass build: create
// every node, then connect children to parents. Rows arrive ordered by
// parent and position, so child slices come out position-ordered.
func (s *pageService) GetTree(ctx context.Context) ([]*models.PageTreeNode, error) {
	pages, err := s.pageRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	nodeMap := make(map[string]*models.PageTreeNode, len(pages))
	for _, page := range pages {
		nodeMap[page.ID] = &models.PageTreeNode{
			ID:       page.ID,
			Title:    page.Title,
			Slug:     page.Slug,
			Position: page.Position,
			Children: []*models.PageTreeNode{},
		}
	}

	roots := make([]*models.PageTreeNode, 0)
	for _, page := range pages {
		node := nodeMap[page.ID]
		if page.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, exists := nodeMap[*page.ParentID]; exists {
			parent.Children = append(parent.Children, node)
		} else {
			// Parent soft-deleted out from under the child; surface the
			// orphan at the root rather than hiding the subtree.
			roots = append(roots, node)
		}
	}

	return roots, nil
}

// UpdatePage renames and/or moves a page. Moving a page under itself or
// any of its descendants is rejected. A changed title re-derives the slug.
func (s *pageService) UpdatePage(ctx context.Context, pageID string, req *services.UpdatePageRequest) (*models.Page, error) {
	page, err := s.pageRepo.GetByID(ctx, pageID)
	if err != nil {
		return nil, err
	}

	title := page.Title
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
		if err := validation.Validate(title,
			validation.Required,
			validation.Length(1, config.MaxPageTitleLength),
		); err != nil {
			return nil, fmt.Errorf("%w: title: %v", domain.ErrValidation, err)
		}
	}

	parentID := page.ParentID
	parentChanged := false
	if req.ParentProvided {
		newParent := req.ParentID
		if newParent != nil && *newParent == "" {
			newParent = nil
		}
		if !equalParent(newParent, page.ParentID) {
			if newParent != nil {
				if *newParent == page.ID {
					return nil, &domain.ValidationError{Message: "a page cannot be its own parent"}
				}
				if _, err := s.pageRepo.GetByID(ctx, *newParent); err != nil {
					return nil, err
				}
				inSubtree, err := s.pageRepo.IsDescendant(ctx, page.ID, *newParent)
				if err != nil {
					return nil, err
				}
				if inSubtree {
					return nil, &domain.ValidationError{Message: "a page cannot move into its own subtree"}
				}
			}
			parentID = newParent
			parentChanged = true
		}
	}

	if title != page.Title || parentChanged {
		base := slugify(title)
		if base == page.Slug && !parentChanged {
			// Title changed but maps to the slug the page already owns.
		} else {
			newSlug, err := s.dedupeSlug(ctx, parentID, base)
			if err != nil {
				return nil, err
			}
			page.Slug = newSlug
		}
	}

	page.Title = title
	page.ParentID = parentID
	if req.Position != nil {
		if *req.Position < 0 {
			return nil, &domain.ValidationError{Message: "position cannot be negative"}
		}
		page.Position = *req.Position
	}

	if err := s.pageRepo.Update(ctx, page); err != nil {
		return nil, err
	}

	s.logger.Info("page updated",
		"id", page.ID,
		"title", page.Title,
		"parent_id", page.ParentID,
		"position", page.Position,
	)

	return page, nil
}

// DeletePage soft-deletes a page, its subtree and their blocks inside one
// transaction. Without confirmation nothing changes and the caller learns
// what would be removed.
func (s *pageService) DeletePage(ctx context.Context, pageID string, confirmed bool) error {
	page, err := s.pageRepo.GetByID(ctx, pageID)
	if err != nil {
		return err
	}

	if !confirmed {
		return &domain.ConfirmationRequiredError{
			Message:      fmt.Sprintf("deleting '%s' removes the page, every page below it, and their blocks", page.Title),
			ResourceType: "page",
			ResourceID:   page.ID,
		}
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		return s.pageRepo.Delete(ctx, pageID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("page deleted", "id", pageID, "title", page.Title)
	return nil
}

// RenderPage produces view-mode HTML for every block: plain URLs become
// anchors, and a non-empty term gets its matches wrapped in highlight
// markers with the first matching block reported for scroll-into-view.
func (s *pageService) RenderPage(ctx context.Context, pageID, term string) (*services.RenderedPage, error) {
	if len(term) > config.MaxSearchTermLength {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("search term exceeds %d characters", config.MaxSearchTermLength)}
	}

	page, err := s.pageRepo.GetByID(ctx, pageID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.blockRepo.ListByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	rendered := &services.RenderedPage{
		PageID: page.ID,
		Title:  page.Title,
		Blocks: make([]services.RenderedBlock, 0, len(blocks)),
	}

	for _, blk := range blocks {
		html := blk.Content
		tree, err := markup.Parse(blk.Content)
		if err != nil {
			s.logger.Warn("block render skipped, unparseable content", "block_id", blk.ID, "error", err)
		} else {
			markup.AutoLink(tree.Root())
			if term != "" {
				if n := markup.Highlight(tree.Root(), term); n > 0 && rendered.FirstMatchBlockID == nil {
					id := blk.ID
					rendered.FirstMatchBlockID = &id
				}
			}
			if out, err := tree.Render(); err == nil {
				html = out
			}
		}
		rendered.Blocks = append(rendered.Blocks, services.RenderedBlock{
			ID:    blk.ID,
			Order: blk.Order,
			HTML:  html,
		})
	}

	return rendered, nil
}

// validateCreateRequest validates a page creation request
func (s *pageService) validateCreateRequest(req *services.CreatePageRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxPageTitleLength),
		),
	)
}

// uniqueSlug derives a slug from title and deduplicates it among the live
// siblings under parentID.
func (s *pageService) uniqueSlug(ctx context.Context, parentID *string, title string) (string, error) {
	return s.dedupeSlug(ctx, parentID, slugify(title))
}

// dedupeSlug appends -2, -3, … until the slug is free under parentID.
func (s *pageService) dedupeSlug(ctx context.Context, parentID *string, base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		exists, err := s.pageRepo.SlugExists(ctx, parentID, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// slugify turns a title into its URL slug. Titles that reduce to nothing
// (all punctuation) fall back to a generic stem.
func slugify(title string) string {
	out := slug.Make(title)
	if out == "" {
		return "page"
	}
	return out
}

func equalParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
