package editor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
)

// fakePageService backs session tests with an in-memory page set.
type fakePageService struct {
	mu          sync.Mutex
	pages       map[string]*models.Page
	renderTerms []string
	// render, when set, overrides the canned RenderPage response.
	render func(pageID, term string) *services.RenderedPage
}

func newFakePageService(pages ...*models.Page) *fakePageService {
	f := &fakePageService{pages: make(map[string]*models.Page)}
	for _, p := range pages {
		f.pages[p.ID] = p
	}
	return f
}

func (f *fakePageService) CreatePage(ctx context.Context, req *services.CreatePageRequest) (*models.Page, error) {
	return nil, fmt.Errorf("fakePageService.CreatePage not implemented")
}

func (f *fakePageService) GetPage(ctx context.Context, pageID string) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[pageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePageService) ListRootPages(ctx context.Context) ([]models.Page, error) {
	return nil, fmt.Errorf("fakePageService.ListRootPages not implemented")
}

func (f *fakePageService) GetTree(ctx context.Context) ([]*models.PageTreeNode, error) {
	return nil, fmt.Errorf("fakePageService.GetTree not implemented")
}

func (f *fakePageService) UpdatePage(ctx context.Context, pageID string, req *services.UpdatePageRequest) (*models.Page, error) {
	return nil, fmt.Errorf("fakePageService.UpdatePage not implemented")
}

func (f *fakePageService) DeletePage(ctx context.Context, pageID string, confirmed bool) error {
	return fmt.Errorf("fakePageService.DeletePage not implemented")
}

func (f *fakePageService) RenderPage(ctx context.Context, pageID, term string) (*services.RenderedPage, error) {
	f.mu.Lock()
	f.renderTerms = append(f.renderTerms, term)
	render := f.render
	p, ok := f.pages[pageID]
	f.mu.Unlock()

	if render != nil {
		return render(pageID, term), nil
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &services.RenderedPage{PageID: pageID, Title: p.Title}, nil
}

func (f *fakePageService) Search(ctx context.Context, req *services.SearchPagesRequest) (*models.SearchResults, error) {
	return nil, fmt.Errorf("fakePageService.Search not implemented")
}

// fakeBlockService stores blocks in a map. Unlike the real service it does
// not sanitize content, so stored markup is exactly what the session
// persisted.
type fakeBlockService struct {
	mu      sync.Mutex
	blocks  map[string]*models.Block
	seq     int
	deletes []string
	updates int
	// updateErr, when set, fails every UpdateBlock call.
	updateErr error
}

func newFakeBlockService(blocks ...*models.Block) *fakeBlockService {
	f := &fakeBlockService{blocks: make(map[string]*models.Block)}
	for _, b := range blocks {
		f.blocks[b.ID] = b
	}
	return f
}

func (f *fakeBlockService) CreateBlock(ctx context.Context, req *services.CreateBlockRequest) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	blk := &models.Block{
		ID:      fmt.Sprintf("blk-%d", f.seq),
		PageID:  req.PageID,
		Type:    req.Type,
		Content: req.Content,
		Order:   len(f.blocks),
	}
	if blk.Type == "" {
		blk.Type = models.BlockTypeText
	}
	f.blocks[blk.ID] = blk
	cp := *blk
	return &cp, nil
}

func (f *fakeBlockService) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[blockID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBlockService) UpdateBlock(ctx context.Context, blockID string, req *services.UpdateBlockRequest) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	b, ok := f.blocks[blockID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.Content != nil {
		b.Content = *req.Content
	}
	if req.Type != nil {
		b.Type = *req.Type
	}
	if req.Order != nil {
		b.Order = *req.Order
	}
	f.updates++
	cp := *b
	return &cp, nil
}

func (f *fakeBlockService) DeleteBlock(ctx context.Context, blockID string, confirmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[blockID]
	if !ok {
		return domain.ErrNotFound
	}
	if !confirmed {
		return &domain.ConfirmationRequiredError{
			Message:      "deleting this block cannot be undone",
			ResourceType: "block",
			ResourceID:   b.ID,
		}
	}
	delete(f.blocks, blockID)
	f.deletes = append(f.deletes, blockID)
	return nil
}

// stored returns the persisted copy of a block.
func (f *fakeBlockService) stored(t *testing.T, blockID string) models.Block {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[blockID]
	if !ok {
		t.Fatalf("block %s not stored", blockID)
	}
	return *b
}

func (f *fakeBlockService) exists(blockID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blocks[blockID]
	return ok
}

func (f *fakeBlockService) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *fakeBlockService) setUpdateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

// fakeAttachmentService sniffs MIME types from file name extensions, which
// is enough for routing image vs. non-image paths.
type fakeAttachmentService struct {
	mu        sync.Mutex
	atts      map[string]*models.Attachment
	seq       int
	uploadErr error
	// deleted receives ids as Delete is called; buffered so the async
	// cleanup goroutine never blocks.
	deleted chan string
}

func newFakeAttachmentService() *fakeAttachmentService {
	return &fakeAttachmentService{
		atts:    make(map[string]*models.Attachment),
		deleted: make(chan string, 8),
	}
}

// add seeds an attachment, returning its copy.
func (f *fakeAttachmentService) add(att models.Attachment) models.Attachment {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := att
	f.atts[att.ID] = &stored
	return att
}

func (f *fakeAttachmentService) Upload(ctx context.Context, blockID *string, files []services.FileUpload) ([]models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	var out []models.Attachment
	for _, file := range files {
		f.seq++
		mime := "application/octet-stream"
		if strings.HasSuffix(file.FileName, ".png") {
			mime = "image/png"
		}
		att := models.Attachment{
			ID:         fmt.Sprintf("file-%d", f.seq),
			FileName:   file.FileName,
			StoredName: fmt.Sprintf("file-%d.bin", f.seq),
			MimeType:   mime,
			ByteSize:   file.Size,
			BlockID:    blockID,
		}
		f.atts[att.ID] = &att
		out = append(out, att)
	}
	return out, nil
}

func (f *fakeAttachmentService) Get(ctx context.Context, id string) (*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.atts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttachmentService) Open(ctx context.Context, id string) (*models.Attachment, io.ReadSeekCloser, error) {
	return nil, nil, fmt.Errorf("fakeAttachmentService.Open not implemented")
}

func (f *fakeAttachmentService) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	_, ok := f.atts[id]
	delete(f.atts, id)
	f.mu.Unlock()

	select {
	case f.deleted <- id:
	default:
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv builds a manager over fakes, with two known pages and any
// seeded blocks, and opens a session on page p1.
func newTestEnv(t *testing.T, blocks ...*models.Block) (*Manager, *Session, *fakePageService, *fakeBlockService, *fakeAttachmentService) {
	t.Helper()
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pages := newFakePageService(
		&models.Page{ID: "p1", Title: "Home", Slug: "home"},
		&models.Page{ID: "p2", Title: "Away", Slug: "away"},
	)
	blockSvc := newFakeBlockService(blocks...)
	atts := newFakeAttachmentService()
	m := NewManager(ManagerConfig{
		Pages:       pages,
		Blocks:      blockSvc,
		Attachments: atts,
		Registry:    reg,
		Origin:      "http://wiki.local:8080",
		Logger:      testLogger(),
	})
	sess, err := m.Open(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m, sess, pages, blockSvc, atts
}

func textBlock(id, content string) *models.Block {
	return &models.Block{ID: id, PageID: "p1", Type: models.BlockTypeText, Content: content}
}

// wrapperMarkup builds the persisted form of an inline image wrapper, the
// way the sanitizer stores it (no handles, no transient classes).
func wrapperMarkup(fileID string) string {
	return `<span class="inline-image-wrapper" contenteditable="false" data-file-id="` +
		fileID + `" data-wrap="left"><img src="/api/files/` + fileID + `" alt="pic.png"/></span>`
}
