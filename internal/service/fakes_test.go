package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
	"arbor/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

// fakePageRepo keeps pages in memory, preserving insertion order so tests
// control the ordering List would get from the database.
type fakePageRepo struct {
	pages   map[string]*models.Page
	order   []string
	seq     int
	deleted []string

	searchOpts *models.SearchOptions
	searchRes  *models.SearchResults
	searchErr  error
}

func newFakePageRepo() *fakePageRepo {
	return &fakePageRepo{pages: make(map[string]*models.Page)}
}

// add seeds a page directly, assigning an ID when the caller left it empty.
func (f *fakePageRepo) add(p models.Page) *models.Page {
	if p.ID == "" {
		f.seq++
		p.ID = fmt.Sprintf("page-%d", f.seq)
	}
	cp := p
	f.pages[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return &cp
}

func (f *fakePageRepo) stored(id string) *models.Page {
	return f.pages[id]
}

func (f *fakePageRepo) Create(ctx context.Context, page *models.Page) error {
	f.seq++
	page.ID = fmt.Sprintf("page-%d", f.seq)
	cp := *page
	f.pages[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return nil
}

func (f *fakePageRepo) GetByID(ctx context.Context, id string) (*models.Page, error) {
	p, ok := f.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePageRepo) List(ctx context.Context) ([]models.Page, error) {
	out := make([]models.Page, 0, len(f.order))
	for _, id := range f.order {
		if p, ok := f.pages[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePageRepo) ListRoots(ctx context.Context) ([]models.Page, error) {
	out := make([]models.Page, 0)
	for _, id := range f.order {
		if p, ok := f.pages[id]; ok && p.ParentID == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePageRepo) Update(ctx context.Context, page *models.Page) error {
	if _, ok := f.pages[page.ID]; !ok {
		return fmt.Errorf("page %s: %w", page.ID, domain.ErrNotFound)
	}
	cp := *page
	f.pages[cp.ID] = &cp
	return nil
}

func (f *fakePageRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.pages[id]; !ok {
		return fmt.Errorf("page %s: %w", id, domain.ErrNotFound)
	}
	delete(f.pages, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePageRepo) IsDescendant(ctx context.Context, pageID, candidateID string) (bool, error) {
	cur := candidateID
	for {
		p, ok := f.pages[cur]
		if !ok {
			return false, nil
		}
		if p.ID == pageID {
			return true, nil
		}
		if p.ParentID == nil {
			return false, nil
		}
		cur = *p.ParentID
	}
}

func (f *fakePageRepo) SlugExists(ctx context.Context, parentID *string, slug string) (bool, error) {
	for _, p := range f.pages {
		if p.Slug == slug && equalParent(p.ParentID, parentID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePageRepo) Search(ctx context.Context, opts *models.SearchOptions) (*models.SearchResults, error) {
	f.searchOpts = opts
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchRes != nil {
		return f.searchRes, nil
	}
	return &models.SearchResults{Results: []models.SearchResult{}}, nil
}

// fakeBlockRepo keeps blocks in memory in insertion order.
type fakeBlockRepo struct {
	blocks  map[string]*models.Block
	order   []string
	seq     int
	deleted []string

	countErr  error
	updateErr error
	updates   int
}

func newFakeBlockRepo() *fakeBlockRepo {
	return &fakeBlockRepo{blocks: make(map[string]*models.Block)}
}

func (f *fakeBlockRepo) add(b models.Block) *models.Block {
	if b.ID == "" {
		f.seq++
		b.ID = fmt.Sprintf("blk-%d", f.seq)
	}
	if b.Type == "" {
		b.Type = models.BlockTypeText
	}
	cp := b
	f.blocks[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return &cp
}

func (f *fakeBlockRepo) stored(id string) *models.Block {
	return f.blocks[id]
}

func (f *fakeBlockRepo) Create(ctx context.Context, block *models.Block) error {
	f.seq++
	block.ID = fmt.Sprintf("blk-%d", f.seq)
	cp := *block
	f.blocks[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return nil
}

func (f *fakeBlockRepo) GetByID(ctx context.Context, id string) (*models.Block, error) {
	b, ok := f.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBlockRepo) ListByPage(ctx context.Context, pageID string) ([]models.Block, error) {
	out := make([]models.Block, 0)
	for _, id := range f.order {
		if b, ok := f.blocks[id]; ok && b.PageID == pageID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBlockRepo) CountByPage(ctx context.Context, pageID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, b := range f.blocks {
		if b.PageID == pageID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBlockRepo) Update(ctx context.Context, block *models.Block) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.blocks[block.ID]; !ok {
		return fmt.Errorf("block %s: %w", block.ID, domain.ErrNotFound)
	}
	f.updates++
	cp := *block
	f.blocks[cp.ID] = &cp
	return nil
}

func (f *fakeBlockRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.blocks[id]; !ok {
		return fmt.Errorf("block %s: %w", id, domain.ErrNotFound)
	}
	delete(f.blocks, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBlockRepo) DeleteByPage(ctx context.Context, pageID string) error {
	for _, id := range f.order {
		if b, ok := f.blocks[id]; ok && b.PageID == pageID {
			delete(f.blocks, id)
			f.deleted = append(f.deleted, id)
		}
	}
	return nil
}

// fakeAttachmentRepo keeps attachment rows in memory.
type fakeAttachmentRepo struct {
	atts    map[string]*models.Attachment
	order   []string
	seq     int
	deleted []string

	createErrAt int // fail the Nth Create (1-based); 0 disables
	creates     int
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{atts: make(map[string]*models.Attachment)}
}

func (f *fakeAttachmentRepo) add(a models.Attachment) *models.Attachment {
	if a.ID == "" {
		f.seq++
		a.ID = fmt.Sprintf("att-%d", f.seq)
	}
	cp := a
	f.atts[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return &cp
}

func (f *fakeAttachmentRepo) Create(ctx context.Context, att *models.Attachment) error {
	f.creates++
	if f.createErrAt > 0 && f.creates == f.createErrAt {
		return fmt.Errorf("insert attachment: connection reset")
	}
	f.seq++
	att.ID = fmt.Sprintf("att-%d", f.seq)
	cp := *att
	f.atts[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return nil
}

func (f *fakeAttachmentRepo) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	a, ok := f.atts[id]
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", id, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttachmentRepo) ListByBlock(ctx context.Context, blockID string) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0)
	for _, id := range f.order {
		if a, ok := f.atts[id]; ok && a.BlockID != nil && *a.BlockID == blockID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAttachmentRepo) ListByPage(ctx context.Context, pageID string) ([]models.Attachment, error) {
	// The real query joins through blocks; tests seed block-owned rows
	// only, so every row with an owner is returned.
	out := make([]models.Attachment, 0)
	for _, id := range f.order {
		if a, ok := f.atts[id]; ok && a.BlockID != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAttachmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.atts[id]; !ok {
		return fmt.Errorf("attachment %s: %w", id, domain.ErrNotFound)
	}
	delete(f.atts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeFileStore keeps bytes in memory and can fail the Nth save.
type fakeFileStore struct {
	files   map[string][]byte
	seq     int
	deleted []string

	saveErrAt int // fail the Nth Save (1-based); 0 disables
	saves     int
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[string][]byte)}
}

func (f *fakeFileStore) Save(fileName string, data io.ReadSeeker) (*storage.StoredFile, error) {
	f.saves++
	if f.saveErrAt > 0 && f.saves == f.saveErrAt {
		return nil, fmt.Errorf("write stored file: disk full")
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	f.seq++
	name := fmt.Sprintf("stored-%d", f.seq)
	f.files[name] = raw

	mimeType := "application/octet-stream"
	if strings.HasSuffix(fileName, ".png") {
		mimeType = "image/png"
	}
	return &storage.StoredFile{
		StoredName: name,
		MimeType:   mimeType,
		ByteSize:   int64(len(raw)),
	}, nil
}

func (f *fakeFileStore) Open(storedName string) (io.ReadSeekCloser, error) {
	raw, ok := f.files[storedName]
	if !ok {
		return nil, fmt.Errorf("open stored file: %w", fs.ErrNotExist)
	}
	return nopSeekCloser{bytes.NewReader(raw)}, nil
}

func (f *fakeFileStore) Delete(storedName string) error {
	delete(f.files, storedName)
	f.deleted = append(f.deleted, storedName)
	return nil
}

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

// fakeTxManager runs the callback inline, counting invocations.
type fakeTxManager struct {
	calls int
	err   error
}

func (f *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}
