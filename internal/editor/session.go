package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
	"arbor/internal/editor/markup"
)

const defaultSessionIdleTimeout = 30 * time.Minute

// ManagerConfig wires the session manager's dependencies.
type ManagerConfig struct {
	Pages       services.PageService
	Blocks      services.BlockService
	Attachments services.AttachmentService
	Registry    *Registry

	// Origin is the host clients reach this server on. Links to any other
	// host resolve as external.
	Origin string

	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Manager owns the live edit sessions. Sessions expire after sitting idle;
// expiry runs lazily on access, so no background scheduler is involved.
type Manager struct {
	pages       services.PageService
	blocks      services.BlockService
	attachments services.AttachmentService
	registry    *Registry
	origin      string
	idleTimeout time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultSessionIdleTimeout
	}
	return &Manager{
		pages:       cfg.Pages,
		blocks:      cfg.Blocks,
		attachments: cfg.Attachments,
		registry:    cfg.Registry,
		origin:      normalizeOrigin(cfg.Origin),
		idleTimeout: cfg.IdleTimeout,
		logger:      cfg.Logger,
		sessions:    make(map[string]*Session),
	}
}

// Open starts a session on a page. scrollTo, when non-empty, is a block id
// to scroll to once the client reports the page loaded, which is how deep
// links into a page defer their scroll.
func (m *Manager) Open(ctx context.Context, pageID, scrollTo string) (*Session, error) {
	if _, err := m.pages.GetPage(ctx, pageID); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		manager:  m,
		logger:   m.logger,
		pageID:   pageID,
		surfaces: make(map[string]*surface),
	}
	if scrollTo != "" {
		s.pendingScroll = scrollTo
		s.pendingPage = pageID
	}

	now := time.Now()
	m.mu.Lock()
	m.sweepLocked(now)
	s.lastUsed = now
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("edit session opened", "session_id", s.ID, "page_id", pageID)
	return s, nil
}

// Get resolves a session by id, refreshing its idle clock.
func (m *Manager) Get(sessionID string) (*Session, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.lastUsed = now
	return s, nil
}

// Close drops a session. Unsaved surfaces are discarded.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	m.logger.Info("edit session closed", "session_id", sessionID)
	return nil
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) sweepLocked(now time.Time) {
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) > m.idleTimeout {
			delete(m.sessions, id)
			m.logger.Info("edit session expired", "session_id", id)
		}
	}
}

// surface is one block's live editing state: the working tree plus the
// last persisted row it diverged from.
type surface struct {
	blockID  string
	tree     *markup.Tree
	baseline models.Block
	dirty    bool
}

// imageSelection points at the currently selected inline image.
type imageSelection struct {
	blockID string
	fileID  string
}

// Session is one client's editing context on a page. All operations
// serialize on the session mutex, which is what guarantees a block's
// surface only ever mutates under a single owner.
type Session struct {
	ID string

	manager *Manager
	logger  *slog.Logger

	mu            sync.Mutex
	pageID        string
	surfaces      map[string]*surface
	selection     *Selection
	imageSel      *imageSelection
	pendingScroll string
	pendingPage   string
	term          string
	termFresh     bool

	// lastUsed is guarded by the manager's mutex, not the session's.
	lastUsed time.Time
}

// BlockState is the outcome of a state machine transition, echoed to the
// client. Dirty marks a surface whose last persist failed; the local
// content is kept and the client may retry.
type BlockState struct {
	Block   *models.Block `json:"block,omitempty"`
	Editing bool          `json:"editing"`
	Dirty   bool          `json:"dirty,omitempty"`
	Deleted bool          `json:"deleted,omitempty"`
}

// SessionState is the JSON snapshot of a session.
type SessionState struct {
	ID              string     `json:"id"`
	PageID          string     `json:"page_id"`
	EditingBlockIDs []string   `json:"editing_block_ids"`
	DirtyBlockIDs   []string   `json:"dirty_block_ids,omitempty"`
	Selection       *Selection `json:"selection,omitempty"`
	SelectedImageID string     `json:"selected_image_id,omitempty"`
	Term            string     `json:"term,omitempty"`
}

// State snapshots the session for clients.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{ID: s.ID, PageID: s.pageID, Term: s.term}
	for id, surf := range s.surfaces {
		st.EditingBlockIDs = append(st.EditingBlockIDs, id)
		if surf.dirty {
			st.DirtyBlockIDs = append(st.DirtyBlockIDs, id)
		}
	}
	if s.selection != nil {
		sel := *s.selection
		st.Selection = &sel
	}
	if s.imageSel != nil {
		st.SelectedImageID = s.imageSel.fileID
	}
	return st
}

// PageID returns the page the session currently views.
func (s *Session) PageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageID
}

// BeginEdit switches a block to editing state, loading its persisted
// content into a fresh surface. Re-entering an already-editing block is a
// no-op that reports the current state. Editing is exclusive: any other
// open surface is canceled first, exactly as if the user had dismissed it.
func (s *Session) BeginEdit(ctx context.Context, blockID string) (*BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if surf, ok := s.surfaces[blockID]; ok {
		blk := surf.baseline
		return &BlockState{Block: &blk, Editing: true, Dirty: surf.dirty}, nil
	}

	blk, err := s.manager.blocks.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if blk.PageID != s.pageID {
		return nil, &domain.ValidationError{Message: "block belongs to a different page"}
	}

	tree, err := markup.Parse(blk.Content)
	if err != nil {
		return nil, fmt.Errorf("parse block content: %w", err)
	}
	s.closeOtherSurfacesLocked(ctx, blockID)
	s.surfaces[blockID] = &surface{blockID: blockID, tree: tree, baseline: *blk}

	s.logger.Info("block editing started", "session_id", s.ID, "block_id", blockID)
	return &BlockState{Block: blk, Editing: true}, nil
}

// CreateBlock appends a new empty block to the page and starts editing it
// immediately.
func (s *Session) CreateBlock(ctx context.Context, blockType, content string) (*BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blockType == "" {
		blockType = models.BlockTypeText
	}
	blk, err := s.manager.blocks.CreateBlock(ctx, &services.CreateBlockRequest{
		PageID:  s.pageID,
		Type:    blockType,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	tree, err := markup.Parse(blk.Content)
	if err != nil {
		return nil, fmt.Errorf("parse block content: %w", err)
	}
	s.closeOtherSurfacesLocked(ctx, blk.ID)
	s.surfaces[blk.ID] = &surface{blockID: blk.ID, tree: tree, baseline: *blk}

	s.logger.Info("block created", "session_id", s.ID, "block_id", blk.ID, "page_id", s.pageID, "position", blk.Order)
	return &BlockState{Block: blk, Editing: true}, nil
}

// UpdateSurface replaces a surface's working markup with what the client
// currently shows. Typing happens client-side; this keeps the server copy
// current so selection paths resolve against the same tree.
func (s *Session) UpdateSurface(ctx context.Context, blockID, content string) (*BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}
	tree, err := markup.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse block content: %w", err)
	}
	surf.tree = tree
	if s.selection != nil && s.selection.BlockID == blockID {
		// The old tree is gone, and any marker with it.
		s.selection = nil
	}
	if s.imageSel != nil && s.imageSel.blockID == blockID {
		s.imageSel = nil
	}
	blk := surf.baseline
	return &BlockState{Block: &blk, Editing: true, Dirty: surf.dirty}, nil
}

// Save persists a surface and switches the block back to viewing state.
// Persistence failures are kept local: the surface stays editing with its
// dirty flag raised and no error is returned.
func (s *Session) Save(ctx context.Context, blockID string) (*BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	s.dismissSelectionLocked()
	s.clearImageSelectionLocked()
	markup.DeselectImages(surf.tree.Root())

	blk, dirty, gone := s.persistSurfaceLocked(ctx, surf)
	if gone {
		delete(s.surfaces, blockID)
		return &BlockState{Deleted: true}, nil
	}
	if dirty {
		return &BlockState{Block: blk, Editing: true, Dirty: true}, nil
	}

	delete(s.surfaces, blockID)
	s.logger.Info("block saved", "session_id", s.ID, "block_id", blockID)
	return &BlockState{Block: blk, Editing: false}, nil
}

// Cancel discards a surface's unsaved changes. Canceling a block that has
// never held content deletes it outright, with no confirmation prompt;
// anything else reverts to the persisted row.
func (s *Session) Cancel(ctx context.Context, blockID string) (*BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	s.dismissSelectionLocked()
	s.clearImageSelectionLocked()
	delete(s.surfaces, blockID)

	if contentEmpty(surf.baseline.Content) {
		if err := s.manager.blocks.DeleteBlock(ctx, blockID, true); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("empty block cleanup failed", "session_id", s.ID, "block_id", blockID, "error", err)
		}
		s.logger.Info("empty block discarded", "session_id", s.ID, "block_id", blockID)
		return &BlockState{Deleted: true}, nil
	}

	blk := surf.baseline
	return &BlockState{Block: &blk, Editing: false}, nil
}

// Delete removes a block. Explicit deletion is destructive and must be
// confirmed; without confirmation the service reports what needs
// confirming and nothing changes.
func (s *Session) Delete(ctx context.Context, blockID string, confirmed bool) (*BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.manager.blocks.DeleteBlock(ctx, blockID, confirmed); err != nil {
		return nil, err
	}

	delete(s.surfaces, blockID)
	if s.selection != nil && s.selection.BlockID == blockID {
		s.selection = nil
	}
	if s.imageSel != nil && s.imageSel.blockID == blockID {
		s.imageSel = nil
	}

	s.logger.Info("block deleted", "session_id", s.ID, "block_id", blockID)
	return &BlockState{Deleted: true}, nil
}

// CaptureSelection records the user's text selection in an editing block:
// the range, its text, the effective font size, and the toolbar position
// for the reported rect. The selected content is wrapped in a marker so
// the selection survives focus loss; when the range cannot be wrapped the
// session falls back to the cloned range.
func (s *Session) CaptureSelection(blockID string, rng markup.Range, rect Rect) (*Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	s.dismissSelectionLocked()
	s.clearImageSelectionLocked()

	root := surf.tree.Root()
	text := markup.RangeText(root, rng)
	fontSize := markup.QueryFontSize(root, rng)

	markerID := uuid.NewString()
	if err := markup.WrapRange(root, rng, markerID); err != nil {
		if !errors.Is(err, domain.ErrRangeUnwrappable) {
			return nil, err
		}
		s.logger.Debug("selection not wrappable, keeping cloned range", "session_id", s.ID, "block_id", blockID)
		markerID = ""
	}

	sel := &Selection{
		BlockID:  blockID,
		Range:    rng,
		MarkerID: markerID,
		Text:     text,
		FontSize: fontSize,
		Rect:     rect,
		Toolbar:  toolbarPositionFor(s.manager.registry.Toolbar(), rect),
	}
	s.selection = sel

	out := *sel
	return &out, nil
}

// DismissSelection drops the active selection and unwraps its marker.
func (s *Session) DismissSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissSelectionLocked()
}

// FormatResult reports a formatting command's outcome. Selection is nil
// when the command dismissed it; sticky commands keep it alive.
type FormatResult struct {
	Block     *models.Block `json:"block,omitempty"`
	Dirty     bool          `json:"dirty,omitempty"`
	Selection *Selection    `json:"selection,omitempty"`
}

// ApplyFormat runs a formatting command against the active selection and
// persists the result. Sticky commands (font size, colors) keep the
// selection for immediate reapplication; everything else dismisses it.
func (s *Session) ApplyFormat(ctx context.Context, name, value string) (*FormatResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := markup.ParseCommand(name)
	if !ok {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown command %q", name)}
	}
	sel := s.selection
	if sel == nil {
		return nil, domain.ErrNoActiveSelection
	}
	surf, ok := s.surfaces[sel.BlockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	root := surf.tree.Root()
	var err error
	if sel.MarkerID != "" {
		err = markup.ApplyToMarker(root, sel.MarkerID, cmd, value)
	} else {
		err = markup.ApplyToRange(root, sel.Range, cmd, value)
	}
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		// Stale range or lost marker: the selection is gone, nothing to do.
		s.logger.Debug("format skipped", "session_id", s.ID, "command", name, "error", err)
		s.selection = nil
		return nil, domain.ErrNoActiveSelection
	}

	blk, dirty, gone := s.persistSurfaceLocked(ctx, surf)
	if gone {
		delete(s.surfaces, sel.BlockID)
		s.selection = nil
		return nil, domain.ErrNoActiveSelection
	}

	res := &FormatResult{Block: blk, Dirty: dirty}
	if s.manager.registry.Sticky(name) {
		if cmd == markup.CommandFontSize {
			if m := markup.FindMarker(root, sel.MarkerID); m != nil {
				sel.FontSize = markup.QueryFontSizeAt(root, m.FirstChild)
			} else {
				sel.FontSize = markup.QueryFontSize(root, sel.Range)
			}
		}
		out := *sel
		res.Selection = &out
	} else {
		s.dismissSelectionLocked()
	}

	s.logger.Info("format applied", "session_id", s.ID, "block_id", sel.BlockID, "command", name)
	return res, nil
}

// dismissSelectionLocked unwraps the active marker and clears the
// selection. Callers hold s.mu.
func (s *Session) dismissSelectionLocked() {
	if s.selection == nil {
		return
	}
	if s.selection.MarkerID != "" {
		if surf, ok := s.surfaces[s.selection.BlockID]; ok {
			markup.UnwrapMarker(surf.tree.Root(), s.selection.MarkerID)
		}
	}
	s.selection = nil
}

// closeOtherSurfacesLocked runs cancel semantics on every surface except
// keepBlockID: unsaved changes are dropped and blocks whose persisted
// content never held anything are deleted. Editing is exclusive per
// session, so starting an edit elsewhere closes whatever was open.
// Callers hold s.mu.
func (s *Session) closeOtherSurfacesLocked(ctx context.Context, keepBlockID string) {
	for id := range s.surfaces {
		if id == keepBlockID {
			continue
		}
		if s.selection != nil && s.selection.BlockID == id {
			s.dismissSelectionLocked()
		}
		if s.imageSel != nil && s.imageSel.blockID == id {
			s.clearImageSelectionLocked()
		}
		surf := s.surfaces[id]
		delete(s.surfaces, id)
		if contentEmpty(surf.baseline.Content) {
			if err := s.manager.blocks.DeleteBlock(ctx, id, true); err != nil && !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("empty block cleanup failed", "session_id", s.ID, "block_id", id, "error", err)
			}
			s.logger.Info("empty block discarded", "session_id", s.ID, "block_id", id)
		}
	}
}

// clearImageSelectionLocked clears the image selection and its classes.
// Callers hold s.mu.
func (s *Session) clearImageSelectionLocked() {
	if s.imageSel == nil {
		return
	}
	if surf, ok := s.surfaces[s.imageSel.blockID]; ok {
		markup.DeselectImages(surf.tree.Root())
	}
	s.imageSel = nil
}

// persistSurfaceLocked writes a surface's markup through the block
// service. Failures stay local: the baseline is returned with the dirty
// flag raised. gone reports that the block no longer exists server-side.
// Callers hold s.mu.
func (s *Session) persistSurfaceLocked(ctx context.Context, surf *surface) (blk *models.Block, dirty, gone bool) {
	raw, err := surf.tree.Render()
	if err != nil {
		s.logger.Error("surface render failed", "session_id", s.ID, "block_id", surf.blockID, "error", err)
		surf.dirty = true
		b := surf.baseline
		return &b, true, false
	}

	upd, err := s.manager.blocks.UpdateBlock(ctx, surf.blockID, &services.UpdateBlockRequest{Content: &raw})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("block vanished during persist", "session_id", s.ID, "block_id", surf.blockID)
			return nil, false, true
		}
		s.logger.Warn("block persist failed, keeping local state", "session_id", s.ID, "block_id", surf.blockID, "error", err)
		surf.dirty = true
		b := surf.baseline
		return &b, true, false
	}

	surf.baseline = *upd
	surf.dirty = false
	return upd, false, false
}

// contentEmpty reports whether stored markup holds no text and no inline
// images. Empty blocks are the ones cancel may delete without asking.
func contentEmpty(content string) bool {
	if strings.TrimSpace(content) == "" {
		return true
	}
	tree, err := markup.Parse(content)
	if err != nil {
		return false
	}
	if len(markup.ImageWrappers(tree.Root())) > 0 {
		return false
	}
	return markup.PlainText(tree.Root()) == ""
}
