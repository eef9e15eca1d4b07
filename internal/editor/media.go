package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
	"arbor/internal/editor/markup"
)

const attachmentCleanupTimeout = 30 * time.Second

// ImageState describes one inline image as the client should render it.
type ImageState struct {
	FileID   string `json:"file_id"`
	WrapMode string `json:"wrap_mode"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// MediaResult reports an image gesture's outcome. Block is set only when
// the gesture persisted content.
type MediaResult struct {
	Block *models.Block `json:"block,omitempty"`
	Dirty bool          `json:"dirty,omitempty"`
	Image *ImageState   `json:"image,omitempty"`
}

// InsertResult reports an upload-and-insert. Non-image files are uploaded
// but never inserted inline; their names land in Skipped and the files
// stay available as plain block attachments.
type InsertResult struct {
	Block       *models.Block       `json:"block,omitempty"`
	Dirty       bool                `json:"dirty,omitempty"`
	Attachments []models.Attachment `json:"attachments"`
	Inserted    []ImageState        `json:"inserted,omitempty"`
	Skipped     []string            `json:"skipped,omitempty"`
}

// InsertImages uploads files against an editing block and inserts each
// image inline at the selection point, or at the end of the block when no
// selection is active. Upload failures surface to the caller; this is one
// of the few paths the user is actively waiting on.
func (s *Session) InsertImages(ctx context.Context, blockID string, files []services.FileUpload) (*InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	atts, err := s.manager.attachments.Upload(ctx, &blockID, files)
	if err != nil {
		return nil, err
	}

	root := surf.tree.Root()
	res := &InsertResult{Attachments: atts}
	var images []*models.Attachment
	for i := range atts {
		if atts[i].IsImage() {
			images = append(images, &atts[i])
		} else {
			res.Skipped = append(res.Skipped, atts[i].FileName)
		}
	}
	if len(images) == 0 {
		// Nothing goes inline; the block content is untouched.
		blk := surf.baseline
		res.Block = &blk
		res.Dirty = surf.dirty
		return res, nil
	}

	insert := s.insertAfterSelection(root, blockID)
	var lastID string
	for _, att := range images {
		w := markup.BuildImageWrapper(att.ID, att.URL(), att.FileName)
		insert = insert(w)
		lastID = att.ID
	}

	s.dismissSelectionLocked()
	markup.SelectImage(root, lastID)
	s.imageSel = &imageSelection{blockID: blockID, fileID: lastID}

	blk, dirty, gone := s.persistSurfaceLocked(ctx, surf)
	if gone {
		delete(s.surfaces, blockID)
		s.imageSel = nil
		return nil, domain.ErrNoEditSurface
	}
	res.Block = blk
	res.Dirty = dirty
	for _, att := range images {
		if st := imageStateOf(root, att.ID); st != nil {
			res.Inserted = append(res.Inserted, *st)
		}
	}

	s.logger.Info("images inserted", "session_id", s.ID, "block_id", blockID, "count", len(res.Inserted), "skipped", len(res.Skipped))
	return res, nil
}

// InsertExistingImage inserts an already-uploaded attachment inline at the
// selection point. Only image attachments may go inline; anything else is
// rejected rather than silently skipped, since the caller named one file.
func (s *Session) InsertExistingImage(ctx context.Context, blockID, fileID string) (*InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	att, err := s.manager.attachments.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !att.IsImage() {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("attachment %q is not an image", att.FileName)}
	}

	root := surf.tree.Root()
	w := markup.BuildImageWrapper(att.ID, att.URL(), att.FileName)
	s.insertAfterSelection(root, blockID)(w)

	s.dismissSelectionLocked()
	markup.SelectImage(root, att.ID)
	s.imageSel = &imageSelection{blockID: blockID, fileID: att.ID}

	blk, dirty, gone := s.persistSurfaceLocked(ctx, surf)
	if gone {
		delete(s.surfaces, blockID)
		s.imageSel = nil
		return nil, domain.ErrNoEditSurface
	}

	res := &InsertResult{Block: blk, Dirty: dirty, Attachments: []models.Attachment{*att}}
	if st := imageStateOf(root, att.ID); st != nil {
		res.Inserted = append(res.Inserted, *st)
	}

	s.logger.Info("image inserted", "session_id", s.ID, "block_id", blockID, "file_id", att.ID)
	return res, nil
}

// insertFn places a node at the current insertion point and returns the
// insertion point for the next node, so consecutive inserts stay in order.
type insertFn func(*html.Node) insertFn

// insertAfterSelection resolves where inline content enters the block:
// right after the selection marker, at the cloned range's end, or appended
// to the block root. Callers hold s.mu.
func (s *Session) insertAfterSelection(root *html.Node, blockID string) insertFn {
	if sel := s.selection; sel != nil && sel.BlockID == blockID {
		if sel.MarkerID != "" {
			if m := markup.FindMarker(root, sel.MarkerID); m != nil {
				return insertAfterNode(m)
			}
		}
		anchor := sel.Range.End
		placeholder := markup.NewText("")
		if markup.InsertAt(root, &anchor, placeholder) {
			fn := insertAfterNode(placeholder)
			return func(n *html.Node) insertFn {
				next := fn(n)
				markup.Detach(placeholder)
				return next
			}
		}
	}
	return func(n *html.Node) insertFn {
		root.AppendChild(n)
		return insertAfterNode(n)
	}
}

func insertAfterNode(after *html.Node) insertFn {
	return func(n *html.Node) insertFn {
		after.Parent.InsertBefore(n, after.NextSibling)
		return insertAfterNode(n)
	}
}

// SelectImage marks an inline image as selected. Selection classes are
// transient and never persisted, so this touches only the live tree.
func (s *Session) SelectImage(blockID, fileID string) (*MediaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	surf, ok := s.surfaces[blockID]
	if !ok {
		return nil, domain.ErrNoEditSurface
	}

	s.dismissSelectionLocked()
	root := surf.tree.Root()
	if !markup.SelectImage(root, fileID) {
		return nil, domain.ErrNoImageSelected
	}
	s.imageSel = &imageSelection{blockID: blockID, fileID: fileID}
	return &MediaResult{Image: imageStateOf(root, fileID)}, nil
}

// DeselectImage clears the image selection.
func (s *Session) DeselectImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearImageSelectionLocked()
}

// ResizeRequest is one resize gesture: which handle moved and by how much,
// against the size the image had when the drag started.
type ResizeRequest struct {
	Handle      string `json:"handle"`
	StartWidth  int    `json:"start_width"`
	StartHeight int    `json:"start_height"`
	DX          int    `json:"dx"`
	DY          int    `json:"dy"`
}

// ResizeImage applies a handle drag to the selected image and persists the
// result. Corner handles hold the aspect ratio; edge handles resize one
// axis. Sizes never go below the minimum.
func (s *Session) ResizeImage(ctx context.Context, req ResizeRequest) (*MediaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, surf, err := s.selectedImageLocked()
	if err != nil {
		return nil, err
	}
	root := surf.tree.Root()
	w := markup.FindImageWrapper(root, sel.fileID)
	if w == nil {
		s.imageSel = nil
		return nil, domain.ErrNoImageSelected
	}

	width, height, err := markup.ResizeImage(req.Handle, req.StartWidth, req.StartHeight, req.DX, req.DY)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}
	markup.SetImageSize(w, width, height)
	markup.SetDragging(w, false)

	return s.persistImageLocked(ctx, surf, sel.fileID)
}

// SetImageWrap changes the selected image's text wrap mode. The new mode
// persists immediately rather than waiting for a save.
func (s *Session) SetImageWrap(ctx context.Context, mode string) (*MediaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, surf, err := s.selectedImageLocked()
	if err != nil {
		return nil, err
	}
	root := surf.tree.Root()
	w := markup.FindImageWrapper(root, sel.fileID)
	if w == nil {
		s.imageSel = nil
		return nil, domain.ErrNoImageSelected
	}

	if err := markup.SetWrapMode(w, mode); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	s.logger.Info("image wrap changed", "session_id", s.ID, "file_id", sel.fileID, "mode", mode)
	return s.persistImageLocked(ctx, surf, sel.fileID)
}

// DropImage moves the selected image to a new position in its block. An
// unresolvable drop target abandons the gesture and leaves the tree
// untouched.
func (s *Session) DropImage(ctx context.Context, target markup.Anchor) (*MediaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, surf, err := s.selectedImageLocked()
	if err != nil {
		return nil, err
	}
	root := surf.tree.Root()
	w := markup.FindImageWrapper(root, sel.fileID)
	if w == nil {
		s.imageSel = nil
		return nil, domain.ErrNoImageSelected
	}

	// Stake out the target with a placeholder before detaching the
	// wrapper, otherwise detaching shifts the paths the anchor resolves
	// against.
	placeholder := markup.NewText("")
	if !markup.InsertAt(root, &target, placeholder) {
		markup.SetDragging(w, false)
		return &MediaResult{Image: imageStateOf(root, sel.fileID)}, nil
	}
	if markup.Ancestor(root, placeholder, func(a *html.Node) bool { return a == w }) != nil {
		// Target landed inside the wrapper itself.
		markup.Detach(placeholder)
		markup.SetDragging(w, false)
		return &MediaResult{Image: imageStateOf(root, sel.fileID)}, nil
	}

	markup.Detach(w)
	placeholder.Parent.InsertBefore(w, placeholder)
	markup.Detach(placeholder)
	markup.SetDragging(w, false)
	markup.SelectImage(root, sel.fileID)

	s.logger.Info("image repositioned", "session_id", s.ID, "block_id", sel.blockID, "file_id", sel.fileID)
	return s.persistImageLocked(ctx, surf, sel.fileID)
}

// DeleteImage removes the selected inline image and persists the block.
// The backing attachment is cleaned up in the background; a failed cleanup
// only logs, since the content reference is already gone.
func (s *Session) DeleteImage(ctx context.Context) (*MediaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, surf, err := s.selectedImageLocked()
	if err != nil {
		return nil, err
	}
	root := surf.tree.Root()
	fileID := sel.fileID
	if !markup.RemoveImageWrapper(root, fileID) {
		s.imageSel = nil
		return nil, domain.ErrNoImageSelected
	}
	s.imageSel = nil

	blk, dirty, gone := s.persistSurfaceLocked(ctx, surf)
	if gone {
		delete(s.surfaces, surf.blockID)
		return nil, domain.ErrNoEditSurface
	}

	logger := s.logger
	attachments := s.manager.attachments
	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), attachmentCleanupTimeout)
		defer cancel()
		if err := attachments.Delete(dctx, fileID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("inline image attachment cleanup failed", "file_id", fileID, "error", err)
		}
	}()

	s.logger.Info("inline image deleted", "session_id", s.ID, "block_id", surf.blockID, "file_id", fileID)
	return &MediaResult{Block: blk, Dirty: dirty}, nil
}

// selectedImageLocked resolves the image selection and its surface.
// Callers hold s.mu.
func (s *Session) selectedImageLocked() (*imageSelection, *surface, error) {
	if s.imageSel == nil {
		return nil, nil, domain.ErrNoImageSelected
	}
	surf, ok := s.surfaces[s.imageSel.blockID]
	if !ok {
		s.imageSel = nil
		return nil, nil, domain.ErrNoEditSurface
	}
	return s.imageSel, surf, nil
}

// persistImageLocked persists a surface after an image gesture and bundles
// the image's current state into the result. Callers hold s.mu.
func (s *Session) persistImageLocked(ctx context.Context, surf *surface, fileID string) (*MediaResult, error) {
	blk, dirty, gone := s.persistSurfaceLocked(ctx, surf)
	if gone {
		delete(s.surfaces, surf.blockID)
		s.imageSel = nil
		return nil, domain.ErrNoEditSurface
	}
	return &MediaResult{Block: blk, Dirty: dirty, Image: imageStateOf(surf.tree.Root(), fileID)}, nil
}

func imageStateOf(root *html.Node, fileID string) *ImageState {
	w := markup.FindImageWrapper(root, fileID)
	if w == nil {
		return nil
	}
	width, height := markup.ImageSize(w)
	return &ImageState{FileID: fileID, WrapMode: markup.WrapModeOf(w), Width: width, Height: height}
}
