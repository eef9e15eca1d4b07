package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/repositories"
	"arbor/internal/domain/services"
	"arbor/internal/editor/markup"
	"arbor/internal/storage"
)

// attachmentService implements the AttachmentService interface. Rows are
// authoritative; disk bytes follow them. Uploads are all-or-nothing: bytes
// land on disk first, rows commit in one transaction, and a failed commit
// sweeps the bytes back off disk.
type attachmentService struct {
	attachmentRepo repositories.AttachmentRepository
	blocks         services.BlockService
	store          storage.FileStore
	txManager      repositories.TransactionManager
	logger         *slog.Logger
}

// NewAttachmentService creates a new attachment service
func NewAttachmentService(
	attachmentRepo repositories.AttachmentRepository,
	blocks services.BlockService,
	store storage.FileStore,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) services.AttachmentService {
	return &attachmentService{
		attachmentRepo: attachmentRepo,
		blocks:         blocks,
		store:          store,
		txManager:      txManager,
		logger:         logger,
	}
}

// Upload stores one or more files, sniffing each MIME type from the bytes.
// blockID, when set, makes the block own every file.
func (s *attachmentService) Upload(ctx context.Context, blockID *string, files []services.FileUpload) ([]models.Attachment, error) {
	if err := validateUpload(files); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if blockID != nil && *blockID == "" {
		blockID = nil
	}
	if blockID != nil {
		if _, err := s.blocks.GetBlock(ctx, *blockID); err != nil {
			return nil, err
		}
	}

	attachments := make([]models.Attachment, 0, len(files))
	stored := make([]string, 0, len(files))
	cleanup := func() {
		for _, name := range stored {
			if err := s.store.Delete(name); err != nil {
				s.logger.Warn("upload cleanup failed", "stored_name", name, "error", err)
			}
		}
	}

	for _, f := range files {
		name := filepath.Base(f.FileName)
		sf, err := s.store.Save(name, f.Data)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("store %q: %w", name, err)
		}
		stored = append(stored, sf.StoredName)
		attachments = append(attachments, models.Attachment{
			FileName:   name,
			StoredName: sf.StoredName,
			MimeType:   sf.MimeType,
			ByteSize:   sf.ByteSize,
			BlockID:    blockID,
		})
	}

	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		for i := range attachments {
			if err := s.attachmentRepo.Create(ctx, &attachments[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	s.logger.Info("attachments uploaded", "count", len(attachments), "block_id", blockID)
	return attachments, nil
}

// Get retrieves attachment metadata.
func (s *attachmentService) Get(ctx context.Context, id string) (*models.Attachment, error) {
	return s.attachmentRepo.GetByID(ctx, id)
}

// Open returns the attachment and a reader over its bytes for streaming.
// The caller closes the reader.
func (s *attachmentService) Open(ctx context.Context, id string) (*models.Attachment, io.ReadSeekCloser, error) {
	att, err := s.attachmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(att.StoredName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("attachment %s bytes: %w", id, domain.ErrNotFound)
		}
		return nil, nil, err
	}
	return att, rc, nil
}

// Delete removes the attachment row and its disk bytes. When the owning
// block still references the file inline, the wrapper is stripped from the
// block content first so no dangling reference survives.
func (s *attachmentService) Delete(ctx context.Context, id string) error {
	att, err := s.attachmentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if att.BlockID != nil {
		if err := s.stripInlineReference(ctx, *att.BlockID, att.ID); err != nil {
			return err
		}
	}

	if err := s.attachmentRepo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.store.Delete(att.StoredName); err != nil {
		s.logger.Warn("stored file removal failed", "attachment_id", id, "stored_name", att.StoredName, "error", err)
	}

	s.logger.Info("attachment deleted", "id", id, "file_name", att.FileName, "block_id", att.BlockID)
	return nil
}

// stripInlineReference removes the inline image wrapper carrying fileID
// from a block's content, if one is there. A block already gone means
// nothing references the file.
func (s *attachmentService) stripInlineReference(ctx context.Context, blockID, fileID string) error {
	blk, err := s.blocks.GetBlock(ctx, blockID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	tree, err := markup.Parse(blk.Content)
	if err != nil {
		s.logger.Warn("inline reference strip skipped, unparseable content", "block_id", blockID, "error", err)
		return nil
	}
	if !markup.RemoveImageWrapper(tree.Root(), fileID) {
		return nil
	}
	content, err := tree.Render()
	if err != nil {
		return fmt.Errorf("render stripped content: %w", err)
	}

	if _, err := s.blocks.UpdateBlock(ctx, blockID, &services.UpdateBlockRequest{Content: &content}); err != nil {
		return fmt.Errorf("strip inline reference: %w", err)
	}
	return nil
}

// validateUpload checks the batch before any byte hits disk.
func validateUpload(files []services.FileUpload) error {
	if len(files) == 0 {
		return fmt.Errorf("no files provided")
	}
	if len(files) > config.MaxFilesPerUpload {
		return fmt.Errorf("too many files: %d (max %d)", len(files), config.MaxFilesPerUpload)
	}
	var total int64
	for _, f := range files {
		name := filepath.Base(f.FileName)
		if name == "" || name == "." || name == string(filepath.Separator) {
			return fmt.Errorf("file name is required")
		}
		if len(name) > config.MaxFileNameLength {
			return fmt.Errorf("file name %q too long (max %d)", name, config.MaxFileNameLength)
		}
		if f.Data == nil {
			return fmt.Errorf("file %q has no content", name)
		}
		if f.Size > config.MaxUploadBytes {
			return fmt.Errorf("file %q exceeds %d bytes", name, int64(config.MaxUploadBytes))
		}
		total += f.Size
	}
	if total > config.MaxUploadBytes {
		return fmt.Errorf("upload exceeds %d bytes", int64(config.MaxUploadBytes))
	}
	return nil
}
