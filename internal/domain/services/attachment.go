package services

import (
	"context"
	"io"

	"arbor/internal/domain/models"
)

// AttachmentService handles uploaded files: rows in the database, bytes on
// disk, and the inline references block content keeps by attachment id.
type AttachmentService interface {
	// Upload stores one or more files, sniffing each MIME type from the
	// bytes. blockID, when set, makes the block own the files.
	Upload(ctx context.Context, blockID *string, files []FileUpload) ([]models.Attachment, error)

	// Get retrieves attachment metadata.
	Get(ctx context.Context, id string) (*models.Attachment, error)

	// Open returns the attachment and a reader over its bytes for
	// streaming. The caller closes the reader.
	Open(ctx context.Context, id string) (*models.Attachment, io.ReadSeekCloser, error)

	// Delete removes the row and the disk bytes. When the owning block's
	// content references the file inline (data-file-id), the reference is
	// stripped first so no dangling wrapper survives.
	Delete(ctx context.Context, id string) error
}

// FileUpload is one incoming file. Data must be seekable so the MIME
// sniff can rewind before the bytes are written out.
type FileUpload struct {
	FileName string
	Size     int64
	Data     io.ReadSeeker
}
