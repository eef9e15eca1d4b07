package models

import (
	"time"
)

// Attachment is an uploaded file. BlockID is set when a block owns the
// file; inline images additionally reference the attachment by id from
// their wrapper markup (data-file-id), so an attachment can be "inline",
// "grid", or both at once.
type Attachment struct {
	ID         string    `json:"id" db:"id"`
	FileName   string    `json:"file_name" db:"file_name"`     // original name as uploaded
	StoredName string    `json:"stored_name" db:"stored_name"` // generated name on disk
	MimeType   string    `json:"mime_type" db:"mime_type"`     // sniffed, not client-supplied
	ByteSize   int64     `json:"byte_size" db:"byte_size"`
	BlockID    *string   `json:"block_id" db:"block_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// URL returns the canonical fetch path for the attachment's bytes.
func (a *Attachment) URL() string {
	return "/api/files/" + a.ID
}

// IsImage reports whether the sniffed MIME type is an image type. Inline
// insertion and file drops only accept image attachments.
func (a *Attachment) IsImage() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "image/"
}
