package handler

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"arbor/internal/config"
	"arbor/internal/domain/services"
	"arbor/internal/httputil"
)

// AttachmentHandler handles file upload, download and deletion
type AttachmentHandler struct {
	attachmentService services.AttachmentService
	logger            *slog.Logger
}

// NewAttachmentHandler creates a new attachment handler
func NewAttachmentHandler(attachmentService services.AttachmentService, logger *slog.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		attachmentService: attachmentService,
		logger:            logger,
	}
}

// Upload stores one or more files against a block
// POST /api/blocks/{blockID}/files (multipart, field "files")
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("blockID")
	if blockID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Block ID is required")
		return
	}

	if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse multipart form: %v", err))
		return
	}

	uploads, closeUploads, err := collectUploads(r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeUploads()

	attachments, err := h.attachmentService.Upload(r.Context(), &blockID, uploads)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, attachments)
}

// GetFile streams an attachment's bytes
// GET /api/files/{fileID}?download=
//
// The content type is the sniffed one from upload time, never the file
// extension. download=true forces a save dialog with the original name.
func (h *AttachmentHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	if fileID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "File ID is required")
		return
	}

	att, rc, err := h.attachmentService.Open(r.Context(), fileID)
	if err != nil {
		handleError(w, err)
		return
	}
	defer rc.Close()

	disposition := "inline"
	if r.URL.Query().Get("download") == "true" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": att.FileName}))

	http.ServeContent(w, r, att.FileName, att.CreatedAt, rc)
}

// DeleteFile removes an attachment, stripping any inline reference first
// DELETE /api/files/{fileID}
func (h *AttachmentHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	if fileID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "File ID is required")
		return
	}

	if err := h.attachmentService.Delete(r.Context(), fileID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// collectUploads opens every file under the multipart field "files". The
// returned closer releases them once the service has consumed the bytes.
func collectUploads(r *http.Request) ([]services.FileUpload, func(), error) {
	form := r.MultipartForm
	if form == nil || len(form.File["files"]) == 0 {
		return nil, nil, fmt.Errorf("no files provided under field 'files'")
	}

	headers := form.File["files"]
	uploads := make([]services.FileUpload, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %q: %w", fh.Filename, err)
		}
		closers = append(closers, f)
		uploads = append(uploads, services.FileUpload{
			FileName: fh.Filename,
			Size:     fh.Size,
			Data:     f,
		})
	}
	return uploads, closeAll, nil
}
