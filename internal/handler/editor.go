package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"arbor/internal/config"
	"arbor/internal/domain"
	"arbor/internal/editor"
	"arbor/internal/editor/markup"
	"arbor/internal/httputil"
)

// EditorHandler exposes the edit-session surface: the block state machine,
// selection and formatting, inline media gestures, and navigation.
type EditorHandler struct {
	manager  *editor.Manager
	registry *editor.Registry
	logger   *slog.Logger
}

// NewEditorHandler creates a new editor handler
func NewEditorHandler(manager *editor.Manager, registry *editor.Registry, logger *slog.Logger) *EditorHandler {
	return &EditorHandler{
		manager:  manager,
		registry: registry,
		logger:   logger,
	}
}

// handleEditorError routes editor errors. Missing preconditions (no
// surface, no selection, no selected image) are part of the best-effort
// editing contract: the client learns nothing happened, not that it erred.
func handleEditorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoEditSurface),
		errors.Is(err, domain.ErrNoActiveSelection),
		errors.Is(err, domain.ErrNoImageSelected):
		httputil.RespondJSON(w, http.StatusOK, map[string]bool{"noop": true})
	default:
		handleError(w, err)
	}
}

// session resolves the session named in the path, or responds and returns
// nil.
func (h *EditorHandler) session(w http.ResponseWriter, r *http.Request) *editor.Session {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Session ID is required")
		return nil
	}
	sess, err := h.manager.Get(sessionID)
	if err != nil {
		handleError(w, err)
		return nil
	}
	return sess
}

// GetCommands returns the command registry clients drive the toolbar with
// GET /api/editor/commands
func (h *EditorHandler) GetCommands(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.registry.Doc())
}

// CreateSession opens an edit session on a page
// POST /api/editor/sessions
//
// Either page_id names the page directly, with scroll_to carrying the
// block id of a deep link (#pageId:blockId), or entry carries the shared
// link itself (#pageId or #pageId:blockId, bare or inside a full URL) and
// both are resolved from it. The deferred scroll fires once the client
// reports the page loaded.
func (h *EditorHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageID   string `json:"page_id,omitempty"`
		ScrollTo string `json:"scroll_to,omitempty"`
		Entry    string `json:"entry,omitempty"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pageID, scrollTo := req.PageID, req.ScrollTo
	if pageID == "" && req.Entry != "" {
		var err error
		pageID, scrollTo, err = h.manager.ResolveEntry(r.Context(), req.Entry)
		if err != nil {
			handleError(w, err)
			return
		}
	}
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "page_id or entry is required")
		return
	}

	sess, err := h.manager.Open(r.Context(), pageID, scrollTo)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, sess.State())
}

// GetSession snapshots a session
// GET /api/editor/sessions/{sessionID}
func (h *EditorHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	httputil.RespondJSON(w, http.StatusOK, sess.State())
}

// CloseSession ends a session
// DELETE /api/editor/sessions/{sessionID}
func (h *EditorHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Session ID is required")
		return
	}
	if err := h.manager.Close(sessionID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenderSessionPage renders the session's page in view mode, honoring the
// session's search term
// GET /api/editor/sessions/{sessionID}/render
func (h *EditorHandler) RenderSessionPage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	res, err := sess.Render(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// CreateBlock creates a block through the session and starts editing it.
// Multipart requests additionally upload files and insert the images inline.
// POST /api/editor/sessions/{sessionID}/blocks
func (h *EditorHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		h.createBlockWithFiles(w, r, sess)
		return
	}

	var req struct {
		Type    string `json:"type,omitempty"`
		Content string `json:"content,omitempty"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state, err := sess.CreateBlock(r.Context(), req.Type, req.Content)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, state)
}

// createBlockWithFiles creates an empty editing block and inserts the
// uploaded images inline, in one request.
func (h *EditorHandler) createBlockWithFiles(w http.ResponseWriter, r *http.Request, sess *editor.Session) {
	if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}
	uploads, closeUploads, err := collectUploads(r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeUploads()

	state, err := sess.CreateBlock(r.Context(), r.FormValue("type"), "")
	if err != nil {
		handleError(w, err)
		return
	}

	res, err := sess.InsertImages(r.Context(), state.Block.ID, uploads)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, res)
}

// BeginEdit switches a block into editing state
// POST /api/editor/sessions/{sessionID}/blocks/{blockID}/edit
func (h *EditorHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	state, err := sess.BeginEdit(r.Context(), r.PathValue("blockID"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// UpdateSurface syncs the client's working markup into the session
// PUT /api/editor/sessions/{sessionID}/blocks/{blockID}/surface
func (h *EditorHandler) UpdateSurface(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	state, err := sess.UpdateSurface(r.Context(), r.PathValue("blockID"), req.Content)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// SaveBlock persists a surface and leaves editing state
// POST /api/editor/sessions/{sessionID}/blocks/{blockID}/save
func (h *EditorHandler) SaveBlock(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	state, err := sess.Save(r.Context(), r.PathValue("blockID"))
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// CancelBlock discards a surface; a never-filled block is deleted
// POST /api/editor/sessions/{sessionID}/blocks/{blockID}/cancel
func (h *EditorHandler) CancelBlock(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	state, err := sess.Cancel(r.Context(), r.PathValue("blockID"))
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// DeleteBlock deletes a block through the state machine
// DELETE /api/editor/sessions/{sessionID}/blocks/{blockID}?confirm=true
func (h *EditorHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	state, err := sess.Delete(r.Context(), r.PathValue("blockID"), confirmed)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// CaptureSelection records a settled text selection
// POST /api/editor/sessions/{sessionID}/blocks/{blockID}/selection
func (h *EditorHandler) CaptureSelection(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Range markup.Range `json:"range"`
		Rect  editor.Rect  `json:"rect"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sel, err := sess.CaptureSelection(r.PathValue("blockID"), req.Range, req.Rect)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, sel)
}

// DismissSelection drops the active selection (click-outside, Escape)
// DELETE /api/editor/sessions/{sessionID}/selection
func (h *EditorHandler) DismissSelection(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	sess.DismissSelection()
	w.WriteHeader(http.StatusNoContent)
}

// ApplyFormat runs a formatting command against the active selection
// POST /api/editor/sessions/{sessionID}/format
func (h *EditorHandler) ApplyFormat(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Command string `json:"command"`
		Value   string `json:"value,omitempty"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := sess.ApplyFormat(r.Context(), req.Command, req.Value)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// InsertImages inserts inline images into an editing block: either a
// multipart upload or an already-uploaded attachment named by file_id
// POST /api/editor/sessions/{sessionID}/blocks/{blockID}/images
func (h *EditorHandler) InsertImages(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	blockID := r.PathValue("blockID")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		uploads, closeUploads, err := collectUploads(r)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer closeUploads()

		res, err := sess.InsertImages(r.Context(), blockID, uploads)
		if err != nil {
			handleEditorError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, res)
		return
	}

	var req struct {
		FileID string `json:"file_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "file_id is required")
		return
	}
	res, err := sess.InsertExistingImage(r.Context(), blockID, req.FileID)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// SelectImage marks an inline image as selected
// POST /api/editor/sessions/{sessionID}/images/{fileID}/select
func (h *EditorHandler) SelectImage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		BlockID string `json:"block_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := sess.SelectImage(req.BlockID, r.PathValue("fileID"))
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// DeselectImage clears the image selection
// DELETE /api/editor/sessions/{sessionID}/images/selection
func (h *EditorHandler) DeselectImage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	sess.DeselectImage()
	w.WriteHeader(http.StatusNoContent)
}

// ResizeImage applies a resize gesture to the selected image
// POST /api/editor/sessions/{sessionID}/images/resize
func (h *EditorHandler) ResizeImage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req editor.ResizeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := sess.ResizeImage(r.Context(), req)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// SetImageWrap changes the selected image's text wrap mode
// POST /api/editor/sessions/{sessionID}/images/wrap
func (h *EditorHandler) SetImageWrap(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := sess.SetImageWrap(r.Context(), req.Mode)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// DropImage moves the selected image to a drop anchor
// POST /api/editor/sessions/{sessionID}/images/drop
func (h *EditorHandler) DropImage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Target markup.Anchor `json:"target"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := sess.DropImage(r.Context(), req.Target)
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// DeleteImage removes the selected inline image and its attachment
// DELETE /api/editor/sessions/{sessionID}/images
func (h *EditorHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	res, err := sess.DeleteImage(r.Context())
	if err != nil {
		handleEditorError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// Navigate resolves an activated link into a navigation action
// POST /api/editor/sessions/{sessionID}/navigate
func (h *EditorHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Href string `json:"href"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	action, err := sess.Navigate(r.Context(), req.Href)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, action)
}

// PageLoaded reports that the client finished loading a page; a matching
// pending deep link yields the deferred scroll effect
// POST /api/editor/sessions/{sessionID}/loaded
func (h *EditorHandler) PageLoaded(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		PageID string `json:"page_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	scroll := sess.PageLoaded(req.PageID)
	httputil.RespondJSON(w, http.StatusOK, struct {
		Scroll *editor.ScrollEffect `json:"scroll,omitempty"`
	}{Scroll: scroll})
}

// SetTerm sets or clears the session's search term for render highlighting
// POST /api/editor/sessions/{sessionID}/term
func (h *EditorHandler) SetTerm(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Term string `json:"term"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Term) > config.MaxSearchTermLength {
		httputil.RespondError(w, http.StatusBadRequest, "search term too long")
		return
	}
	sess.SetTerm(req.Term)
	w.WriteHeader(http.StatusNoContent)
}
