package handler

import (
	"log/slog"
	"net/http"

	"arbor/internal/domain/services"
	"arbor/internal/httputil"
)

// BlockHandler handles block HTTP requests
type BlockHandler struct {
	blockService services.BlockService
	logger       *slog.Logger
}

// NewBlockHandler creates a new block handler
func NewBlockHandler(blockService services.BlockService, logger *slog.Logger) *BlockHandler {
	return &BlockHandler{
		blockService: blockService,
		logger:       logger,
	}
}

// CreateBlock creates a block on a page; a missing order appends
// POST /api/pages/{pageID}/blocks
func (h *BlockHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageID")
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Page ID is required")
		return
	}

	var req services.CreateBlockRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.PageID = pageID

	block, err := h.blockService.CreateBlock(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, block)
}

// GetBlock returns a block with its attachments
// GET /api/blocks/{blockID}
func (h *BlockHandler) GetBlock(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("blockID")
	if blockID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Block ID is required")
		return
	}

	block, err := h.blockService.GetBlock(r.Context(), blockID)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, block)
}

// UpdateBlock applies a partial update to a block
// PATCH /api/blocks/{blockID}
func (h *BlockHandler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("blockID")
	if blockID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Block ID is required")
		return
	}

	var req services.UpdateBlockRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	block, err := h.blockService.UpdateBlock(r.Context(), blockID, &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, block)
}

// DeleteBlock soft-deletes a block
// DELETE /api/blocks/{blockID}?confirm=true
func (h *BlockHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("blockID")
	if blockID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Block ID is required")
		return
	}

	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := h.blockService.DeleteBlock(r.Context(), blockID, confirmed); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
