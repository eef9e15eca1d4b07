package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"arbor/internal/domain"
	"arbor/internal/domain/models"
	"arbor/internal/domain/services"
	"arbor/internal/httputil"
)

// PageHandler handles page HTTP requests
type PageHandler struct {
	pageService   services.PageService
	exportService services.ExportService
	logger        *slog.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(pageService services.PageService, exportService services.ExportService, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		pageService:   pageService,
		exportService: exportService,
		logger:        logger,
	}
}

// CreatePage creates a new page
// POST /api/pages
// Returns 201 if created, 409 with the existing page if the slug is taken
func (h *PageHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req services.CreatePageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	page, err := h.pageService.CreatePage(r.Context(), &req)
	if err != nil {
		HandleCreateConflict(w, err, func() (*models.Page, error) {
			var conflictErr *domain.ConflictError
			if errors.As(err, &conflictErr) {
				return h.pageService.GetPage(r.Context(), conflictErr.ResourceID)
			}
			return nil, err
		})
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, page)
}

// ListRootPages returns the top-level pages
// GET /api/pages
func (h *PageHandler) ListRootPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.pageService.ListRootPages(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, pages)
}

// GetTree returns the full nested page hierarchy
// GET /api/pages/tree
func (h *PageHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.pageService.GetTree(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, tree)
}

// GetPage returns a page with its ordered blocks and their attachments
// GET /api/pages/{pageID}
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageID")
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Page ID is required")
		return
	}

	page, err := h.pageService.GetPage(r.Context(), pageID)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, page)
}

// UpdatePage renames and/or moves a page
// PATCH /api/pages/{pageID}
//
// parent_id is tri-state: absent keeps the parent, null moves to root,
// a value reparents.
func (h *PageHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageID")
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Page ID is required")
		return
	}

	var body struct {
		Title    *string                 `json:"title"`
		ParentID httputil.OptionalString `json:"parent_id"`
		Position *int                    `json:"position"`
	}
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req := services.UpdatePageRequest{
		Title:    body.Title,
		Position: body.Position,
	}
	if body.ParentID.Present {
		req.ParentProvided = true
		req.ParentID = body.ParentID.Value
	}

	page, err := h.pageService.UpdatePage(r.Context(), pageID, &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, page)
}

// DeletePage soft-deletes a page, its subtree and their blocks
// DELETE /api/pages/{pageID}?confirm=true
func (h *PageHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageID")
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Page ID is required")
		return
	}

	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := h.pageService.DeletePage(r.Context(), pageID, confirmed); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportPage returns a page as a Markdown document
// GET /api/pages/{pageID}/export
func (h *PageHandler) ExportPage(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageID")
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Page ID is required")
		return
	}

	page, err := h.pageService.GetPage(r.Context(), pageID)
	if err != nil {
		handleError(w, err)
		return
	}
	markdown, err := h.exportService.ExportMarkdown(r.Context(), pageID)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", page.Slug+".md"))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(markdown))
}

// RenderPage returns a page's view-mode HTML, optionally highlighted
// GET /api/pages/{pageID}/rendered?term=
func (h *PageHandler) RenderPage(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageID")
	if pageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Page ID is required")
		return
	}

	rendered, err := h.pageService.RenderPage(r.Context(), pageID, r.URL.Query().Get("term"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, rendered)
}

// Search performs substring search over page titles and block content
// GET /api/search?q=&fields=&limit=&offset=
func (h *PageHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := services.SearchPagesRequest{Query: query.Get("q")}
	if fields := query.Get("fields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Fields = append(req.Fields, f)
			}
		}
	}
	var err error
	if req.Limit, err = queryInt(query.Get("limit"), 0); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if req.Offset, err = queryInt(query.Get("offset"), 0); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	results, err := h.pageService.Search(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, results)
}

// queryInt parses an optional integer query parameter.
func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
