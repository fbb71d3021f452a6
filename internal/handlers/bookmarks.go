package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/bookmarks"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

// BookmarkHandler serves the bookmark map: list, upsert, delete.
type BookmarkHandler struct {
	Bookmarks *bookmarks.Manager
}

func NewBookmarkHandler(m *bookmarks.Manager) *BookmarkHandler {
	return &BookmarkHandler{Bookmarks: m}
}

// List handles GET /v1/bookmarks.
func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	all, err := h.Bookmarks.List(ctx)
	if err != nil {
		logging.L(ctx).Error("bookmark list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store_error", "could not load bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookmarks": all})
}

type bookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Put handles PUT /v1/bookmarks. Re-adding a URL overwrites the existing
// bookmark.
func (h *BookmarkHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req bookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing_url", "url is required")
		return
	}

	b, err := h.Bookmarks.Add(ctx, req.Title, req.URL)
	if err != nil {
		logging.L(ctx).Error("bookmark add failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store_error", "could not save bookmark")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /v1/bookmarks?url=...
func (h *BookmarkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing_url", "url query parameter is required")
		return
	}

	if err := h.Bookmarks.Remove(ctx, url); err != nil {
		logging.L(ctx).Error("bookmark remove failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store_error", "could not remove bookmark")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
