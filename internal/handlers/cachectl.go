package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/cache"
	"github.com/1etu/easyupoo/internal/prefs"
	"github.com/1etu/easyupoo/internal/resolve"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

// CacheHandler exposes the cache maintenance surface: export, import, clear.
type CacheHandler struct {
	Cache *cache.Cache[resolve.ResolvedPrice]
	Prefs *prefs.Service
}

func NewCacheHandler(c *cache.Cache[resolve.ResolvedPrice], p *prefs.Service) *CacheHandler {
	return &CacheHandler{Cache: c, Prefs: p}
}

// Export handles GET /v1/cache/export.
func (h *CacheHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dump, err := h.Cache.Export(ctx)
	if err != nil {
		logging.L(ctx).Error("cache export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export_error", "could not export cache")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="easyupoo-cache.json"`)
	writeJSON(w, http.StatusOK, dump)
}

// Import handles POST /v1/cache/import. The dump's version must equal the
// running schema version exactly; a rejected file leaves the cache
// unmodified and the rejection reason is reported to the user.
func (h *CacheHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_error", "could not read import file")
		return
	}

	n, err := h.Cache.Import(ctx, raw)
	if err != nil {
		if errors.Is(err, cache.ErrInvalidDump) {
			// User-initiated action: surface the descriptive message.
			writeError(w, http.StatusBadRequest, "invalid_dump", err.Error())
			return
		}
		logger.Error("cache import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import_error", "could not import cache")
		return
	}

	logger.Info("cache imported", zap.Int("entries", n))
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// Clear handles DELETE /v1/cache and notifies active contexts.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.Cache.Clear(ctx)
	h.Prefs.NotifyCacheToggled(false)

	logging.L(ctx).Info("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
