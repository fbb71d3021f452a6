package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/prefs"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

// PreferenceHandler serves the user preference record. Saving broadcasts
// the change to every subscribed context.
type PreferenceHandler struct {
	Prefs *prefs.Service
}

func NewPreferenceHandler(s *prefs.Service) *PreferenceHandler {
	return &PreferenceHandler{Prefs: s}
}

// Get handles GET /v1/preferences.
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.Prefs.Get(ctx)
	if err != nil {
		// Defaults are still served; the failure is an operator concern.
		logging.L(ctx).Warn("preference load failed, serving defaults", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, p)
}

// Put handles PUT /v1/preferences.
func (h *PreferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var p prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	if err := h.Prefs.Save(ctx, p); err != nil {
		logging.L(ctx).Error("preference save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store_error", "could not save preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
