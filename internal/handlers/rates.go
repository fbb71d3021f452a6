package handlers

import (
	"errors"
	"net/http"

	"github.com/1etu/easyupoo/internal/rates"
)

// RatesHandler serves the current exchange-rate table.
type RatesHandler struct {
	Provider *rates.Provider
}

func NewRatesHandler(p *rates.Provider) *RatesHandler {
	return &RatesHandler{Provider: p}
}

type ratesResponse struct {
	rates.Table
	// Stale marks a table served as a last resort after every source
	// failed. Callers decide whether an old conversion beats none.
	Stale bool `json:"stale,omitempty"`
}

// Get handles GET /v1/rates.
func (h *RatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	table, err := h.Provider.Rates(r.Context())
	if err != nil {
		if errors.Is(err, rates.ErrRatesUnavailable) && len(table.Rates) > 0 {
			writeJSON(w, http.StatusOK, ratesResponse{Table: table, Stale: true})
			return
		}
		writeError(w, http.StatusServiceUnavailable, "rates_unavailable",
			"every exchange rate source failed and no table is cached")
		return
	}
	writeJSON(w, http.StatusOK, ratesResponse{Table: table})
}
