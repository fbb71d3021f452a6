package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/fees"
	"github.com/1etu/easyupoo/internal/platform"
	"github.com/1etu/easyupoo/internal/prefs"
	"github.com/1etu/easyupoo/internal/resolve"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

// Resolver is the pipeline surface the handler needs.
type Resolver interface {
	Resolve(ctx context.Context, listingURL string) resolve.ResolvedPrice
	Refresh(ctx context.Context, listingURL string) resolve.ResolvedPrice
}

// PriceHandler serves POST /v1/resolve: resolve a listing's upstream price
// and apply the agent fee + currency conversion at presentation time.
type PriceHandler struct {
	Pipeline Resolver
	Fees     *fees.Engine
	Prefs    *prefs.Service
}

func NewPriceHandler(pipeline Resolver, engine *fees.Engine, preferences *prefs.Service) *PriceHandler {
	return &PriceHandler{
		Pipeline: pipeline,
		Fees:     engine,
		Prefs:    preferences,
	}
}

type resolveRequest struct {
	URL      string `json:"url"`
	Refresh  bool   `json:"refresh,omitempty"`
	Agent    string `json:"agent,omitempty"`    // overrides stored preference
	Currency string `json:"currency,omitempty"` // overrides stored preference
}

type displayPrice struct {
	Amount    float64 `json:"amount"`
	Formatted string  `json:"formatted"`
	Currency  string  `json:"currency"`
	Agent     string  `json:"agent"`
}

type resolveResponse struct {
	Platform  platform.ID   `json:"platform,omitempty"`
	Price     *float64      `json:"price"`
	Link      string        `json:"link,omitempty"`
	AgentLink string        `json:"agentLink,omitempty"`
	Display   *displayPrice `json:"display,omitempty"`
}

// ResolvePrice handles POST /v1/resolve.
func (h *PriceHandler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid_url", "url must be an absolute http(s) URL")
		return
	}

	var resolved resolve.ResolvedPrice
	if req.Refresh {
		resolved = h.Pipeline.Refresh(ctx, req.URL)
	} else {
		resolved = h.Pipeline.Resolve(ctx, req.URL)
	}

	// Presentation settings: stored preferences, overridable per request.
	// The fee/conversion layer is never cached, so these change freely.
	stored, err := h.Prefs.Get(ctx)
	if err != nil {
		logger.Warn("preferences unavailable, using defaults", zap.Error(err))
	}
	agent := stored.Agent
	if req.Agent != "" {
		agent = req.Agent
	}
	currency := stored.Currency
	if req.Currency != "" {
		currency = req.Currency
	}

	resp := resolveResponse{
		Platform: resolved.Platform,
		Price:    resolved.Price,
		Link:     resolved.Link,
	}

	if resolved.Price != nil {
		amount := h.Fees.DisplayPrice(*resolved.Price, upstreamCurrency, agent, currency)
		resp.Display = &displayPrice{
			Amount:    amount,
			Formatted: fees.Format(amount, currency),
			Currency:  currency,
			Agent:     agent,
		}
	}
	if resolved.ProductID != "" {
		if link, ok := h.Fees.AgentLink(agent, fees.LinkRef{
			Platform:    resolved.Platform,
			ProductID:   resolved.ProductID,
			UpstreamURL: resolved.Link,
		}); ok {
			resp.AgentLink = link
		}
	}

	logger.Info("resolve_decision",
		zap.String("listing", req.URL),
		zap.String("platform", string(resolved.Platform)),
		zap.Bool("available", resolved.Available()),
		zap.Bool("refresh", req.Refresh),
		zap.String("agent", agent),
		zap.String("currency", currency),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, resp)
}

// upstreamCurrency is the currency upstream platforms quote in.
const upstreamCurrency = "CNY"
