package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/handlers"
	"github.com/1etu/easyupoo/internal/metrics"
	"github.com/1etu/easyupoo/internal/middleware"
)

// Handlers bundles the route handlers the router mounts.
type Handlers struct {
	Price       *handlers.PriceHandler
	Bookmarks   *handlers.BookmarkHandler
	Preferences *handlers.PreferenceHandler
	Cache       *handlers.CacheHandler
	Rates       *handlers.RatesHandler
	Events      *handlers.EventsHandler
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer()) // panic recovery

	// routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second)) // request timeout
		r.Use(middleware.MaxBodySize(512 * 1024))   // 512 KB max body

		r.Route("/v1", func(r chi.Router) {
			r.Post("/resolve", h.Price.ResolvePrice)

			r.Get("/rates", h.Rates.Get)

			r.Get("/preferences", h.Preferences.Get)
			r.Put("/preferences", h.Preferences.Put)

			r.Get("/bookmarks", h.Bookmarks.List)
			r.Put("/bookmarks", h.Bookmarks.Put)
			r.Delete("/bookmarks", h.Bookmarks.Delete)

			r.Get("/cache/export", h.Cache.Export)
			r.Post("/cache/import", h.Cache.Import)
			r.Delete("/cache", h.Cache.Clear)
		})
	})

	// Long-lived stream, mounted outside the request-timeout group.
	r.Get("/v1/events", h.Events.Stream)

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
