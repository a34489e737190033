package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"postergen/internal/http/handlers"
	"postergen/internal/infra"
	"postergen/internal/middleware"
)

// NewRouter wires the public API. lookup may be nil when no GeoIP database
// is configured.
func NewRouter(app *handlers.App, cfg *infra.Config, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.I18N(cfg.DefaultLocale, lookup),
	)

	// Expensive calls share one per-IP budget.
	limited := middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)
		r.Get("/characters", app.Characters)

		r.Route("/sessions", func(r chi.Router) {
			r.With(limited).Post("/", app.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetSession)
				r.Delete("/", app.DeleteSession)
				r.With(limited).Put("/image", app.PutImage)
				r.Put("/character", app.PutCharacter)
				r.With(limited).Post("/start", app.StartSession)
				r.Post("/reset", app.ResetSession)
				r.Get("/events", app.Events)
			})
		})
	})

	return r
}
