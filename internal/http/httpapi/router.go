package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagechain/internal/domain"
	"imagechain/internal/http/handlers"
	"imagechain/internal/infra"
	"imagechain/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Metrics,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", handlers.Metrics())

	limited := middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Use(limited)
		r.Post("/transform", app.Transform())
		r.Post("/mirror", app.Mirror())
		r.Post("/inpaint", app.Inpaint())
		r.Post("/inpaint/stability-ai", app.InpaintWith(domain.InpaintStability))
		r.Post("/inpaint/dalle", app.InpaintWith(domain.InpaintOpenAI))
		r.Post("/search-and-replace", app.SearchAndReplace())
		r.Post("/outpaint", app.Outpaint())
		r.Post("/auto-enhance/gemini-2.0", app.AutoEnhance(domain.EnhanceAI))
		r.Post("/auto-enhance/sharp", app.AutoEnhance(domain.EnhanceLocal))
		r.Post("/convert", app.Convert)
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Use(limited)
		r.Post("/", app.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetSession)
			r.Delete("/", app.DeleteSession)
			r.Post("/transformations", app.ApplyTransformation)
			r.Get("/images/{index}", app.GetSessionImage)
			r.Delete("/images/{index}", app.RemoveSessionImage)
			r.Get("/archive", app.SessionArchive)
		})
	})

	return r
}
