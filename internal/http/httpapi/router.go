package httpapi

import (
	"net/http"
	"time"

	"cinemastudio/internal/http/handlers"
	"cinemastudio/internal/infra"
	studiomw "cinemastudio/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures the HTTP surface around the handlers.
type RouterOptions struct {
	Logger          infra.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	Metrics         http.Handler
	GeneratedDir    string
	UploadsDir      string
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		studiomw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		studiomw.Logger(opts.Logger),
		studiomw.CORS(opts.CORSOrigins),
	)

	r.Get("/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// Generation routes hit the backend and are rate limited per client.
	r.Group(func(r chi.Router) {
		r.Use(studiomw.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Post("/generate-image", app.GenerateImage)
		r.Post("/generate-video", app.GenerateVideo)
		r.Post("/generate-multishot", app.Multishot)
		r.Post("/upscale-proxies", app.UpscaleProxies)
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", app.History)
		r.Delete("/{id}", app.Delete)
		r.Put("/{id}/favorite", app.Favorite)
		r.Post("/{id}/duplicate", app.Duplicate)
	})

	r.Get("/proxies/{parentId}", app.Proxies)
	r.Get("/proxies/{parentId}/archive", app.ProxyArchive)
	r.Post("/upload", app.Upload)
	r.Get("/uploads", app.Uploads)
	r.Get("/angles", app.Angles)

	if opts.GeneratedDir != "" {
		r.Handle("/generated/*", http.StripPrefix("/generated/", http.FileServer(http.Dir(opts.GeneratedDir))))
	}
	if opts.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadsDir))))
	}

	return r
}
