package httpserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/server/metrics"
)

// RouterConfig selects what NewRouter mounts.
type RouterConfig struct {
	// APIPrefix is where the JSON API lives, e.g. "/api". Empty mounts it
	// at the root.
	APIPrefix string
	// StaticDir, when set, is served for every non-API path, falling back
	// to index.html so client-side routes resolve.
	StaticDir  string
	Middleware MiddlewareConfig
}

// NewRouter builds the chi router:
//
//	POST {prefix}/locations
//	GET  {prefix}/locations/{username}[?limit=n]
//	POST {prefix}/locations/{username}/archive
//	GET  {prefix}/users/check/{username}
//	GET  {prefix}/health
//	GET  /metrics
func NewRouter(cfg RouterConfig, h *Handler, l logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(l.With("module", "access")))
	r.Use(metrics.Middleware)
	r.Use(corsHandler(cfg.Middleware.CORSAllowedOrigins))
	if cfg.Middleware.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Middleware.RequestTimeout))
	}

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	prefix := strings.TrimSuffix(cfg.APIPrefix, "/")
	mountAPI := func(r chi.Router) {
		r.Use(rateLimit(cfg.Middleware.RateLimitRequests, cfg.Middleware.RateLimitWindow))

		r.Get("/health", h.Health)
		r.Post("/locations", h.SaveLocation)
		r.Get("/locations/{username}", h.GetHistory)
		r.Post("/locations/{username}/archive", h.ArchiveHistory)
		r.Get("/users/check/{username}", h.CheckUser)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
	}
	if prefix == "" {
		r.Group(mountAPI)
	} else {
		r.Route(prefix, mountAPI)
	}

	if cfg.StaticDir != "" {
		r.NotFound(spaHandler(cfg.StaticDir))
	}

	return r
}

// spaHandler serves files under dir and answers unknown paths with
// dir/index.html.
func spaHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}

		clean := path.Clean("/" + r.URL.Path)
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean))); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
