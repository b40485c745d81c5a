package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"upscaled/internal/httpapi/handlers"
	"upscaled/internal/httpkit"
	"upscaled/internal/pkg/logger"
	"upscaled/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps

	CORSAllowedOrigins []string
	// JobsRequestTimeout bounds each /jobs request. Zero disables it.
	JobsRequestTimeout time.Duration
	Log                *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)
	hlog := h.Log()

	// ---- HEALTH / METRICS ----
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ---- UPSCALE ----
	// No request timeout: the job's own timeout bounds it.
	r.Post("/upscale", middleware.WrapHandler(hlog, h.PostUpscale))

	// ---- JOBS ----
	if h.JobsEnabled() {
		r.Route("/jobs", func(r chi.Router) {
			if d.JobsRequestTimeout > 0 {
				r.Use(middleware.Timeout(d.JobsRequestTimeout))
			}
			r.Post("/", middleware.WrapHandler(hlog, h.PostJob))
			r.Get("/", middleware.WrapHandler(hlog, h.ListJobs))
			r.Get("/{jobId}", middleware.WrapHandler(hlog, h.GetJob))
			r.Get("/{jobId}/output", middleware.WrapHandler(hlog, h.GetJobOutput))
		})
	}

	return r
}
