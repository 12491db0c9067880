package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/config"
)

// NewRouter creates a new API router
func NewRouter(h *Handler, cfg config.APIConfig, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// Health endpoints
	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.ReadyCheck)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	limiter := NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Route("/videos", func(r chi.Router) {
			r.Post("/info", h.GetVideoInfo)
			r.Post("/download", h.DownloadVideo)
		})

		if h.jobs != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", h.CreateJob)
				r.Get("/{jobId}", h.GetJob)
				r.Post("/{jobId}/cancel", h.CancelJob)
				r.Get("/{jobId}/artifacts", h.GetArtifacts)
			})
		}
	})

	return r
}

// requestLogger logs HTTP requests
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("requestId", middleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
