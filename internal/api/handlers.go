package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/metrics"
	"github.com/tvoe/vidgrab/internal/service"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

const maxBodyBytes = 1 << 20

// VideoService resolves and downloads videos
type VideoService interface {
	GetVideoDetails(ctx context.Context, videoURL string) (*domain.VideoInfo, error)
	Download(ctx context.Context, videoURL, format string, progressFn ytdlp.ProgressCallback) (*service.DownloadedFile, error)
}

// VersionChecker reports the version of the extraction tool
type VersionChecker interface {
	Version(ctx context.Context) (string, error)
}

// Handler holds API dependencies
type Handler struct {
	config  *config.Config
	videos  VideoService
	tool    VersionChecker
	jobs    *JobBackend
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a new handler. jobs is nil when asynchronous jobs are
// disabled.
func NewHandler(
	cfg *config.Config,
	videos VideoService,
	tool VersionChecker,
	jobs *JobBackend,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		config:  cfg,
		videos:  videos,
		tool:    tool,
		jobs:    jobs,
		logger:  logger,
		metrics: m,
	}
}

// VideoInfoRequest represents the request for video details
type VideoInfoRequest struct {
	VideoURL string `json:"videoUrl"`
}

// DownloadRequest represents the request to download one offered format
type DownloadRequest struct {
	VideoURL       string `json:"videoUrl"`
	SelectedFormat string `json:"selectedFormat"`
}

// GetVideoInfo returns the video details and its download options
func (h *Handler) GetVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req VideoInfoRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateVideoURL(req.VideoURL); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.videos.GetVideoDetails(r.Context(), req.VideoURL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// DownloadVideo downloads the selected format and streams it as an attachment
func (h *Handler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateVideoURL(req.VideoURL); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SelectedFormat == "" {
		h.writeError(w, http.StatusBadRequest, "selectedFormat is required")
		return
	}

	file, err := h.videos.Download(r.Context(), req.VideoURL, req.SelectedFormat, nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer func() {
		if err := file.Cleanup(); err != nil {
			h.logger.Warn("failed to remove downloaded file", zap.String("path", file.Path), zap.Error(err))
		}
	}()

	f, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open downloaded file", zap.String("path", file.Path), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to read downloaded file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName}))
	http.ServeContent(w, r, file.FileName, time.Time{}, f)
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{
		"status": "ready",
	}

	// Check yt-dlp binary
	if version, err := h.tool.Version(ctx); err != nil {
		h.logger.Error("yt-dlp readiness check failed", zap.Error(err))
		status["status"] = "not ready"
		status["ytdlp"] = "unavailable"
	} else {
		status["ytdlp"] = version
	}

	if h.jobs != nil {
		for name, err := range h.jobs.health(ctx) {
			if err != nil {
				h.logger.Error("readiness check failed", zap.String("dependency", name), zap.Error(err))
				status["status"] = "not ready"
				status[name] = "not connected"
			} else {
				status[name] = "connected"
			}
		}
	}

	statusCode := http.StatusOK
	if status["status"] != "ready" {
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSON(w, statusCode, status)
}

// validateVideoURL accepts absolute http and https URLs
func validateVideoURL(raw string) error {
	if raw == "" {
		return errors.New("videoUrl is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("videoUrl must be an absolute http or https URL")
	}
	return nil
}

// statusFor maps a service error to its HTTP status and client message.
// Tool diagnostics stay in the logs.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return http.StatusBadRequest, "unsupported platform"
	case errors.Is(err, domain.ErrMalformedMetadata):
		return http.StatusBadRequest, "could not read video metadata"
	case errors.Is(err, domain.ErrNoDownloadableFormats):
		return http.StatusBadRequest, "no downloadable formats for this video"
	case errors.Is(err, domain.ErrFormatNotOffered):
		return http.StatusBadRequest, "selected format is not available for this video"
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusBadGateway, "failed to fetch video information"
	case errors.Is(err, domain.ErrDownloadFailed):
		return http.StatusBadGateway, "failed to download video"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)

	fields := []zap.Field{zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err)}
	var extractionErr *domain.ExtractionError
	if errors.As(err, &extractionErr) {
		fields = append(fields, zap.String("stderr", extractionErr.Stderr))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}

	h.writeError(w, status, message)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
