package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformedMetadata is returned when the extractor output cannot be decoded
	ErrMalformedMetadata = errors.New("malformed video metadata")
	// ErrNoDownloadableFormats is returned when no variant survives the platform policy
	ErrNoDownloadableFormats = errors.New("no downloadable formats")
	// ErrAmbiguousEstimate marks an option whose size could not be estimated.
	// It is advisory and never fails a selection.
	ErrAmbiguousEstimate = errors.New("size estimate unavailable")
	// ErrUnsupportedPlatform is returned for URLs outside the known platforms
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrFormatNotOffered is returned when a requested format is not among the options
	ErrFormatNotOffered = errors.New("selected format not offered")
	// ErrExtractionFailed is returned when the extractor exits with an error
	ErrExtractionFailed = errors.New("metadata extraction failed")
	// ErrDownloadFailed is returned when the download tool fails or produces no file
	ErrDownloadFailed = errors.New("download failed")
)

// ExtractionError carries the external tool's failure details. Stderr is for
// logs only and must not reach API clients.
type ExtractionError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: exit code %d", e.Op, e.ExitCode)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ErrorClass represents error classification
type ErrorClass string

const (
	ErrorClassFatal     ErrorClass = "FATAL"
	ErrorClassRetryable ErrorClass = "RETRYABLE"
)

// JobError represents an error that occurred while processing a download job
type JobError struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	JobID     uuid.UUID      `json:"jobId" db:"job_id"`
	Stage     Stage          `json:"stage" db:"stage"`
	Class     ErrorClass     `json:"class" db:"class"`
	Code      string         `json:"code" db:"code"`
	Message   string         `json:"message" db:"message"`
	Details   map[string]any `json:"details" db:"details"`
	Attempt   int            `json:"attempt" db:"attempt"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

// NewJobError creates a new job error
func NewJobError(jobID uuid.UUID, stage Stage, class ErrorClass, code, message string, attempt int) *JobError {
	return &JobError{
		ID:        uuid.New(),
		JobID:     jobID,
		Stage:     stage,
		Class:     class,
		Code:      code,
		Message:   message,
		Details:   make(map[string]any),
		Attempt:   attempt,
		CreatedAt: time.Now().UTC(),
	}
}

// WithDetails adds details to the error
func (e *JobError) WithDetails(key string, value any) *JobError {
	e.Details[key] = value
	return e
}

// Error codes
const (
	ErrCodeUnsupportedPlatform = "UNSUPPORTED_PLATFORM"
	ErrCodeMalformedMetadata   = "MALFORMED_METADATA"
	ErrCodeNoFormats           = "NO_DOWNLOADABLE_FORMATS"
	ErrCodeFormatNotOffered    = "FORMAT_NOT_OFFERED"
	ErrCodeExtractionFailed    = "EXTRACTION_FAILED"
	ErrCodeDownloadFailed      = "DOWNLOAD_FAILED"
	ErrCodeS3Timeout           = "S3_TIMEOUT"
	ErrCodeS3UploadFailed      = "S3_UPLOAD_FAILED"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeCanceled            = "CANCELED"
)

// IsRetryable returns true if the error code is retryable
func IsRetryable(code string) bool {
	retryableCodes := map[string]bool{
		ErrCodeS3Timeout:    true,
		ErrCodeNetworkError: true,
	}
	return retryableCodes[code]
}

// ClassifyError determines the error class based on error code
func ClassifyError(code string) ErrorClass {
	if IsRetryable(code) {
		return ErrorClassRetryable
	}
	return ErrorClassFatal
}

// CodeFor maps a domain error to its job error code
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedPlatform):
		return ErrCodeUnsupportedPlatform
	case errors.Is(err, ErrMalformedMetadata):
		return ErrCodeMalformedMetadata
	case errors.Is(err, ErrNoDownloadableFormats):
		return ErrCodeNoFormats
	case errors.Is(err, ErrFormatNotOffered):
		return ErrCodeFormatNotOffered
	case errors.Is(err, ErrExtractionFailed):
		return ErrCodeExtractionFailed
	case errors.Is(err, ErrDownloadFailed):
		return ErrCodeDownloadFailed
	default:
		return ErrCodeInternalError
	}
}

// IsClientError reports whether err is caused by the request rather than by
// the service, i.e. it should surface as a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedPlatform) ||
		errors.Is(err, ErrMalformedMetadata) ||
		errors.Is(err, ErrNoDownloadableFormats) ||
		errors.Is(err, ErrFormatNotOffered)
}
