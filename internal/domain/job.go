package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a download job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCanceled  JobStatus = "CANCELED"
)

// IsTerminal reports whether no further transitions are possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}

// Stage represents a download job stage
type Stage string

const (
	StageResolving   Stage = "RESOLVING"
	StageDownloading Stage = "DOWNLOADING"
	StageUploading   Stage = "UPLOADING"
	StageCleanup     Stage = "CLEANUP"
)

// AllStages returns ordered list of all stages
func AllStages() []Stage {
	return []Stage{
		StageResolving,
		StageDownloading,
		StageUploading,
		StageCleanup,
	}
}

// StageWeight returns the weight of a stage for overall progress calculation
func StageWeight(s Stage) int {
	weights := map[Stage]int{
		StageResolving:   10,
		StageDownloading: 65,
		StageUploading:   20,
		StageCleanup:     5,
	}
	return weights[s]
}

// Job represents an asynchronous download job
type Job struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	VideoURL        string     `json:"videoUrl" db:"video_url"`
	Platform        Platform   `json:"platform" db:"platform"`
	Format          string     `json:"format" db:"format"`
	Title           *string    `json:"title,omitempty" db:"title"`
	Status          JobStatus  `json:"status" db:"status"`
	CurrentStage    *Stage     `json:"currentStage,omitempty" db:"current_stage"`
	StageProgress   int        `json:"stageProgress" db:"stage_progress"`
	OverallProgress int        `json:"overallProgress" db:"overall_progress"`
	IdempotencyKey  *string    `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	WorkflowID      *string    `json:"workflowId,omitempty" db:"workflow_id"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	StartedAt       *time.Time `json:"startedAt,omitempty" db:"started_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
	Attempt         int        `json:"attempt" db:"attempt"`
	LastErrorID     *uuid.UUID `json:"lastErrorId,omitempty" db:"last_error_id"`
}

// NewJob creates a new queued job
func NewJob(videoURL, format string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		VideoURL:  videoURL,
		Platform:  DetectPlatform(videoURL),
		Format:    format,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CalculateOverallProgress calculates overall progress based on current stage and stage progress
func (j *Job) CalculateOverallProgress() int {
	if j.CurrentStage == nil {
		return 0
	}

	stages := AllStages()
	var completedWeight int
	var currentStageWeight int

	for _, s := range stages {
		if s == *j.CurrentStage {
			currentStageWeight = StageWeight(s)
			break
		}
		completedWeight += StageWeight(s)
	}

	totalWeight := 0
	for _, s := range stages {
		totalWeight += StageWeight(s)
	}

	progress := completedWeight + (currentStageWeight * j.StageProgress / 100)
	return progress * 100 / totalWeight
}
