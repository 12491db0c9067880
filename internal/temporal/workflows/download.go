package workflows

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/temporal/activities"
)

// CancelSignal is the signal name that stops a running download
const CancelSignal = "cancel"

// WorkflowID returns the workflow ID of a job
func WorkflowID(jobID uuid.UUID) string {
	return "video-download-" + jobID.String()
}

// DownloadWorkflowInput holds workflow input
type DownloadWorkflowInput struct {
	JobID uuid.UUID `json:"jobId"`
}

// DownloadWorkflowOutput holds workflow output
type DownloadWorkflowOutput struct {
	Status        domain.JobStatus `json:"status"`
	ArtifactCount int              `json:"artifactCount"`
	SizeBytes     int64            `json:"sizeBytes"`
	Error         string           `json:"error,omitempty"`
}

// DownloadWorkflow resolves, downloads and stores one video format
func DownloadWorkflow(ctx workflow.Context, input DownloadWorkflowInput) (*DownloadWorkflowOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting video download workflow", "jobId", input.JobID.String())

	// yt-dlp activities are not retried
	toolOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, toolOptions)

	output := &DownloadWorkflowOutput{
		Status: domain.JobStatusRunning,
	}
	started := false
	defer func() {
		// Disconnected context so the job is finalized even when the workflow is cancelled
		finalizeCtx, _ := workflow.NewDisconnectedContext(ctx)
		finalizeOptions := workflow.ActivityOptions{
			StartToCloseTimeout: 1 * time.Minute,
			RetryPolicy: &temporal.RetryPolicy{
				InitialInterval:    time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    10 * time.Second,
				MaximumAttempts:    5,
			},
		}
		finalizeCtx = workflow.WithActivityOptions(finalizeCtx, finalizeOptions)

		_ = workflow.ExecuteActivity(finalizeCtx, "FinalizeJob", activities.FinalizeJobInput{
			JobID:   input.JobID,
			Status:  output.Status,
			Error:   output.Error,
			Started: started,
		}).Get(finalizeCtx, nil)
	}()

	cancelChan := workflow.GetSignalChannel(ctx, CancelSignal)
	selector := workflow.NewSelector(ctx)

	var cancelled bool
	selector.AddReceive(cancelChan, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, nil)
		cancelled = true
		logger.Info("Received cancel signal")
	})

	checkCancelled := func() bool {
		for selector.HasPending() {
			selector.Select(ctx)
		}
		return cancelled
	}

	fail := func(stage string, err error) (*DownloadWorkflowOutput, error) {
		if temporal.IsCanceledError(err) {
			return handleCancellation(ctx, input.JobID, output)
		}
		output.Status = domain.JobStatusFailed
		output.Error = fmt.Sprintf("%s failed: %v", stage, err)
		cleanup(ctx, input.JobID)
		return output, err
	}

	// Step 1: Resolve format
	started = true
	var resolved *activities.ResolveOutput
	err := workflow.ExecuteActivity(ctx, "ResolveFormat", activities.ActivityInput{JobID: input.JobID}).Get(ctx, &resolved)
	if err != nil {
		return fail("format resolution", err)
	}

	if checkCancelled() {
		return handleCancellation(ctx, input.JobID, output)
	}

	// Step 2: Download
	downloadOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	downloadCtx := workflow.WithActivityOptions(ctx, downloadOptions)

	var downloaded *activities.DownloadOutput
	err = workflow.ExecuteActivity(downloadCtx, "DownloadVideo", activities.DownloadInput{
		JobID:   input.JobID,
		Title:   resolved.Title,
		Streams: resolved.Streams,
	}).Get(ctx, &downloaded)
	if err != nil {
		return fail("download", err)
	}

	if checkCancelled() {
		return handleCancellation(ctx, input.JobID, output)
	}

	// Step 3: Upload
	uploadOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    5,
		},
	}
	uploadCtx := workflow.WithActivityOptions(ctx, uploadOptions)

	var uploaded *activities.UploadOutput
	err = workflow.ExecuteActivity(uploadCtx, "UploadArtifacts", activities.ActivityInput{
		JobID: input.JobID,
	}).Get(ctx, &uploaded)
	if err != nil {
		return fail("upload", err)
	}

	// Step 4: Cleanup
	cleanup(ctx, input.JobID)

	output.Status = domain.JobStatusCompleted
	output.ArtifactCount = uploaded.ArtifactCount
	output.SizeBytes = downloaded.SizeBytes
	logger.Info("Video download workflow completed successfully",
		"jobId", input.JobID.String(),
		"format", resolved.Format,
		"artifactCount", output.ArtifactCount)

	return output, nil
}

// cleanup removes the job workspace; failures are only logged
func cleanup(ctx workflow.Context, jobID uuid.UUID) {
	cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)
	cleanupOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	cleanupCtx = workflow.WithActivityOptions(cleanupCtx, cleanupOptions)

	err := workflow.ExecuteActivity(cleanupCtx, "Cleanup", activities.CleanupInput{
		JobID: jobID,
	}).Get(cleanupCtx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Cleanup failed", "error", err)
	}
}

// handleCancellation handles workflow cancellation
func handleCancellation(ctx workflow.Context, jobID uuid.UUID, output *DownloadWorkflowOutput) (*DownloadWorkflowOutput, error) {
	workflow.GetLogger(ctx).Info("Handling cancellation", "jobId", jobID.String())

	cleanup(ctx, jobID)

	output.Status = domain.JobStatusCanceled
	output.Error = "workflow cancelled by user"
	return output, nil
}
