package workflows

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/temporal/activities"
)

func newEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DownloadWorkflow)
	env.RegisterActivity(&activities.Activities{})
	return env
}

func finalizedWith(jobID uuid.UUID, status domain.JobStatus) interface{} {
	return mock.MatchedBy(func(in activities.FinalizeJobInput) bool {
		return in.JobID == jobID && in.Status == status && in.Started
	})
}

func TestDownloadWorkflowCompletes(t *testing.T) {
	env := newEnv(t)
	jobID := uuid.New()

	env.OnActivity("ResolveFormat", mock.Anything, activities.ActivityInput{JobID: jobID}).
		Return(&activities.ResolveOutput{Title: "clip", Format: "137+251", Resolution: "1080p", Streams: 2}, nil)
	env.OnActivity("DownloadVideo", mock.Anything, activities.DownloadInput{JobID: jobID, Title: "clip", Streams: 2}).
		Return(&activities.DownloadOutput{FileName: "clip.mp4", SizeBytes: 1024}, nil)
	env.OnActivity("UploadArtifacts", mock.Anything, activities.ActivityInput{JobID: jobID}).
		Return(&activities.UploadOutput{ArtifactCount: 2, SizeBytes: 1100}, nil)
	env.OnActivity("Cleanup", mock.Anything, activities.CleanupInput{JobID: jobID}).Return(nil)
	env.OnActivity("FinalizeJob", mock.Anything, finalizedWith(jobID, domain.JobStatusCompleted)).Return(nil)

	env.ExecuteWorkflow(DownloadWorkflow, DownloadWorkflowInput{JobID: jobID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DownloadWorkflowOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, domain.JobStatusCompleted, out.Status)
	assert.Equal(t, 2, out.ArtifactCount)
	assert.Equal(t, int64(1024), out.SizeBytes)
	env.AssertExpectations(t)
}

func TestDownloadWorkflowDownloadFailure(t *testing.T) {
	env := newEnv(t)
	jobID := uuid.New()

	env.OnActivity("ResolveFormat", mock.Anything, mock.Anything).
		Return(&activities.ResolveOutput{Title: "clip", Format: "18", Streams: 1}, nil)
	env.OnActivity("DownloadVideo", mock.Anything, mock.Anything).
		Return((*activities.DownloadOutput)(nil), temporal.NewApplicationError("download failed: exit code 1", domain.ErrCodeDownloadFailed))
	env.OnActivity("Cleanup", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FinalizeJob", mock.Anything, finalizedWith(jobID, domain.JobStatusFailed)).Return(nil)

	env.ExecuteWorkflow(DownloadWorkflow, DownloadWorkflowInput{JobID: jobID})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	// the download tool is never retried
	env.AssertActivityNumberOfCalls(t, "DownloadVideo", 1)
	env.AssertActivityNumberOfCalls(t, "UploadArtifacts", 0)
	env.AssertActivityNumberOfCalls(t, "Cleanup", 1)
	env.AssertExpectations(t)
}

func TestDownloadWorkflowResolveFailure(t *testing.T) {
	env := newEnv(t)
	jobID := uuid.New()

	env.OnActivity("ResolveFormat", mock.Anything, mock.Anything).
		Return((*activities.ResolveOutput)(nil), temporal.NewNonRetryableApplicationError("selected format not offered", domain.ErrCodeFormatNotOffered, nil))
	env.OnActivity("Cleanup", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FinalizeJob", mock.Anything, finalizedWith(jobID, domain.JobStatusFailed)).Return(nil)

	env.ExecuteWorkflow(DownloadWorkflow, DownloadWorkflowInput{JobID: jobID})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertActivityNumberOfCalls(t, "ResolveFormat", 1)
	env.AssertActivityNumberOfCalls(t, "DownloadVideo", 0)
}

func TestDownloadWorkflowCancelSignal(t *testing.T) {
	env := newEnv(t)
	jobID := uuid.New()

	env.OnActivity("ResolveFormat", mock.Anything, mock.Anything).
		After(10*time.Minute).
		Return(&activities.ResolveOutput{Title: "clip", Format: "18", Streams: 1}, nil)
	env.OnActivity("Cleanup", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FinalizeJob", mock.Anything, finalizedWith(jobID, domain.JobStatusCanceled)).Return(nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(CancelSignal, nil)
	}, time.Minute)

	env.ExecuteWorkflow(DownloadWorkflow, DownloadWorkflowInput{JobID: jobID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DownloadWorkflowOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, domain.JobStatusCanceled, out.Status)
	env.AssertActivityNumberOfCalls(t, "DownloadVideo", 0)
	env.AssertExpectations(t)
}

func TestWorkflowID(t *testing.T) {
	id := uuid.MustParse("6f1c1d36-58a4-4f7e-9a0b-2b1f8f2a9c11")
	assert.Equal(t, "video-download-6f1c1d36-58a4-4f7e-9a0b-2b1f8f2a9c11", WorkflowID(id))
}
