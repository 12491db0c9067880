package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/selection"
	"github.com/tvoe/vidgrab/internal/service"
	"github.com/tvoe/vidgrab/internal/ytdlp"
)

type fakeVideos struct {
	info     *domain.VideoInfo
	file     *service.DownloadedFile
	err      error
	gotURL   string
	gotFmt   string
	progress []ytdlp.Progress
}

func (f *fakeVideos) GetVideoDetails(_ context.Context, videoURL string) (*domain.VideoInfo, error) {
	f.gotURL = videoURL
	return f.info, f.err
}

func (f *fakeVideos) Download(_ context.Context, videoURL, format string, progressFn ytdlp.ProgressCallback) (*service.DownloadedFile, error) {
	f.gotURL, f.gotFmt = videoURL, format
	if progressFn != nil {
		for _, p := range f.progress {
			progressFn(p)
		}
	}
	return f.file, f.err
}

func testContext(videos videoService) *commandContext {
	ctx := newCommandContext(nil, nil)
	ctx.registry = selection.DefaultRegistry()
	ctx.videos = videos
	return ctx
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestFormatsCommand(t *testing.T) {
	fps := 30.0
	size := 2.5
	views := int64(1234567)
	videos := &fakeVideos{info: &domain.VideoInfo{
		Title:          "Clip",
		Channel:        "Channel",
		DurationString: "00:01:05",
		ViewCount:      &views,
		DownloadOptions: []domain.DownloadOption{
			{Format: "137+251", Resolution: "1080p", Extension: "mp4", FrameRate: &fps, EstimatedSizeMB: &size},
			{Format: "18", Resolution: "360p", Extension: "mp4"},
		},
	}}

	stdout, _, err := run(t, newFormatsCommand(testContext(videos)), "https://youtu.be/abc")
	require.NoError(t, err)

	assert.Equal(t, "https://youtu.be/abc", videos.gotURL)
	assert.Contains(t, stdout, "Clip")
	assert.Contains(t, stdout, "1,234,567 views")
	assert.Contains(t, stdout, "137+251")
	assert.Contains(t, stdout, "2.5 MiB")
	assert.Contains(t, stdout, "unknown")
}

func TestFormatsCommandJSON(t *testing.T) {
	videos := &fakeVideos{info: &domain.VideoInfo{Title: "Clip", DownloadOptions: []domain.DownloadOption{{Format: "18"}}}}

	stdout, _, err := run(t, newFormatsCommand(testContext(videos)), "--json", "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"downloadOptions"`)
	assert.Contains(t, stdout, `"format": "18"`)
}

func TestFormatsCommandError(t *testing.T) {
	videos := &fakeVideos{err: domain.ErrUnsupportedPlatform}

	_, _, err := run(t, newFormatsCommand(testContext(videos)), "https://vimeo.com/1")
	assert.ErrorIs(t, err, domain.ErrUnsupportedPlatform)
}

func TestDownloadCommand(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0644))
	outDir := filepath.Join(t.TempDir(), "out")

	videos := &fakeVideos{
		file: &service.DownloadedFile{Path: src, FileName: "Clip.mp4", Size: 5},
		progress: []ytdlp.Progress{
			{Phase: ytdlp.PhaseDownloading, Stream: 1, Percent: 50, TotalBytes: 2048, Speed: "1.00MiB/s", ETA: "00:01"},
			{Phase: ytdlp.PhaseMerging, Percent: 100},
		},
	}

	stdout, stderr, err := run(t, newDownloadCommand(testContext(videos)), "https://youtu.be/abc", "-f", "18", "-o", outDir)
	require.NoError(t, err)

	assert.Equal(t, "18", videos.gotFmt)
	data, err := os.ReadFile(filepath.Join(outDir, "Clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
	assert.Contains(t, stdout, filepath.Join(outDir, "Clip.mp4"))
	assert.Contains(t, stderr, "50.0% of 2.0 KiB")
	assert.Contains(t, stderr, "[merging]")
}

func TestDownloadCommandRequiresFormat(t *testing.T) {
	_, _, err := run(t, newDownloadCommand(testContext(&fakeVideos{})), "https://youtu.be/abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestPoliciesCommand(t *testing.T) {
	stdout, _, err := run(t, newPoliciesCommand(testContext(nil)))
	require.NoError(t, err)

	lines := strings.Split(stdout, "\n")
	var youtube string
	for _, line := range lines {
		if strings.Contains(line, "youtube") {
			youtube = line
		}
	}
	require.NotEmpty(t, youtube)
	assert.Contains(t, youtube, "144,360,480,720,1080,1440,2160")
	assert.Contains(t, youtube, "568,1024,1280,1920")
	assert.Contains(t, stdout, "tiktok")
	assert.Contains(t, stdout, "reported")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "3")
	assert.Empty(t, renderTable(nil, nil, nil))
}
