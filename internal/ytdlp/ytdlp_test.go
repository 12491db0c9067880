package ytdlp

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tvoe/vidgrab/internal/config"
	"github.com/tvoe/vidgrab/internal/domain"
	"github.com/tvoe/vidgrab/internal/metrics"
)

type fakeRunner struct {
	result *Result
	err    error
	args   []string
	// onRun simulates side effects such as writing the output file
	onRun func(args []string, progressFn ProgressCallback)
}

func (f *fakeRunner) Run(_ context.Context, args []string, progressFn ProgressCallback) (*Result, error) {
	f.args = args
	if f.onRun != nil {
		f.onRun(args, progressFn)
	}
	return f.result, f.err
}

func newTestClient(t *testing.T, metadataRunner, downloadRunner CommandRunner) *Client {
	t.Helper()
	cfg := config.YtDlpConfig{FFmpegLocation: "/usr/bin/ffmpeg"}
	return NewClientWithRunners(cfg, metadataRunner, downloadRunner, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
}

const sampleDocument = `{
  "title": "Sample",
  "webpage_url": "https://www.youtube.com/watch?v=abc",
  "duration": 120.5,
  "channel": null,
  "uploader": "Uploader",
  "view_count": 42,
  "like_count": null,
  "formats": [
    {"format_id": "251", "ext": "webm", "vcodec": "none", "acodec": "opus", "abr": 130.5},
    {"format_id": "137", "ext": "mp4", "vcodec": "avc1", "acodec": "none", "height": 1080, "width": 1920, "fps": 30, "tbr": 4400, "vbr": 4400, "filesize": 52428800},
    {"format_id": "sb0", "ext": "mhtml", "height": null}
  ]
}`

func TestDecodeMetadata(t *testing.T) {
	meta, err := DecodeMetadata([]byte(sampleDocument), "https://fallback")
	require.NoError(t, err)

	assert.Equal(t, "Sample", meta.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", meta.URL)
	assert.Equal(t, 120.5, meta.DurationSeconds)
	assert.Equal(t, "Uploader", meta.Channel)
	require.NotNil(t, meta.ViewCount)
	assert.Equal(t, int64(42), *meta.ViewCount)
	assert.Nil(t, meta.LikeCount)
	assert.Nil(t, meta.ChannelFollowerCount)

	require.Len(t, meta.Variants, 3)
	assert.True(t, meta.Variants[0].IsAudioOnly())
	assert.Equal(t, 130.5, meta.Variants[0].AudioBitrateKbps)

	video := meta.Variants[1]
	assert.Equal(t, 1080, video.Height)
	assert.Equal(t, 1920, video.Width)
	assert.Equal(t, int64(52428800), video.FileSizeBytes)
	assert.False(t, video.HasAudio())

	// missing codecs count as present
	assert.True(t, meta.Variants[2].HasVideo())
	assert.True(t, meta.Variants[2].HasAudio())
	assert.Equal(t, 0, meta.Variants[2].Height)
}

func TestDecodeMetadataDefaults(t *testing.T) {
	meta, err := DecodeMetadata([]byte(`{"title": "  "}`), "https://fallback")
	require.NoError(t, err)

	assert.Equal(t, "video", meta.Title)
	assert.Equal(t, "https://fallback", meta.URL)
	assert.Equal(t, "unknown", meta.Channel)
	assert.Zero(t, meta.DurationSeconds)
	assert.Empty(t, meta.Variants)
}

func TestDecodeMetadataMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"not an object": `[1, 2]`,
		"truncated":     `{"title": "x", "formats": [`,
		"wrong type":    `{"formats": "none"}`,
		"html":          `<html>blocked</html>`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMetadata([]byte(input), "")
			assert.ErrorIs(t, err, domain.ErrMalformedMetadata)
		})
	}
}

func TestParseProgressLine(t *testing.T) {
	p := Progress{}

	assert.False(t, parseProgressLine("[youtube] abc: Downloading webpage", &p))

	assert.True(t, parseProgressLine("[download] Destination: /tmp/x.f137.mp4", &p))
	assert.Equal(t, 1, p.Stream)

	assert.True(t, parseProgressLine("[download]  42.5% of ~ 10.00MiB at  1.20MiB/s ETA 00:05", &p))
	assert.Equal(t, PhaseDownloading, p.Phase)
	assert.Equal(t, 42.5, p.Percent)
	assert.Equal(t, uint64(10*1024*1024), p.TotalBytes)
	assert.Equal(t, "1.20MiB/s", p.Speed)
	assert.Equal(t, "00:05", p.ETA)

	assert.True(t, parseProgressLine("[download] Destination: /tmp/x.f251.webm", &p))
	assert.Equal(t, 2, p.Stream)
	assert.Zero(t, p.Percent)

	assert.True(t, parseProgressLine(`[Merger] Merging formats into "/tmp/x.mp4"`, &p))
	assert.Equal(t, PhaseMerging, p.Phase)
}

func TestCalculateProgress(t *testing.T) {
	assert.Equal(t, 50, CalculateProgress(Progress{Stream: 1, Percent: 50}, 1))
	assert.Equal(t, 25, CalculateProgress(Progress{Stream: 1, Percent: 50}, 2))
	assert.Equal(t, 75, CalculateProgress(Progress{Stream: 2, Percent: 50}, 2))
	assert.Equal(t, 100, CalculateProgress(Progress{Phase: PhaseMerging}, 2))
	assert.Equal(t, 0, CalculateProgress(Progress{}, 0))
}

func TestLineWriter(t *testing.T) {
	w := newLineWriter()
	_, _ = w.Write([]byte("[download]  1.0% of 1.00MiB\r[download]  2.0%"))
	_, _ = w.Write([]byte(" of 1.00MiB\nlast"))
	w.Close()

	var lines []string
	for line := range w.C {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{
		"[download]  1.0% of 1.00MiB",
		"[download]  2.0% of 1.00MiB",
		"last",
	}, lines)
}

func TestClientArgs(t *testing.T) {
	c := newTestClient(t, &fakeRunner{}, &fakeRunner{})
	c.extraArgs = []string{"--force-ipv4"}

	assert.Equal(t,
		[]string{"-J", "--no-playlist", "--no-warnings", "--force-ipv4", "https://youtu.be/x"},
		c.MetadataArgs("https://youtu.be/x"))

	assert.Equal(t, []string{
		"-f", "137+251",
		"--merge-output-format", "mp4",
		"--ffmpeg-location", "/usr/bin/ffmpeg",
		"--postprocessor-args", "ffmpeg:-c:a aac",
		"--no-playlist",
		"--newline",
		"-o", "/tmp/out.mp4",
		"--force-ipv4",
		"https://youtu.be/x",
	}, c.DownloadArgs("https://youtu.be/x", "137+251", "/tmp/out.mp4"))
}

func TestFetchMetadata(t *testing.T) {
	runner := &fakeRunner{result: &Result{Stdout: []byte(sampleDocument)}}
	c := newTestClient(t, runner, nil)

	meta, err := c.FetchMetadata(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	assert.Len(t, meta.Variants, 3)
	assert.Equal(t, "-J", runner.args[0])
}

func TestFetchMetadataExitCode(t *testing.T) {
	runner := &fakeRunner{result: &Result{ExitCode: 1, Stderr: "ERROR: Video unavailable"}}
	c := newTestClient(t, runner, nil)

	_, err := c.FetchMetadata(context.Background(), "https://www.youtube.com/watch?v=gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)

	var extractionErr *domain.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, 1, extractionErr.ExitCode)
	assert.NotContains(t, err.Error(), "Video unavailable")
}

func TestFetchMetadataRunnerError(t *testing.T) {
	runner := &fakeRunner{err: context.DeadlineExceeded}
	c := newTestClient(t, runner, nil)

	_, err := c.FetchMetadata(context.Background(), "https://youtu.be/x")
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchMetadataMalformed(t *testing.T) {
	runner := &fakeRunner{result: &Result{Stdout: []byte("not json")}}
	c := newTestClient(t, runner, nil)

	_, err := c.FetchMetadata(context.Background(), "https://youtu.be/x")
	assert.ErrorIs(t, err, domain.ErrMalformedMetadata)
}

func TestDownload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "video.mp4")
	var updates []Progress
	runner := &fakeRunner{
		result: &Result{},
		onRun: func(args []string, progressFn ProgressCallback) {
			progressFn(Progress{Phase: PhaseDownloading, Stream: 1, Percent: 100})
			require.NoError(t, os.WriteFile(out, []byte("data"), 0644))
		},
	}
	c := newTestClient(t, nil, runner)

	size, err := c.Download(context.Background(), "https://youtu.be/x", "18", out, func(p Progress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.Len(t, updates, 1)
}

func TestDownloadEmptyOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "video.mp4")
	runner := &fakeRunner{
		result: &Result{},
		onRun: func([]string, ProgressCallback) {
			require.NoError(t, os.WriteFile(out, nil, 0644))
		},
	}
	c := newTestClient(t, nil, runner)

	_, err := c.Download(context.Background(), "https://youtu.be/x", "18", out, nil)
	assert.ErrorIs(t, err, domain.ErrDownloadFailed)
}

func TestDownloadExitCode(t *testing.T) {
	runner := &fakeRunner{result: &Result{ExitCode: 2}}
	c := newTestClient(t, nil, runner)

	_, err := c.Download(context.Background(), "https://youtu.be/x", "18", "/nonexistent/x.mp4", nil)
	assert.ErrorIs(t, err, domain.ErrDownloadFailed)
}

func TestRunnerCapturesOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	r := NewRunner(sh, 5*time.Second)

	var progress []Progress
	result, err := r.Run(context.Background(), []string{"-c",
		`echo '[download]  50.0% of 2.00MiB at 1.00MiB/s ETA 00:01'; echo oops >&2; exit 3`,
	}, func(p Progress) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "oops\n", result.Stderr)
	assert.Contains(t, string(result.Stdout), "50.0%")
	require.Len(t, progress, 1)
	assert.Equal(t, 50.0, progress[0].Percent)
}

func TestRunnerTimeout(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	r := NewRunner(sh, 50*time.Millisecond)

	_, err = r.Run(context.Background(), []string{"-c", "exec sleep 5"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestWorkspace(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root, uuid.New())

	require.NoError(t, ws.Create())
	assert.True(t, ws.Exists())
	assert.FileExists(t, filepath.Join(ws.Dir(), lockFile))
	assert.Equal(t, filepath.Join(ws.Dir(), "My_Clip.mp4"), ws.OutputPath("My/Clip"))

	require.NoError(t, os.WriteFile(ws.OutputPath("x"), []byte("12345"), 0644))
	usage, err := ws.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage)

	require.NoError(t, ws.Cleanup())
	assert.False(t, ws.Exists())
}

func TestCleanupOrphans(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	locked := NewWorkspace(root, uuid.New())
	require.NoError(t, locked.Create())
	require.NoError(t, os.Chtimes(locked.Dir(), old, old))

	orphan := NewWorkspace(root, uuid.New())
	require.NoError(t, orphan.Create())
	require.NoError(t, os.Remove(filepath.Join(orphan.Dir(), lockFile)))
	require.NoError(t, os.Chtimes(orphan.Dir(), old, old))

	fresh := NewWorkspace(root, uuid.New())
	require.NoError(t, fresh.Create())
	require.NoError(t, os.Remove(filepath.Join(fresh.Dir(), lockFile)))

	stale := NewWorkspace(root, uuid.New())
	require.NoError(t, stale.Create())
	require.NoError(t, os.Chtimes(filepath.Join(stale.Dir(), lockFile), old, old))
	require.NoError(t, os.Chtimes(stale.Dir(), old, old))

	require.NoError(t, os.Mkdir(filepath.Join(root, "not-a-workspace"), 0755))

	removed, err := CleanupOrphans(root, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, locked.Exists())
	assert.False(t, orphan.Exists())
	assert.False(t, stale.Exists())
	assert.True(t, fresh.Exists())
}
