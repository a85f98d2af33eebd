package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"genserver/internal/config"
	"genserver/internal/domain"
	"genserver/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScript struct {
	text string
	err  error
}

func (f *fakeScript) GenerateScript(ctx context.Context, prompt string) (string, error) {
	return f.text, f.err
}

func (f *fakeScript) MotionPrompt(ctx context.Context, desc string) (string, error) {
	return "motion: " + desc, nil
}

type fakeImages struct {
	url string
	err error
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeVideos struct {
	url string
	err error
}

func (f *fakeVideos) GenerateClip(ctx context.Context, seed, motion string, duration float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// recorder captures every bus emit in order.
type recorder struct {
	mu     sync.Mutex
	events []domain.Task
}

func (r *recorder) Publish(taskID string, t domain.Task) {
	r.mu.Lock()
	r.events = append(r.events, t)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Task(nil), r.events...)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func artifactServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Pipeline: config.Pipeline{MaxRetries: 2},
		Storage: config.Storage{
			OutputDir: t.TempDir(),
			TempDir:   t.TempDir(),
			FFmpegBin: "true",
		},
	}
}

const oneSceneScript = "SCENE 1: A sunrise | Duration: 10 seconds"
const twoSceneScript = "SCENE 1: A sunrise | Duration: 10 seconds\nSCENE 2: A sunset | Duration: 10 seconds"

func TestVideoPipelineSingleScene(t *testing.T) {
	srv := artifactServer(t, []byte("media"))
	cfg := testConfig(t)
	store := registry.New(time.Hour)
	rec := &recorder{}

	o := New(store, rec, &fakeScript{text: oneSceneScript}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{url: srv.URL + "/v.mp4"}, cfg)

	task, err := o.Run(context.Background(), domain.KindVideo, "a sunrise video")
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, task.State)
	assert.Equal(t, 100, task.Progress)
	assert.Empty(t, task.Error)
	require.NotEmpty(t, task.Result)

	// A single valid clip is promoted directly, so the artifact exists.
	data, err := os.ReadFile(task.Result)
	require.NoError(t, err)
	assert.Equal(t, []byte("media"), data)
	assert.Contains(t, filepath.Base(task.Result), "combined_video_")
}

func TestVideoPipelineTwoScenes(t *testing.T) {
	srv := artifactServer(t, []byte("media"))
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{text: twoSceneScript}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{url: srv.URL + "/v.mp4"}, cfg)

	task, err := o.Run(context.Background(), domain.KindVideo, "sunrise and sunset")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, task.State)

	// Both clips were produced under their positional names.
	for _, name := range []string{"video_01.mp4", "video_02.mp4"} {
		_, err := os.Stat(filepath.Join(cfg.Storage.OutputDir, name))
		assert.NoError(t, err, name)
	}
}

func TestProgressMonotonicAndStateSequence(t *testing.T) {
	srv := artifactServer(t, []byte("media"))
	cfg := testConfig(t)
	store := registry.New(time.Hour)
	rec := &recorder{}

	o := New(store, rec, &fakeScript{text: twoSceneScript}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{url: srv.URL + "/v.mp4"}, cfg)
	_, err := o.Run(context.Background(), domain.KindVideo, "p")
	require.NoError(t, err)

	events := rec.snapshot()
	require.NotEmpty(t, events)

	last := -1
	sawRunning := false
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Progress, last, "progress must never decrease")
		last = ev.Progress

		switch ev.State {
		case domain.StateRunning:
			sawRunning = true
		case domain.StateCompleted:
			assert.True(t, sawRunning, "completed must not skip running")
		case domain.StateFailed:
			t.Fatalf("unexpected failed state")
		}
	}
	assert.Equal(t, domain.StateCompleted, events[len(events)-1].State)
	assert.Equal(t, 100, events[len(events)-1].Progress)
}

func TestNoScenesParsedFailsTask(t *testing.T) {
	cfg := testConfig(t)
	store := registry.New(time.Hour)
	rec := &recorder{}

	o := New(store, rec, &fakeScript{text: "no scene lines here"}, &fakeImages{}, &fakeVideos{}, cfg)
	task, err := o.Run(context.Background(), domain.KindVideo, "p")
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, task.State)
	assert.Contains(t, task.Error, "no scenes")

	// The terminal event reaches the bus before run returns.
	events := rec.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.StateFailed, events[len(events)-1].State)
}

func TestScriptProviderFailureFailsTask(t *testing.T) {
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{err: errors.New("provider unreachable")}, &fakeImages{}, &fakeVideos{}, cfg)
	task, err := o.Run(context.Background(), domain.KindVideo, "p")
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, task.State)
	assert.Contains(t, task.Error, "script generation")
}

func TestAllVisualsFailedFailsTask(t *testing.T) {
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{text: twoSceneScript}, &fakeImages{err: errors.New("image provider down")}, &fakeVideos{}, cfg)
	task, err := o.Run(context.Background(), domain.KindVideo, "p")
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, task.State)
	assert.Contains(t, task.Error, "no scene images")
}

func TestAllClipsFailedFailsTask(t *testing.T) {
	srv := artifactServer(t, []byte("media"))
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{text: twoSceneScript}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{err: errors.New("video provider down")}, cfg)
	task, err := o.Run(context.Background(), domain.KindVideo, "p")
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, task.State)
	assert.Contains(t, task.Error, "no valid clips")
}

func TestImageKind(t *testing.T) {
	srv := artifactServer(t, []byte("imagedata"))
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{}, cfg)
	task, err := o.Run(context.Background(), domain.KindImage, "a poster")
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, task.State)
	assert.True(t, strings.HasSuffix(task.Result, ".png"))
	_, statErr := os.Stat(task.Result)
	assert.NoError(t, statErr)
}

func TestDocumentKind(t *testing.T) {
	srv := artifactServer(t, pngBytes(t))
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{text: twoSceneScript}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{}, cfg)
	task, err := o.Run(context.Background(), domain.KindDocument, "a brochure")
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, task.State)
	assert.True(t, strings.HasSuffix(task.Result, ".pdf"))
	_, statErr := os.Stat(task.Result)
	assert.NoError(t, statErr)
}

func TestSubmitRunsInBackground(t *testing.T) {
	srv := artifactServer(t, []byte("media"))
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{text: oneSceneScript}, &fakeImages{url: srv.URL + "/i.png"}, &fakeVideos{url: srv.URL + "/v.mp4"}, cfg)

	task, err := o.Submit(context.Background(), domain.KindVideo, "p")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, task.State)

	require.Eventually(t, func() bool {
		got, err := store.Get(task.ID)
		return err == nil && got.State == domain.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	cfg := testConfig(t)
	store := registry.New(time.Hour)

	o := New(store, nil, &fakeScript{}, &fakeImages{}, &fakeVideos{}, cfg)
	_, err := o.Submit(context.Background(), "music", "p")
	require.Error(t, err)
	assert.Empty(t, store.List())
}
