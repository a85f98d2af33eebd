package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSceneImages(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		p := filepath.Join(dir, fmt.Sprintf("image_%02d.png", i+1))
		require.NoError(t, os.WriteFile(p, []byte("png"), 0644))
		paths[i] = p
	}
	return paths
}

func TestClipRetryBound(t *testing.T) {
	calls := 0
	c := &Clip{
		Script: &scriptStub{},
		Videos: videoFunc(func(ctx context.Context, seed, motion string, duration float64) (string, error) {
			calls++
			return "", errors.New("provider down")
		}),
		OutputDir: t.TempDir(),
		Cfg:       testPipelineCfg(),
	}

	paths := c.Run(context.Background(), testScenes(1), writeSceneImages(t, 1))
	require.Len(t, paths, 1)
	assert.Empty(t, paths[0])
	assert.Equal(t, 3, calls)
}

func TestClipPartialTolerance(t *testing.T) {
	srv := artifactServer(t, []byte("mp4bytes"))

	c := &Clip{
		Script: &scriptStub{},
		Videos: videoFunc(func(ctx context.Context, seed, motion string, duration float64) (string, error) {
			if strings.Contains(motion, "second scene") {
				return "", errors.New("scene two always fails")
			}
			return srv.URL + "/clip.mp4", nil
		}),
		OutputDir: t.TempDir(),
		Cfg:       testPipelineCfg(),
	}

	paths := c.Run(context.Background(), testScenes(3), writeSceneImages(t, 3))
	require.Len(t, paths, 3)
	assert.NotEmpty(t, paths[0])
	assert.Empty(t, paths[1])
	assert.NotEmpty(t, paths[2])

	for _, p := range []string{paths[0], paths[2]} {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestClipSkipsScenesWithoutImage(t *testing.T) {
	calls := 0
	c := &Clip{
		Script: &scriptStub{},
		Videos: videoFunc(func(ctx context.Context, seed, motion string, duration float64) (string, error) {
			calls++
			return "", errors.New("should not be called")
		}),
		OutputDir: t.TempDir(),
		Cfg:       testPipelineCfg(),
	}

	paths := c.Run(context.Background(), testScenes(2), []string{"", ""})
	assert.Equal(t, []string{"", ""}, paths)
	assert.Equal(t, 0, calls)
}

func TestClipMotionPromptFallback(t *testing.T) {
	srv := artifactServer(t, []byte("mp4bytes"))

	var motions []string
	c := &Clip{
		Script: &scriptStub{motionErr: errors.New("rewriter unavailable")},
		Videos: videoFunc(func(ctx context.Context, seed, motion string, duration float64) (string, error) {
			motions = append(motions, motion)
			return srv.URL + "/clip.mp4", nil
		}),
		OutputDir: t.TempDir(),
		Cfg:       testPipelineCfg(),
	}

	paths := c.Run(context.Background(), testScenes(1), writeSceneImages(t, 1))
	require.NotEmpty(t, paths[0])
	require.Len(t, motions, 1)
	assert.Equal(t, "first scene", motions[0])
}

func TestClipUsesSceneDuration(t *testing.T) {
	srv := artifactServer(t, []byte("mp4bytes"))

	var durations []float64
	c := &Clip{
		Script: &scriptStub{},
		Videos: videoFunc(func(ctx context.Context, seed, motion string, duration float64) (string, error) {
			durations = append(durations, duration)
			return srv.URL + "/clip.mp4", nil
		}),
		OutputDir: t.TempDir(),
		Cfg:       testPipelineCfg(),
	}

	c.Run(context.Background(), testScenes(2), writeSceneImages(t, 2))
	assert.Equal(t, []float64{10, 10}, durations)
}
