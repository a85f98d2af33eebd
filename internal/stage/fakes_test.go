package stage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type imageFunc func(ctx context.Context, prompt, ref string) (string, error)

func (f imageFunc) GenerateImage(ctx context.Context, prompt, ref string) (string, error) {
	return f(ctx, prompt, ref)
}

type videoFunc func(ctx context.Context, seed, motion string, duration float64) (string, error)

func (f videoFunc) GenerateClip(ctx context.Context, seed, motion string, duration float64) (string, error) {
	return f(ctx, seed, motion, duration)
}

type scriptStub struct {
	script    string
	scriptErr error
	motionErr error
}

func (s *scriptStub) GenerateScript(ctx context.Context, prompt string) (string, error) {
	return s.script, s.scriptErr
}

func (s *scriptStub) MotionPrompt(ctx context.Context, desc string) (string, error) {
	if s.motionErr != nil {
		return "", s.motionErr
	}
	return "motion: " + desc, nil
}

// artifactServer serves fixed bytes for any path, standing in for the
// provider's fetchable output URLs.
func artifactServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
