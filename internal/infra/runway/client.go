// Package runway implements the image and video generation capabilities
// against the Runway REST API. Generation is asynchronous on the provider
// side: a create call returns a provider task id which is polled until it
// succeeds or fails.
package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"genserver/internal/config"
	"genserver/internal/ports"
	"genserver/pkg/backoff"

	"github.com/rs/zerolog/log"
)

var (
	_ ports.ImageProvider = (*Client)(nil)
	_ ports.VideoProvider = (*Client)(nil)
)

const (
	imageModel = "gen4_image"
	videoModel = "gen3a_turbo"
	imageRatio = "1280:720"
	videoRatio = "1280:768"

	maxCreateAttempts = 5
)

type Client struct {
	cfg        config.Runway
	httpClient *http.Client
}

func New(cfg config.Runway) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type referenceImage struct {
	URI string `json:"uri"`
	Tag string `json:"tag,omitempty"`
}

type promptImage struct {
	URI      string `json:"uri"`
	Position string `json:"position"`
}

type textToImageRequest struct {
	Model           string           `json:"model"`
	Ratio           string           `json:"ratio"`
	PromptText      string           `json:"promptText"`
	ReferenceImages []referenceImage `json:"referenceImages,omitempty"`
}

type imageToVideoRequest struct {
	Model       string        `json:"model"`
	Ratio       string        `json:"ratio"`
	PromptText  string        `json:"promptText"`
	PromptImage []promptImage `json:"promptImage"`
	Duration    int           `json:"duration"`
}

type createResponse struct {
	ID string `json:"id"`
}

type taskResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Output  []string `json:"output"`
	Failure string   `json:"failure"`
}

// GenerateImage creates a text_to_image task and waits for its output URL.
// refImage, when non-empty, is a data URI anchoring the previous scene's
// look.
func (c *Client) GenerateImage(ctx context.Context, prompt, refImage string) (string, error) {
	req := textToImageRequest{
		Model:      imageModel,
		Ratio:      imageRatio,
		PromptText: prompt,
	}
	if refImage != "" {
		req.ReferenceImages = []referenceImage{{URI: refImage, Tag: "previous_scene"}}
	}
	return c.createAndWait(ctx, "/text_to_image", req)
}

// GenerateClip creates an image_to_video task seeded with the scene image
// and waits for its output URL.
func (c *Client) GenerateClip(ctx context.Context, seedImage, motionPrompt string, duration float64) (string, error) {
	req := imageToVideoRequest{
		Model:       videoModel,
		Ratio:       videoRatio,
		PromptText:  motionPrompt,
		PromptImage: []promptImage{{URI: seedImage, Position: "first"}},
		Duration:    int(duration),
	}
	return c.createAndWait(ctx, "/image_to_video", req)
}

func (c *Client) createAndWait(ctx context.Context, path string, payload any) (string, error) {
	id, err := c.create(ctx, path, payload)
	if err != nil {
		return "", err
	}
	return c.waitForOutput(ctx, id)
}

func (c *Client) create(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("runway create %s: %w", path, err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxCreateAttempts {
			delay := backoff.ExponentialJitter(time.Second, 30*time.Second, attempt)
			log.Ctx(ctx).Warn().Int("attempt", attempt).Dur("delay", delay).Msg("runway rate limited, backing off")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", fmt.Errorf("runway create %s: status %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
		}

		var created createResponse
		if err := json.Unmarshal(raw, &created); err != nil {
			return "", fmt.Errorf("decode runway create response: %w", err)
		}
		if created.ID == "" {
			return "", fmt.Errorf("runway create %s: response missing task id", path)
		}
		return created.ID, nil
	}
}

// waitForOutput polls the provider task until it reaches a terminal status.
// There is deliberately no overall deadline here beyond ctx: a provider task
// that never resolves stalls the owning pipeline task (known gap).
func (c *Client) waitForOutput(ctx context.Context, id string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		t, err := c.getTask(ctx, id)
		if err != nil {
			return "", err
		}

		switch t.Status {
		case "SUCCEEDED":
			if len(t.Output) == 0 {
				return "", fmt.Errorf("runway task %s succeeded with no output", id)
			}
			return t.Output[0], nil
		case "FAILED", "CANCELLED":
			return "", fmt.Errorf("runway task %s: %s: %w", id, t.Failure, ports.ErrGenerationFailed)
		}
	}
}

func (c *Client) getTask(ctx context.Context, id string) (*taskResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tasks/"+id, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runway poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runway poll: status %d", resp.StatusCode)
	}

	var t taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode runway task: %w", err)
	}
	return &t, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Runway-Version", c.cfg.Version)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
