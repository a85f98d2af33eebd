// Package openai implements the script-provider capability against an
// OpenAI-compatible chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"genserver/internal/config"
	"genserver/internal/ports"

	"github.com/rs/zerolog/log"
)

var _ ports.ScriptProvider = (*Client)(nil)

type Client struct {
	cfg        config.OpenAI
	httpClient *http.Client
}

func New(cfg config.OpenAI) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

const scriptSystemPrompt = `You are a professional video director. Transform the given text input into a scene-by-scene video plan lasting 1-3 minutes, broken into scenes of exactly 10 seconds each.

Output format, one line per scene, nothing else:
SCENE 1: [detailed, cinematic, modern visual description] | Duration: 10 seconds
SCENE 2: [detailed, cinematic, modern visual description] | Duration: 10 seconds

Each scene should feel authentic and realistic, like a professionally filmed live-action commercial. Add text overlays where appropriate (event names, slogans, calls to action). Keep style and atmosphere consistent across all scenes and end with a strong closing scene.`

const motionSystemPrompt = `You generate prompts for video generation. The input is a scene description; a 9.5 second video must be generated from it, followed by a smooth cinematic transition effect lasting 0.5 seconds. The video must be realistic: no sudden appearances or disappearances of people or objects, no surreal phenomena, and the number and identity of people and objects must not change throughout the clip. Respond with the video prompt only.`

// motionPrefix is prepended to every motion prompt so each clip request
// carries identical realism constraints regardless of provider wording.
const motionPrefix = "This is a high-quality cinematic scene captured by a professional camera, not a photo, not a cartoon. " +
	"The motion is continuous and natural, with no sudden appearances or disappearances of people or objects. "

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GenerateScript(ctx context.Context, prompt string) (string, error) {
	log.Ctx(ctx).Info().Str("model", c.cfg.Model).Msg("generating script")
	return c.complete(ctx, scriptSystemPrompt, prompt)
}

func (c *Client) MotionPrompt(ctx context.Context, sceneDescription string) (string, error) {
	out, err := c.complete(ctx, motionSystemPrompt, sceneDescription)
	if err != nil {
		return "", err
	}
	return motionPrefix + out, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}
