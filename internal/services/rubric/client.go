// Package rubric scores finished videos against the creative rubric and
// aggregates ensemble scores into a single decision.
package rubric

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dicer/internal/services"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://api.openai.com/v1/chat/completions"
)

// Config captures connection and sampling settings for rubric evaluation.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Temperature    float64
}

// Client wraps the rubric evaluation API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a rubric client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
			Temperature:    cfg.Temperature,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

const systemPrompt = `You grade short-form ad videos against a creative rubric: hook strength,
claim clarity, pacing, call-to-action, and overall polish. Score the video
between 0.0 (unusable) and 1.0 (ready to ship). Respond with JSON only:
{"score": <number>}`

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
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

// Evaluate scores one video. Each ensemble member calls this once; the
// sampling temperature comes from configuration so members can disagree.
func (c *Client) Evaluate(ctx context.Context, videoHandle string) (float64, error) {
	videoHandle = strings.TrimSpace(videoHandle)
	if videoHandle == "" {
		return 0, services.Wrap(services.ErrPermanent, "rubric", "evaluate", "video handle required", nil)
	}
	if c.cfg.APIKey == "" {
		return 0, services.Wrap(services.ErrConfiguration, "rubric", "evaluate", "api key required", nil)
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Video: " + videoHandle},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var completion chatResponse
	if err := services.PostJSON(ctx, c.httpClient, "rubric", c.cfg.BaseURL, headers, payload, &completion); err != nil {
		return 0, services.ClassifyProviderError("rubric", "evaluate", err)
	}
	if completion.Error != nil {
		return 0, services.Wrap(services.ErrPermanent, "rubric", "evaluate", "api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	if len(completion.Choices) == 0 {
		return 0, services.Wrap(services.ErrTransient, "rubric", "evaluate", "empty choices", nil)
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := services.DecodeModelJSON(completion.Choices[0].Message.Content, &parsed); err != nil {
		return 0, services.Wrap(services.ErrTransient, "rubric", "evaluate", "parse payload", err)
	}
	if parsed.Score < 0 || parsed.Score > 1 {
		return 0, services.Wrap(services.ErrTransient, "rubric", "evaluate", fmt.Sprintf("score %.3f outside [0,1]", parsed.Score), nil)
	}
	return parsed.Score, nil
}
