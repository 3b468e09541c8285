// Package synthesis talks to the voice+face synthesis provider that renders
// an actor performing a script.
package synthesis

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dicer/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Config captures connection settings for the synthesis provider.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

// Request describes one synthesis job.
type Request struct {
	Actor      string
	SceneID    string
	VoiceID    string
	Style      string
	ScriptText string
}

// Client wraps the synthesis HTTP API.
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

// NewClient constructs a synthesis client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type synthesizeRequest struct {
	SceneID string `json:"scene_id"`
	VoiceID string `json:"voice_id,omitempty"`
	Style   string `json:"style,omitempty"`
	Script  string `json:"script"`
}

type synthesizeResponse struct {
	MediaHandle string `json:"media_handle"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
}

// Synthesize renders the actor performing the script and returns the
// provider's media handle for the rendered clip.
func (c *Client) Synthesize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.ScriptText) == "" {
		return "", services.Wrap(services.ErrPermanent, "synthesis", "synthesize", "script text required", nil)
	}
	if strings.TrimSpace(req.SceneID) == "" {
		return "", services.Wrap(services.ErrPermanent, "synthesis", "synthesize", "scene id required for actor "+req.Actor, nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "synthesis", "synthesize", "api key required", nil)
	}
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "synthesis", "synthesize", "base url required", nil)
	}

	payload := synthesizeRequest{
		SceneID: req.SceneID,
		VoiceID: req.VoiceID,
		Style:   req.Style,
		Script:  req.ScriptText,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var result synthesizeResponse
	if err := services.PostJSON(ctx, c.httpClient, "synthesis", c.cfg.BaseURL+"/v1/synthesize", headers, payload, &result); err != nil {
		return "", services.ClassifyProviderError("synthesis", "synthesize", err)
	}
	if result.Status == "rejected" {
		return "", services.Wrap(services.ErrPermanent, "synthesis", "synthesize", "job rejected: "+result.Detail, nil)
	}
	if strings.TrimSpace(result.MediaHandle) == "" {
		return "", services.Wrap(services.ErrTransient, "synthesis", "synthesize", "provider returned no media handle", nil)
	}
	return result.MediaHandle, nil
}
