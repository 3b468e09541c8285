// Package composition talks to the provider that overlays b-roll and
// captions on a synthesized clip to produce the final ad video.
package composition

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dicer/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Config captures connection settings for the composition provider.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

// Request describes one composition job.
type Request struct {
	MediaHandle string
	BRollStyle  string
	Captions    bool
}

// Client wraps the composition HTTP API.
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

// NewClient constructs a composition client.
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

type composeRequest struct {
	MediaHandle string `json:"media_handle"`
	BRollStyle  string `json:"b_roll_style,omitempty"`
	Captions    bool   `json:"captions"`
}

type composeResponse struct {
	VideoHandle string `json:"video_handle"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
}

// Compose produces the final video from a synthesized clip and returns the
// provider's handle for it.
func (c *Client) Compose(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.MediaHandle) == "" {
		return "", services.Wrap(services.ErrPermanent, "composition", "compose", "media handle required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "composition", "compose", "api key required", nil)
	}
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "composition", "compose", "base url required", nil)
	}

	payload := composeRequest{
		MediaHandle: req.MediaHandle,
		BRollStyle:  req.BRollStyle,
		Captions:    req.Captions,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var result composeResponse
	if err := services.PostJSON(ctx, c.httpClient, "composition", c.cfg.BaseURL+"/v1/compose", headers, payload, &result); err != nil {
		return "", services.ClassifyProviderError("composition", "compose", err)
	}
	if result.Status == "rejected" {
		return "", services.Wrap(services.ErrPermanent, "composition", "compose", "job rejected: "+result.Detail, nil)
	}
	if strings.TrimSpace(result.VideoHandle) == "" {
		return "", services.Wrap(services.ErrTransient, "composition", "compose", "provider returned no video handle", nil)
	}
	return result.VideoHandle, nil
}
