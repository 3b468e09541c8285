package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dicer/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultBaseURL     = "https://api.openai.com/v1/chat/completions"
)

// Config captures the runtime settings for the script-variation provider.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps a chat-completion API used to produce reworded scripts that
// stay close to the reference copy.
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

// NewClient constructs a script-generation client.
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

const systemPrompt = `You rewrite short-form ad scripts. Produce a reworded version of the
script you are given: keep the offer, the hook, the claims and the call to
action intact, change only phrasing. Stay within the allowed word-level
divergence. Respond with JSON only: {"script": "<reworded script>"}`

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

// GenerateVariant requests one reworded script. Errors are classified into
// the transient/permanent taxonomy; the caller owns retry and the
// divergence check.
func (c *Client) GenerateVariant(ctx context.Context, referenceScript string, maxDivergence float64) (string, error) {
	referenceScript = strings.TrimSpace(referenceScript)
	if referenceScript == "" {
		return "", services.Wrap(services.ErrPermanent, "scriptgen", "generate", "reference script required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "scriptgen", "generate", "api key required", nil)
	}

	userPrompt := fmt.Sprintf(
		"Maximum allowed divergence: %.0f%% of words.\n\nReference script:\n%s",
		maxDivergence*100,
		referenceScript,
	)
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var completion chatResponse
	if err := services.PostJSON(ctx, c.httpClient, "scriptgen", c.cfg.BaseURL, headers, payload, &completion); err != nil {
		return "", services.ClassifyProviderError("scriptgen", "generate", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrPermanent, "scriptgen", "generate", "api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, "scriptgen", "generate", "empty choices", nil)
	}

	var parsed struct {
		Script string `json:"script"`
	}
	if err := services.DecodeModelJSON(completion.Choices[0].Message.Content, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "scriptgen", "generate", "parse payload", err)
	}
	script := strings.TrimSpace(parsed.Script)
	if script == "" {
		return "", services.Wrap(services.ErrTransient, "scriptgen", "generate", "model returned empty script", errors.New("empty script field"))
	}
	return script, nil
}
