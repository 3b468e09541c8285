package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dicer/internal/config"
)

const userAgent = "Dicer/0.1.0"

// Service defines the notification surface exposed to the run coordinator.
type Service interface {
	NotifyRunStarted(ctx context.Context, runID string, taskCount int) error
	NotifyRunCompleted(ctx context.Context, runID string, accepted, review, rejected, failed int, spend float64) error
	NotifyRunCapped(ctx context.Context, runID string, aborted int, spend, cap float64) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, runID string, taskCount int) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "Dicer - Run Started",
		message: fmt.Sprintf("Run %s: dispatching %d variant tasks", runID, taskCount),
		tags:    []string{"dicer", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runID string, accepted, review, rejected, failed int, spend float64) error {
	if !n.completion {
		return nil
	}
	message := fmt.Sprintf("Run %s complete: %d accepted, %d review, %d rejected", runID, accepted, review, rejected)
	if failed > 0 {
		message = fmt.Sprintf("%s, %d failed", message, failed)
	}
	message = fmt.Sprintf("%s. Spend $%.2f", message, spend)
	data := payload{
		title:    "Dicer - Run Complete",
		message:  message,
		tags:     []string{"dicer", "run", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCapped(ctx context.Context, runID string, aborted int, spend, cap float64) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Dicer - Cost Cap Hit",
		message:  fmt.Sprintf("Run %s stopped by cost cap: %d tasks aborted, $%.2f of $%.2f spent. Raise the cap and resume.", runID, aborted, spend, cap),
		tags:     []string{"dicer", "run", "capped"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Dicer - Error",
		message:  builder.String(),
		tags:     []string{"dicer", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Dicer - Test",
		message:  "Notification system test",
		tags:     []string{"dicer", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int, int, int, int, float64) error {
	return nil
}
func (noopService) NotifyRunCapped(context.Context, string, int, float64, float64) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
