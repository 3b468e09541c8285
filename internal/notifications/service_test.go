package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dicer/internal/testsupport"
)

type recordedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newRecordingService(t *testing.T) (*ntfyService, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return &ntfyService{
		endpoint:   server.URL,
		client:     server.Client(),
		completion: true,
		errors:     true,
	}, &requests
}

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, ok := NewService(cfg).(noopService); !ok {
		t.Fatal("empty topic should produce the noop service")
	}

	cfg.Notifications.NtfyTopic = "https://ntfy.sh/dicer-test"
	if _, ok := NewService(cfg).(*ntfyService); !ok {
		t.Fatal("configured topic should produce the ntfy service")
	}
}

func TestNotifyRunCompletedSendsTitledMessage(t *testing.T) {
	svc, requests := newRecordingService(t)

	if err := svc.NotifyRunCompleted(context.Background(), "run-1", 3, 1, 0, 1, 2.41); err != nil {
		t.Fatalf("NotifyRunCompleted: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("requests = %d", len(*requests))
	}
	got := (*requests)[0]
	if got.title != "Dicer - Run Complete" {
		t.Fatalf("title = %q", got.title)
	}
	if got.priority != "high" {
		t.Fatalf("priority = %q", got.priority)
	}
	for _, want := range []string{"run-1", "3 accepted", "1 review", "1 failed", "$2.41"} {
		if !strings.Contains(got.body, want) {
			t.Fatalf("body %q missing %q", got.body, want)
		}
	}
}

func TestNotifyGatesRespectConfigFlags(t *testing.T) {
	svc, requests := newRecordingService(t)
	svc.completion = false
	svc.errors = false

	ctx := context.Background()
	if err := svc.NotifyRunStarted(ctx, "run-1", 4); err != nil {
		t.Fatalf("NotifyRunStarted: %v", err)
	}
	if err := svc.NotifyRunCapped(ctx, "run-1", 2, 9.5, 10); err != nil {
		t.Fatalf("NotifyRunCapped: %v", err)
	}
	if err := svc.NotifyError(ctx, io.ErrUnexpectedEOF, "run run-1"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if len(*requests) != 0 {
		t.Fatalf("disabled service sent %d requests", len(*requests))
	}

	// The explicit test notification always goes out.
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("requests = %d", len(*requests))
	}
}

func TestSendReportsServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden topic", http.StatusForbidden)
	}))
	defer server.Close()

	svc := &ntfyService{endpoint: server.URL, client: server.Client(), completion: true, errors: true}
	err := svc.NotifyRunStarted(context.Background(), "run-1", 1)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want ntfy 403", err)
	}
}
