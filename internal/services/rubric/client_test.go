package rubric

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dicer/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Temperature: 0.3},
		WithHTTPClient(server.Client()),
	)
}

func scoreReply(content string) []byte {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	encoded, _ := json.Marshal(reply)
	return encoded
}

func TestEvaluateParsesScore(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Temperature != 0.3 {
			t.Errorf("temperature = %v", req.Temperature)
		}
		w.Write(scoreReply(`{"score":0.85}`))
	})

	score, err := client.Evaluate(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if score != 0.85 {
		t.Fatalf("score = %v", score)
	}
}

func TestEvaluateRejectsOutOfRangeScore(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write(scoreReply(`{"score":7}`))
	})

	_, err := client.Evaluate(context.Background(), "video-1")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("out-of-range score classified as %v", err)
	}
}

func TestEvaluateRequiresVideoHandle(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})
	if _, err := client.Evaluate(context.Background(), "  "); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("blank handle classified as %v", err)
	}
}

func TestEvaluateClassifiesRateLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.Evaluate(context.Background(), "video-1")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("429 classified as %v", err)
	}
}
