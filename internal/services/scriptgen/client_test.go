package scriptgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dicer/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		WithHTTPClient(server.Client()),
	)
}

func chatReply(content string) string {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	encoded, _ := json.Marshal(reply)
	return string(encoded)
}

func TestGenerateVariantParsesScript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}
		if !strings.Contains(req.Messages[1].Content, "20%") {
			t.Errorf("user prompt missing divergence bound: %q", req.Messages[1].Content)
		}
		w.Write([]byte(chatReply(`{"script":"Grab the brand-new Gizmo today."}`)))
	})

	script, err := client.GenerateVariant(context.Background(), "Grab the new Gizmo today.", 0.20)
	if err != nil {
		t.Fatalf("GenerateVariant: %v", err)
	}
	if script != "Grab the brand-new Gizmo today." {
		t.Fatalf("script = %q", script)
	}
}

func TestGenerateVariantToleratesFencedPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(chatReply("```json\n{\"script\":\"Fenced rewording.\"}\n```")))
	})

	script, err := client.GenerateVariant(context.Background(), "reference", 0.20)
	if err != nil {
		t.Fatalf("GenerateVariant: %v", err)
	}
	if script != "Fenced rewording." {
		t.Fatalf("script = %q", script)
	}
}

func TestGenerateVariantClassifiesServerErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.GenerateVariant(context.Background(), "reference", 0.20)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("503 classified as %v", err)
	}
}

func TestGenerateVariantRejectsAPIErrorAsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"message":"model not found"}}`))
	})

	_, err := client.GenerateVariant(context.Background(), "reference", 0.20)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("api error classified as %v", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateVariantTreatsEmptyScriptAsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(chatReply(`{"script":"  "}`)))
	})

	_, err := client.GenerateVariant(context.Background(), "reference", 0.20)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("empty script classified as %v", err)
	}
}

func TestGenerateVariantRequiresInputs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	if _, err := client.GenerateVariant(context.Background(), "   ", 0.20); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("blank reference classified as %v", err)
	}

	unkeyed := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := unkeyed.GenerateVariant(context.Background(), "reference", 0.20); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key classified as %v", err)
	}
}
