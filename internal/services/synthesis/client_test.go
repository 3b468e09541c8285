package synthesis

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
		Config{APIKey: "test-key", BaseURL: server.URL},
		WithHTTPClient(server.Client()),
	)
}

func TestSynthesizeReturnsMediaHandle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SceneID != "scene-1" || req.VoiceID != "voice-1" || req.Script != "Buy now." {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"media_handle":"media-99","status":"done"}`))
	})

	handle, err := client.Synthesize(context.Background(), Request{
		Actor:      "mia",
		SceneID:    "scene-1",
		VoiceID:    "voice-1",
		ScriptText: "Buy now.",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if handle != "media-99" {
		t.Fatalf("handle = %q", handle)
	}
}

func TestSynthesizeRejectionIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"rejected","detail":"unknown scene"}`))
	})

	_, err := client.Synthesize(context.Background(), Request{Actor: "mia", SceneID: "scene-x", ScriptText: "Buy now."})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("rejection classified as %v", err)
	}
}

func TestSynthesizeMissingHandleIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"queued"}`))
	})

	_, err := client.Synthesize(context.Background(), Request{Actor: "mia", SceneID: "scene-1", ScriptText: "Buy now."})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("missing handle classified as %v", err)
	}
}

func TestSynthesizeValidatesRequest(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})

	if _, err := client.Synthesize(context.Background(), Request{Actor: "mia", SceneID: "scene-1"}); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("blank script classified as %v", err)
	}
	if _, err := client.Synthesize(context.Background(), Request{Actor: "mia", ScriptText: "Buy now."}); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("missing scene classified as %v", err)
	}

	unkeyed := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := unkeyed.Synthesize(context.Background(), Request{Actor: "mia", SceneID: "scene-1", ScriptText: "Buy now."}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key classified as %v", err)
	}
}

func TestSynthesizeClassifiesServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Synthesize(context.Background(), Request{Actor: "mia", SceneID: "scene-1", ScriptText: "Buy now."})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("502 classified as %v", err)
	}
}
