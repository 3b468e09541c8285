package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPostJSONDecodesSuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var body struct {
			Script string `json:"script"`
		}
		if err := decodeRequest(r, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"media_handle":"media-42"}`))
	}))
	defer server.Close()

	var target struct {
		MediaHandle string `json:"media_handle"`
	}
	err := PostJSON(context.Background(), server.Client(), "synthesis", server.URL,
		map[string]string{"Authorization": "Bearer test-key"},
		map[string]string{"script": "hello"}, &target)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if target.MediaHandle != "media-42" {
		t.Fatalf("media handle = %q", target.MediaHandle)
	}
}

func TestPostJSONReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.Client(), "rubric", server.URL, nil, map[string]string{}, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests || statusErr.Provider != "rubric" {
		t.Fatalf("status error = %+v", statusErr)
	}
	if statusErr.RetryAfter != 7*time.Second {
		t.Fatalf("retry-after = %v", statusErr.RetryAfter)
	}
	if !statusErr.Transient() {
		t.Fatal("429 should classify transient")
	}
}

func TestStatusErrorTransientClasses(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tc := range cases {
		err := &StatusError{StatusCode: tc.code}
		if got := err.Transient(); got != tc.want {
			t.Errorf("Transient(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestClassifyProviderError(t *testing.T) {
	transientStatus := &StatusError{Provider: "synthesis", StatusCode: 503, Body: "down"}
	permanentStatus := &StatusError{Provider: "synthesis", StatusCode: 400, Body: "bad voice"}

	if err := ClassifyProviderError("synthesis", "submit", transientStatus); !errors.Is(err, ErrTransient) {
		t.Fatalf("503 classified as %v", err)
	}
	if err := ClassifyProviderError("synthesis", "submit", permanentStatus); !errors.Is(err, ErrPermanent) {
		t.Fatalf("400 classified as %v", err)
	}
	if err := ClassifyProviderError("synthesis", "submit", errors.New("dial tcp: connection refused")); !errors.Is(err, ErrTransient) {
		t.Fatalf("connection refused classified as %v", err)
	}
	if err := ClassifyProviderError("synthesis", "submit", context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, ErrTransient) {
		t.Fatalf("cancellation classified as %v", err)
	}
	if err := ClassifyProviderError("synthesis", "submit", errors.New("unexpected payload")); !errors.Is(err, ErrPermanent) {
		t.Fatalf("unknown error classified as %v", err)
	}
	if err := ClassifyProviderError("synthesis", "submit", nil); err != nil {
		t.Fatalf("nil classified as %v", err)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	type reply struct {
		Script string `json:"script"`
	}

	cases := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"plain", `{"script":"hello"}`, "hello", false},
		{"fenced", "```json\n{\"script\":\"fenced\"}\n```", "fenced", false},
		{"bare fence", "```\n{\"script\":\"bare\"}\n```", "bare", false},
		{"leading prose", `Sure, here is the result: {"script":"prose"} hope that helps`, "prose", false},
		{"empty", "   ", "", true},
		{"not json", "no braces here", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out reply
			err := DecodeModelJSON(tc.content, &out)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("DecodeModelJSON(%q) succeeded with %+v", tc.content, out)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeModelJSON: %v", err)
			}
			if out.Script != tc.want {
				t.Fatalf("script = %q, want %q", out.Script, tc.want)
			}
		})
	}
}

func decodeRequest(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
