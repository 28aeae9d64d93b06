package probe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewDefaults(t *testing.T) {
	c := New(Config{Logger: quietLogger()})
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("expected default base %s, got %s", DefaultBaseURL, c.BaseURL())
	}
	if c.client.Timeout != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %v", c.client.Timeout)
	}
	c = New(Config{BaseURL: "http://example.com:9000/", Timeout: time.Second})
	if c.BaseURL() != "http://example.com:9000" || c.client.Timeout != time.Second {
		t.Errorf("custom config not applied: %s %v", c.BaseURL(), c.client.Timeout)
	}
}

func TestGetHealthPreservesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if r.ContentLength > 0 {
			t.Errorf("GET must not carry a body")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","model":"x","version":"1"}`))
	}))
	defer srv.Close()

	res := New(Config{BaseURL: srv.URL, Logger: quietLogger()}).Get(context.Background(), "/health")
	if !res.OK || res.Err != "" {
		t.Fatalf("expected success, got %+v", res)
	}
	want := map[string]any{"status": "ok", "model": "x", "version": "1"}
	if len(res.Payload) != len(want) {
		t.Fatalf("payload mismatch: %v", res.Payload)
	}
	for k, v := range want {
		if res.Payload[k] != v {
			t.Fatalf("field %s = %v want %v", k, res.Payload[k], v)
		}
	}
}

func TestPostSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		var body ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "echo: " + body.Message})
	}))
	defer srv.Close()

	res := New(Config{BaseURL: srv.URL, Logger: quietLogger()}).Post(context.Background(), "/api/chat", ChatRequest{Message: "hi"})
	if !res.OK || res.Payload["reply"] != "echo: hi" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestConnectionRefusedIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Timeout: time.Second, Logger: quietLogger()})
	for _, path := range []string{"/health", "/api/features", "/api/analytics"} {
		res := c.Get(context.Background(), path)
		if res.OK || strings.TrimSpace(res.Err) == "" {
			t.Fatalf("%s: expected failure with message, got %+v", path, res)
		}
	}
	res := c.Post(context.Background(), "/api/chat", ChatRequest{Message: "x"})
	if res.OK || res.Err == "" {
		t.Fatalf("POST: expected failure, got %+v", res)
	}
}

func TestFailureClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, "HTTP Error 500"},
		{"invalid json", http.StatusOK, `not json`, "decode response"},
		{"json array", http.StatusOK, `[1,2]`, "not a JSON object"},
		{"json null", http.StatusOK, `null`, "not a JSON object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			res := New(Config{BaseURL: srv.URL, Logger: quietLogger()}).Get(context.Background(), "/x")
			if res.OK || !strings.Contains(res.Err, tc.wantErr) {
				t.Fatalf("expected error containing %q, got %+v", tc.wantErr, res)
			}
		})
	}
}

func TestTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, Logger: quietLogger()}).Get(context.Background(), "/health")
	if res.OK || res.Err == "" {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
}
