package mockbackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestHealthAndFeatures(t *testing.T) {
	h := New(Options{Model: "gemini-test", Version: "1.2"}).Handler()
	code, out := do(t, h, http.MethodGet, "/health", "")
	if code != http.StatusOK || out["status"] != "healthy" || out["model"] != "gemini-test" || out["version"] != "1.2" {
		t.Fatalf("unexpected health: %d %v", code, out)
	}
	code, out = do(t, h, http.MethodGet, "/api/features", "")
	features, _ := out["features"].([]any)
	if code != http.StatusOK || len(features) != len(defaultFeatures) {
		t.Fatalf("unexpected features: %d %v", code, out)
	}
}

func TestChatRepliesAndAnalyticsCounters(t *testing.T) {
	h := New(Options{}).Handler()

	_, out := do(t, h, http.MethodPost, "/api/chat", `{"message":"symptom check"}`)
	if !strings.Contains(out["reply"].(string), "Symptom Checker") {
		t.Fatalf("feature reply: %v", out)
	}
	_, out = do(t, h, http.MethodPost, "/api/chat", `{"message":"I have a headache and fever"}`)
	if len(out["reply"].(string)) <= 50 {
		t.Fatalf("general reply too short: %v", out)
	}
	_, out = do(t, h, http.MethodPost, "/api/chat", `{"message":"I have severe chest pain and can't breathe"}`)
	r := out["reply"].(string)
	if !strings.Contains(r, "EMERGENCY") || !strings.Contains(r, "911") {
		t.Fatalf("emergency reply: %v", out)
	}

	_, out = do(t, h, http.MethodGet, "/api/analytics", "")
	if out["success"] != true {
		t.Fatalf("analytics: %v", out)
	}
	data := out["data"].(map[string]any)
	if data["total_queries"].(float64) != 3 || data["emergency_queries"].(float64) != 1 {
		t.Fatalf("unexpected counters: %v", data)
	}
}

func TestChatRejectsBadBody(t *testing.T) {
	h := New(Options{}).Handler()
	code, out := do(t, h, http.MethodPost, "/api/chat", `{"msg":1}`)
	if code != http.StatusBadRequest || out["error"] == nil {
		t.Fatalf("expected 400, got %d %v", code, out)
	}
}

func TestOptionsOverride(t *testing.T) {
	h := New(Options{AnalyticsDisabled: true, Replies: map[string]string{"ping": "pong"}}).Handler()
	_, out := do(t, h, http.MethodPost, "/api/chat", `{"message":"PING"}`)
	if out["reply"] != "pong" {
		t.Fatalf("custom reply not used: %v", out)
	}
	_, out = do(t, h, http.MethodGet, "/api/analytics", "")
	if out["success"] != false {
		t.Fatalf("analytics should be disabled: %v", out)
	}
}
