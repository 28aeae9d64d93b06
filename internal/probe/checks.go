package probe

import (
	"fmt"
	"net/http"
	"strings"
)

// Outcome classifies a check.
type Outcome string

const (
	Pass Outcome = "pass"
	Warn Outcome = "warn" // reachable but degraded or unexpected content
	Fail Outcome = "fail" // request failed
)

// Verdict is what a check concludes from a successful response.
type Verdict struct {
	Outcome Outcome
	Message string
	Details []string
}

// Check is a single request paired with a predicate over its JSON response.
type Check struct {
	Name   string // stable identifier, used as metric label
	Title  string
	Method string
	Path   string
	Body   any
	// Fatal checks halt the run when the request fails.
	Fatal    bool
	Evaluate func(payload map[string]any) Verdict
}

// previewLen bounds reply previews in the report.
const previewLen = 100

// DefaultChecks is the MedAssistBot integration sequence.
func DefaultChecks() []Check {
	return []Check{
		{
			Name:   "health",
			Title:  "Testing Backend Health",
			Method: http.MethodGet,
			Path:   "/health",
			Fatal:  true,
			Evaluate: func(p map[string]any) Verdict {
				details := []string{
					"Model: " + field(p, "model", "unknown"),
					"Version: " + field(p, "version", "unknown"),
				}
				if _, ok := p["status"]; !ok {
					return Verdict{Warn, "Backend responded without a status field", details}
				}
				return Verdict{Pass, "Backend is healthy: " + field(p, "status", "unknown"), details}
			},
		},
		{
			Name:   "features",
			Title:  "Testing Features API",
			Method: http.MethodGet,
			Path:   "/api/features",
			Evaluate: func(p map[string]any) Verdict {
				features, ok := p["features"].([]any)
				if !ok {
					return Verdict{Outcome: Warn, Message: "Features API responded without a features list"}
				}
				var details []string
				for _, f := range features {
					m, _ := f.(map[string]any)
					details = append(details, strings.TrimSpace(field(m, "icon", "")+" "+field(m, "name", "Unknown")))
				}
				return Verdict{Pass, fmt.Sprintf("Features API working: %d features available", len(features)), details}
			},
		},
		{
			Name:   "analytics",
			Title:  "Testing Analytics API",
			Method: http.MethodGet,
			Path:   "/api/analytics",
			Evaluate: func(p map[string]any) Verdict {
				if ok, _ := p["success"].(bool); !ok {
					return Verdict{Outcome: Warn, Message: "Analytics API responded but no data"}
				}
				data, _ := p["data"].(map[string]any)
				return Verdict{Pass, "Analytics API working", []string{
					"Total queries: " + field(data, "total_queries", "0"),
					"Emergency queries: " + field(data, "emergency_queries", "0"),
				}}
			},
		},
		{
			Name:   "chat_feature",
			Title:  "Testing Chat API with Feature Button",
			Method: http.MethodPost,
			Path:   "/api/chat",
			Body:   ChatRequest{Message: "symptom check"},
			Evaluate: func(p map[string]any) Verdict {
				reply := reply(p)
				if strings.Contains(reply, "Symptom Checker") {
					return Verdict{Pass, "Feature button integration working", []string{"Response preview: " + preview(reply)}}
				}
				return Verdict{Outcome: Warn, Message: "Unexpected response: " + preview(reply)}
			},
		},
		{
			Name:   "chat_medical",
			Title:  "Testing Chat API with Medical Query",
			Method: http.MethodPost,
			Path:   "/api/chat",
			Body:   ChatRequest{Message: "I have a headache and fever"},
			Evaluate: func(p map[string]any) Verdict {
				reply := reply(p)
				if len([]rune(reply)) > 50 {
					return Verdict{Pass, "Medical query processing working", []string{"Response preview: " + preview(reply)}}
				}
				return Verdict{Outcome: Warn, Message: "Short or empty response: " + reply}
			},
		},
		{
			Name:   "chat_emergency",
			Title:  "Testing Emergency Detection",
			Method: http.MethodPost,
			Path:   "/api/chat",
			Body:   ChatRequest{Message: "I have severe chest pain and can't breathe"},
			Evaluate: func(p map[string]any) Verdict {
				reply := reply(p)
				if strings.Contains(strings.ToUpper(reply), "EMERGENCY") || strings.Contains(reply, "911") {
					return Verdict{Pass, "Emergency detection working", []string{"Response preview: " + preview(reply)}}
				}
				return Verdict{Outcome: Warn, Message: "Emergency not detected: " + preview(reply)}
			},
		},
	}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

func reply(p map[string]any) string {
	s, _ := p["reply"].(string)
	return s
}

// field renders p[key] for display, def when absent or null.
func field(p map[string]any, key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}
