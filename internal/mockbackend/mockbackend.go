// Package mockbackend serves a canned implementation of the MedAssistBot
// backend HTTP contract for offline development and tests.
//
// Endpoints:
//
//	GET  /health          {status, model, version}
//	GET  /api/features    {features: [{name, icon, description}]}
//	GET  /api/analytics   {success, data: {total_queries, emergency_queries, ...}}
//	POST /api/chat        body {message} -> {reply}
package mockbackend

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Feature is one entry of /api/features.
type Feature struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description,omitempty"`
}

// Options customize the canned responses. Zero values fall back to defaults.
type Options struct {
	Model    string
	Version  string
	Features []Feature
	// Replies maps a lower-cased message to a fixed reply, checked before keyword rules.
	Replies map[string]string
	// AnalyticsDisabled makes /api/analytics answer {success:false}.
	AnalyticsDisabled bool
}

var defaultFeatures = []Feature{
	{Name: "Symptom Checker", Icon: "🩺", Description: "Describe symptoms and get guidance"},
	{Name: "Medication Info", Icon: "💊", Description: "Look up common medications"},
	{Name: "Health Tips", Icon: "🥗", Description: "Everyday wellness advice"},
	{Name: "Emergency Help", Icon: "🚨", Description: "Know when to call for help"},
}

var emergencyKeywords = []string{
	"chest pain", "can't breathe", "cannot breathe", "unconscious", "severe bleeding", "stroke", "heart attack", "suicide",
}

const (
	emergencyReply = "🚨 EMERGENCY: Your symptoms may indicate a medical emergency. " +
		"Call 911 or your local emergency number immediately."
	featureReply = "🩺 Symptom Checker activated. Describe your symptoms, how long you have had them, " +
		"and how severe they are, and I will help you understand possible causes."
	generalReply = "Thanks for sharing. Common causes include viral infections, dehydration and stress. " +
		"Rest, drink fluids and monitor your temperature. If symptoms persist for more than a few days " +
		"or get worse, please consult a healthcare professional. This is not a medical diagnosis."
)

// Server holds the in-memory analytics counters.
type Server struct {
	opts    Options
	started time.Time

	mu        sync.Mutex
	total     int
	emergency int
	features  map[string]int
}

func New(opts Options) *Server {
	if opts.Model == "" {
		opts.Model = "mock"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Features == nil {
		opts.Features = defaultFeatures
	}
	return &Server{opts: opts, started: time.Now(), features: make(map[string]int)}
}

// Handler returns an http.Handler powered by gin.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/health", s.handleHealth)
	api := g.Group("/api")
	api.GET("/features", s.handleFeatures)
	api.GET("/analytics", s.handleAnalytics)
	api.POST("/chat", s.handleChat)
	return g
}

// NewServer wraps the handler in an http.Server with bounded timeouts.
func NewServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "model": s.opts.Model, "version": s.opts.Version})
}

func (s *Server) handleFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"features": s.opts.Features})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	if s.opts.AnalyticsDisabled {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "analytics disabled"})
		return
	}
	s.mu.Lock()
	usage := make(map[string]int, len(s.features))
	for k, v := range s.features {
		usage[k] = v
	}
	data := gin.H{
		"total_queries":     s.total,
		"emergency_queries": s.emergency,
		"feature_usage":     usage,
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	reply, kind := s.answer(req.Message)
	s.mu.Lock()
	s.total++
	switch kind {
	case "emergency":
		s.emergency++
	case "feature":
		s.features["Symptom Checker"]++
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// answer picks the canned reply and classifies the query for analytics.
func (s *Server) answer(message string) (string, string) {
	msg := strings.ToLower(strings.TrimSpace(message))
	if r, ok := s.opts.Replies[msg]; ok {
		return r, "custom"
	}
	for _, k := range emergencyKeywords {
		if strings.Contains(msg, k) {
			return emergencyReply, "emergency"
		}
	}
	if msg == "symptom check" {
		return featureReply, "feature"
	}
	return generalReply, "general"
}
