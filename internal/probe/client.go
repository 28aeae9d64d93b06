package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Defaults match the backend's development server.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Second
)

// maxBody bounds how much of a response is read before decoding.
const maxBody = 4 << 20

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration // per request
	Logger  *slog.Logger
}

// Client issues single JSON requests against the backend and never returns
// transport errors to the caller; every failure is folded into a Result.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Result is the outcome of one request: the decoded JSON object on success,
// a non-empty error description otherwise.
type Result struct {
	OK      bool
	Payload map[string]any
	Err     string
}

func failed(err error) Result {
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Err: msg}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Get(ctx context.Context, path string) Result {
	return c.Call(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) Result {
	return c.Call(ctx, http.MethodPost, path, body)
}

// Call sends method to base+path. A non-nil body is only sent with POST, as JSON.
func (c *Client) Call(ctx context.Context, method, path string, body any) Result {
	url := c.baseURL + path
	var reader io.Reader
	if method == http.MethodPost && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return failed(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return failed(err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("probe request", "method", method, "url", url)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("probe request failed", "url", url, "error", err)
		return failed(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(fmt.Errorf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return failed(fmt.Errorf("read response: %w", err))
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return failed(fmt.Errorf("response is not a JSON object: %s", typeErr.Value))
		}
		return failed(fmt.Errorf("decode response: %w", err))
	}
	if payload == nil {
		return failed(errors.New("response is not a JSON object: null"))
	}
	return Result{OK: true, Payload: payload}
}
