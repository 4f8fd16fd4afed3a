// Package gemini talks to the Google generative service. Image synthesis and
// chat go through the OpenAI-compatible endpoint; video jobs and multimodal
// edits use the native REST surface.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ykj/studio/internal/gateway"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL       = "https://generativelanguage.googleapis.com"
	DefaultOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	responseHeaderTimeout = 5 * time.Minute
)

type Config struct {
	APIKey        string
	BaseURL       string
	OpenAIBaseURL string
	HTTPClient    *http.Client
}

type Client struct {
	apiKey  string
	baseURL string
	hc      *http.Client
	api     *openai.Client
}

var _ gateway.Remote = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = DefaultOpenAIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = DefaultHTTPClient()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	oc.HTTPClient = cfg.HTTPClient
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      cfg.HTTPClient,
		api:     openai.NewClientWithConfig(oc),
	}
}

// DefaultHTTPClient has no overall timeout, only a bound on the wait for
// response headers, so a chat stream runs as long as its context allows.
func DefaultHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = responseHeaderTimeout
	return &http.Client{Transport: t}
}

// APIError is the error envelope returned by the native REST surface.
type APIError struct {
	StatusCode int
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d", e.StatusCode)
	}
	return e.Message
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
			apiErr = envelope.Error
			apiErr.StatusCode = resp.StatusCode
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
