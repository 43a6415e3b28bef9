// Package gemini provides a client for the Gemini text-generation API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storybot/weaver/internal/config"
	"github.com/storybot/weaver/internal/events"
	"github.com/storybot/weaver/internal/httpkit"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client calls the Gemini generateContent endpoint. It is stateless;
// one Client is shared by all channels.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	bus        *events.Bus
}

// New creates a Gemini client from config. A nil logger defaults to
// slog.Default; a nil bus disables event publishing.
func New(cfg config.GeminiConfig, logger *slog.Logger, bus *events.Bus) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	// Generation can take a while before headers arrive; widen the
	// response header timeout beyond the shared default.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 60 * time.Second

	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: baseURL,
		logger:  logger.With("provider", "gemini"),
		bus:     bus,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(90*time.Second),
			httpkit.WithTransport(t),
		),
	}
}

// Gemini request/response types. Only the fields we read are declared;
// the API emits many more.

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Complete sends prompt as a single user turn and returns the
// completion text verbatim. Exactly one HTTP request is made per call;
// a missing API key short-circuits before any network I/O with a
// *ConfigError. Non-2xx statuses and connection failures return a
// *TransportError; a 2xx body without completion text returns a
// *MalformedResponseError.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	if c.apiKey == "" {
		c.logger.Warn("gemini API key not configured")
		return "", &ConfigError{}
	}

	req := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))
	c.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceGemini,
		Kind:      events.KindBackendCall,
		Data:      map[string]any{"model": c.model, "prompt_len": len(prompt)},
	})

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("request failed", "model", c.model, "error", err)
		c.publishError(err)
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		terr := &TransportError{Status: resp.StatusCode, Err: errors.New(errBody)}
		c.publishError(terr)
		return "", terr
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Error("decode response failed", "error", err)
		merr := &MalformedResponseError{Detail: fmt.Sprintf("decode response: %v", err)}
		c.publishError(merr)
		return "", merr
	}

	text, ok := completionText(result)
	if !ok {
		c.logger.Warn("unexpected response structure, no completion text")
		merr := &MalformedResponseError{Detail: "no candidates[0].content.parts[0].text in response"}
		c.publishError(merr)
		return "", merr
	}

	c.logger.Debug("completion received",
		"model", c.model,
		"prompt_len", len(prompt),
		"response_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Ping checks that the API is reachable and the key is accepted by
// listing models. Used for the startup health check only.
func (c *Client) Ping(ctx context.Context) error {
	if c.apiKey == "" {
		return &ConfigError{}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1beta/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}

// completionText extracts candidates[0].content.parts[0].text.
func completionText(r generateResponse) (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", false
	}
	return parts[0].Text, true
}

func (c *Client) publishError(err error) {
	c.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceGemini,
		Kind:      events.KindBackendError,
		Data:      map[string]any{"model": c.model, "error": err.Error()},
	})
}
