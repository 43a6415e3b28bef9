package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/storybot/weaver/internal/httpkit"
)

// DefaultAPIBaseURL is the production Discord REST endpoint.
const DefaultAPIBaseURL = "https://discord.com/api/v10"

// maxMessageLen is Discord's hard limit on message content. Longer
// texts are split across multiple messages, preferring line breaks.
const maxMessageLen = 2000

// Rest posts messages through the Discord REST API. It satisfies the
// Sender interfaces of the story engine and attention scheduler.
type Rest struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRest creates a REST client. An empty baseURL selects the
// production endpoint.
func NewRest(token, baseURL string, logger *slog.Logger) *Rest {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rest{
		baseURL: baseURL,
		token:   token,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger.With("component", "rest"),
	}
}

// Send posts text to a channel, splitting it when it exceeds Discord's
// message length limit.
func (r *Rest) Send(ctx context.Context, channelID, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := r.postMessage(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rest) postMessage(ctx context.Context, channelID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", r.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := httpkit.ReadErrorBody(resp.Body, 4096)
		return fmt.Errorf("discord api %d: %s", resp.StatusCode, detail)
	}

	r.logger.Debug("message posted",
		"channel_id", channelID,
		"content_len", len(content),
	)
	return nil
}

// splitMessage breaks text into chunks of at most limit bytes, cutting
// at newlines where possible so formatted menus stay readable. With no
// newline in range the cut backs off to a rune boundary so multibyte
// characters never straddle two messages.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := 0
		for i := limit; i > limit/2; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		if cut == 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
