package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"chat-relay-backend/internal/metrics"
	"chat-relay-backend/internal/models"
)

// ErrUpstream is wrapped by every failure of a completion call: transport
// faults, non-2xx statuses, undecodable bodies and empty choice lists alike.
var ErrUpstream = errors.New("upstream chat completion failed")

// maxErrorBody caps how much of an upstream error body ends up in messages.
const maxErrorBody = 512

type CompletionConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds the whole upstream round trip. Zero means no timeout.
	Timeout time.Duration
}

// CompletionClient sends single-message conversations to an
// OpenAI-compatible chat-completion endpoint.
type CompletionClient struct {
	cfg      CompletionConfig
	endpoint string
	client   *http.Client
	metrics  *metrics.Recorder
	log      logrus.FieldLogger
}

func NewCompletionClient(cfg CompletionConfig, recorder *metrics.Recorder, logger logrus.FieldLogger) *CompletionClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &CompletionClient{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		metrics: recorder,
		log:     logger.WithField("component", "completion_client"),
	}
}

// Model returns the configured model identifier.
func (c *CompletionClient) Model() string {
	return c.cfg.Model
}

// Complete sends message as the only user turn and returns the content of
// the first choice unchanged. It makes exactly one outbound call.
func (c *CompletionClient) Complete(ctx context.Context, message string) (reply string, err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.metrics.ObserveUpstream(elapsed, err)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"model":   c.cfg.Model,
				"elapsed": elapsed,
			}).WithError(err).Warn("chat completion failed")
		}
	}()

	body, err := json.Marshal(models.CompletionRequest{
		Model: c.cfg.Model,
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: message},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %w", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.WithFields(logrus.Fields{
		"model": c.cfg.Model,
		"url":   c.endpoint,
	}).Debug("sending chat completion request")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %w", ErrUpstream, err)
	}

	return extractReply(resp.StatusCode, raw)
}

// extractReply turns an upstream status and body into the first choice's
// content, or an ErrUpstream-wrapped description of what was wrong.
func extractReply(status int, raw []byte) (string, error) {
	var parsed models.CompletionResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if status < 200 || status > 299 {
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, status, parsed.Error.Message)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, status, truncate(string(raw)))
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ErrUpstream, decodeErr)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrUpstream, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrUpstream)
	}

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "empty response body"
	}
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
