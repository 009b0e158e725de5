/**
 * @description
 * Lightweight DeepSeek (OpenAI-compatible) Chat Completions client.
 * Used by the analysis service for health-data and medical-image analysis.
 *
 * @dependencies
 * - net/http
 * - backend/internal/config
 * - backend/internal/retry
 *
 * @notes
 * - Returns the raw response envelope; shape reconciliation happens in internal/analysis.
 * - The whole call (including retries) is bounded by the configured timeout (30s default).
 */

package deepseek

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vitalchain-project/backend/internal/config"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/retry"
)

const (
	DefaultBaseURL   = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel     = "deepseek-chat"
	DefaultTimeout   = 30 * time.Second
	defaultMaxTokens = 2000
	maxAttempts      = 2
	retryBaseDelay   = 500 * time.Millisecond
)

var (
	// ErrTimeout is returned when the provider did not answer within the configured timeout.
	ErrTimeout = errors.New("ai provider timed out")
	// ErrUpstream covers every other provider failure.
	ErrUpstream = errors.New("ai provider request failed")

	errRetryable = errors.New("ai provider retryable error")
)

type Client struct {
	apiKey      string
	httpClient  *http.Client
	baseURL     string
	model       string
	visionModel string
	timeout     time.Duration
	retry       retry.Policy
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// Message content is either a plain string or a list of ContentPart for vision input.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func NewClient(cfg *config.Config) *Client {
	baseURL := strings.TrimSpace(cfg.AI.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.AI.Model)
	if model == "" {
		model = DefaultModel
	}
	visionModel := strings.TrimSpace(cfg.AI.VisionModel)
	if visionModel == "" {
		visionModel = model
	}
	timeout := cfg.AI.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		apiKey:      cfg.AI.APIKey,
		baseURL:     baseURL,
		model:       model,
		visionModel: visionModel,
		timeout:     timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: retry.Policy{
			MaxAttempts: maxAttempts,
			BaseDelay:   retryBaseDelay,
			OnRetry: func(attempt int, err error) {
				logger.Info("Retrying AI request after error (attempt %d/%d): %v", attempt, maxAttempts, err)
			},
		},
	}
}

// Complete sends a text prompt and returns the raw chat-completion response body.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return nil, fmt.Errorf("user prompt is required")
	}

	return c.send(ctx, ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: strings.TrimSpace(systemPrompt)},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.2,
		MaxTokens:      defaultMaxTokens,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
}

// CompleteWithImage sends a prompt plus an inline base64 image to the vision model.
func (c *Client) CompleteWithImage(ctx context.Context, systemPrompt, userPrompt, mimeType string, image []byte) ([]byte, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	return c.send(ctx, ChatRequest{
		Model: c.visionModel,
		Messages: []Message{
			{Role: "system", Content: strings.TrimSpace(systemPrompt)},
			{Role: "user", Content: []ContentPart{
				{Type: "text", Text: strings.TrimSpace(userPrompt)},
				{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}},
			}},
		},
		Temperature: 0.2,
		MaxTokens:   defaultMaxTokens,
	})
}

// Model returns the text model name being used by this client
func (c *Client) Model() string {
	return c.model
}

func (c *Client) send(ctx context.Context, payload ChatRequest) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: api key is not configured", ErrUpstream)
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		raw, err := c.sendOnce(ctx, bodyBytes)
		if err != nil && !errors.Is(err, errRetryable) {
			return nil, retry.Permanent(err)
		}
		return raw, err
	})
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return raw, nil
}

func (c *Client) sendOnce(ctx context.Context, bodyBytes []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errRetryable, err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("AI API error: %d - %s", resp.StatusCode, truncateForLog(string(respBody), 1000))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
		}
		return nil, fmt.Errorf("ai api returned status %d", resp.StatusCode)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, fmt.Errorf("%w: empty body", errRetryable)
	}
	return respBody, nil
}

func truncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
