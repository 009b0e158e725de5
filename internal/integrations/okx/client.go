/**
 * @description
 * HTTP client for the OKX Wallet-as-a-Service message verification API.
 * Used to verify login signatures produced by custodial (OKX) wallets, where
 * the backend cannot recover the signer locally.
 *
 * @dependencies
 * - net/http
 * - backend/internal/config
 * - backend/internal/logger
 *
 * @notes
 * - Auth: OK-ACCESS-* headers, HMAC-SHA256 over timestamp + method + path + body.
 * - A response with code "0" is a positive verification; any other code is the
 *   provider definitively rejecting the signature and is reported as ErrRejected.
 * - Transport failures, 429 and 5xx are reported as retryable.
 */

package okx

import (
	"bytes"
	"context"
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
)

const (
	DefaultBaseURL    = "https://www.okx.com"
	DefaultVerifyPath = "/api/v5/waas/wallet/utxo/verify-message"
	DefaultTimeout    = 15 * time.Second

	successCode = "0"
)

var (
	// ErrRejected means the provider answered and said the signature is not valid.
	ErrRejected = errors.New("okx rejected signature")
	// ErrRetryable wraps transient provider failures (rate limits, 5xx, unreadable bodies).
	ErrRetryable = errors.New("okx transient failure")
	// ErrNotConfigured is returned when API credentials are absent.
	ErrNotConfigured = errors.New("okx credentials are not configured")
)

type Client struct {
	BaseURL    string
	VerifyPath string
	HTTPClient *http.Client
	APIKey     string
	SecretKey  string
	Passphrase string
	ProjectID  string

	now func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.OKX.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	verifyPath := strings.TrimSpace(cfg.OKX.VerifyPath)
	if verifyPath == "" {
		verifyPath = DefaultVerifyPath
	}
	timeout := cfg.OKX.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		BaseURL:    baseURL,
		VerifyPath: verifyPath,
		APIKey:     cfg.OKX.APIKey,
		SecretKey:  cfg.OKX.SecretKey,
		Passphrase: cfg.OKX.Passphrase,
		ProjectID:  cfg.OKX.ProjectID,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// StatusError is a non-retryable, non-200 HTTP answer (bad credentials, malformed request).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("okx returned status %d", e.StatusCode)
}

// VerifyRequest is the body sent to the verify endpoint.
type VerifyRequest struct {
	ChainIndex string `json:"chainIndex"`
	Address    string `json:"address"`
	Message    string `json:"message"`
	Signature  string `json:"signature"`
	SignType   string `json:"signType"`
}

// VerifyResult is the recovered signer reported by the provider.
type VerifyResult struct {
	Address string `json:"address"`
}

type apiResponse struct {
	Code string         `json:"code"`
	Msg  string         `json:"msg"`
	Data []VerifyResult `json:"data"`
}

// VerifyMessage asks OKX to verify a personal-sign style login signature.
// It performs exactly one HTTP call; retrying is the caller's decision.
func (c *Client) VerifyMessage(ctx context.Context, address, message, signature string) (*VerifyResult, error) {
	payload := VerifyRequest{
		ChainIndex: "1",
		Address:    address,
		Message:    message,
		Signature:  signature,
		SignType:   "personal_sign",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+c.VerifyPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.setHeaders(req, data); err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrRetryable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrRetryable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		logger.Error("OKX verify error: %d - %s", resp.StatusCode, truncate(string(body), 500))
		return nil, fmt.Errorf("%w: status %d", ErrRetryable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Error("OKX verify unexpected status: %d - %s", resp.StatusCode, truncate(string(body), 500))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrRetryable, err)
	}
	if result.Code != successCode {
		return nil, fmt.Errorf("%w: code %s: %s", ErrRejected, result.Code, result.Msg)
	}
	if len(result.Data) == 0 || strings.TrimSpace(result.Data[0].Address) == "" {
		return nil, fmt.Errorf("%w: response carried no address", ErrRejected)
	}

	return &result.Data[0], nil
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CheckAuth sends a deliberately invalid verification. Any answer other than a
// transport failure or 401/403 proves the credentials are accepted.
func (c *Client) CheckAuth(ctx context.Context) error {
	_, err := c.VerifyMessage(ctx, "0x0000000000000000000000000000000000000000", "auth-check", "0x")
	if err == nil || errors.Is(err, ErrRejected) {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) &&
		statusErr.StatusCode != http.StatusUnauthorized && statusErr.StatusCode != http.StatusForbidden {
		return nil
	}
	return err
}

func (c *Client) setHeaders(req *http.Request, body []byte) error {
	if c.APIKey == "" || c.SecretKey == "" || c.Passphrase == "" {
		return ErrNotConfigured
	}

	timestamp := c.now().UTC().Format(timestampLayout)
	sig, err := buildAccessSignature(c.SecretKey, timestamp, req.Method, req.URL.RequestURI(), body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", sig)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.Passphrase)
	if c.ProjectID != "" {
		req.Header.Set("OK-ACCESS-PROJECT", c.ProjectID)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
