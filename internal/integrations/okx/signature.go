package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// timestampLayout is the ISO-8601 millisecond UTC format OKX expects in OK-ACCESS-TIMESTAMP.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// buildAccessSignature computes the OK-ACCESS-SIGN header.
// signature = base64( HMAC_SHA256( secret, timestamp + METHOD + requestPath + body ) )
func buildAccessSignature(secret, timestamp, method, requestPath string, body []byte) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("okx secret key missing")
	}

	payload := timestamp + strings.ToUpper(method) + requestPath
	if len(body) > 0 {
		payload += string(body)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte(payload)); err != nil {
		return "", fmt.Errorf("failed to compute signature: %w", err)
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
