/**
 * @description
 * Signature Verification Service.
 * Verifies that a signed login message was produced by the claimed wallet.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum: personal-sign hashing and signer recovery
 * - backend/internal/integrations/okx: custodial wallet verification
 * - backend/internal/retry
 *
 * @notes
 * - Gates run in order and fail fast: timestamp freshness, address/signature format,
 *   then cryptographic (standard) or provider (custodial) verification.
 * - Format failures never reach the network.
 * - Check never panics; Verify collapses every failure to false.
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vitalchain-project/backend/internal/integrations/okx"
	"github.com/vitalchain-project/backend/internal/logger"
	"github.com/vitalchain-project/backend/internal/retry"
)

const DefaultLoginWindow = 5 * time.Minute

type WalletType string

const (
	WalletTypeStandard  WalletType = "standard"
	WalletTypeCustodial WalletType = "custodial"
)

var (
	ErrUnsupportedWalletType  = errors.New("unsupported wallet type")
	ErrMissingTimestamp       = errors.New("login message has no timestamp")
	ErrLoginExpired           = errors.New("login request expired")
	ErrInvalidAddress         = errors.New("invalid wallet address")
	ErrInvalidSignatureFormat = errors.New("invalid signature format")
	ErrSignatureMismatch      = errors.New("signature does not match wallet address")
	ErrVerifierUnavailable    = errors.New("signature verifier unavailable")
)

var (
	timestampPattern = regexp.MustCompile(`(?i)timestamp:\s*(\d{1,19})`)
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x(?:[0-9a-fA-F]{2})+$`)
)

// ParseWalletType maps client-supplied wallet names onto the two verification families.
func ParseWalletType(s string) (WalletType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "metamask":
		return WalletTypeStandard, nil
	case "custodial", "okx":
		return WalletTypeCustodial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedWalletType, s)
	}
}

// Credential is one login attempt.
type Credential struct {
	WalletAddress string
	Signature     string
	Message       string
	WalletType    WalletType
}

// CustodialVerifier asks a custodial wallet provider whether a signature is valid.
// Implementations perform a single attempt; the verifier owns retrying.
type CustodialVerifier interface {
	VerifyMessage(ctx context.Context, address, message, signature string) (*okx.VerifyResult, error)
}

type SignatureVerifier struct {
	custodial CustodialVerifier
	window    time.Duration
	retry     retry.Policy
	metrics   *Metrics
	now       func() time.Time
}

func NewSignatureVerifier(custodial CustodialVerifier, window time.Duration, metrics *Metrics) *SignatureVerifier {
	if window <= 0 {
		window = DefaultLoginWindow
	}
	policy := retry.DefaultPolicy()
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn("Custodial signature check failed (attempt %d/%d), retrying: %v", attempt, policy.MaxAttempts, err)
	}
	return &SignatureVerifier{
		custodial: custodial,
		window:    window,
		retry:     policy,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Verify reports whether cred is a fresh, valid signature by cred.WalletAddress.
func (v *SignatureVerifier) Verify(ctx context.Context, cred Credential) bool {
	return v.Check(ctx, cred) == nil
}

// Check is Verify with the reason for rejection.
func (v *SignatureVerifier) Check(ctx context.Context, cred Credential) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Signature verification panicked: %v", r)
			err = fmt.Errorf("%w: malformed input", ErrSignatureMismatch)
		}
		v.metrics.observeSignatureCheck(cred.WalletType, err)
	}()

	ts, err := extractTimestamp(cred.Message)
	if err != nil {
		return err
	}
	if age := v.now().Sub(ts); age > v.window || age < -v.window {
		return ErrLoginExpired
	}

	if !addressPattern.MatchString(cred.WalletAddress) {
		return ErrInvalidAddress
	}
	if !signaturePattern.MatchString(cred.Signature) {
		return ErrInvalidSignatureFormat
	}

	switch cred.WalletType {
	case WalletTypeStandard:
		return verifyPersonalSign(cred)
	case WalletTypeCustodial:
		return v.verifyCustodial(ctx, cred)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedWalletType, cred.WalletType)
	}
}

// extractTimestamp reads the millisecond Unix timestamp embedded as "Timestamp: <ms>".
func extractTimestamp(message string) (time.Time, error) {
	m := timestampPattern.FindStringSubmatch(message)
	if m == nil {
		return time.Time{}, ErrMissingTimestamp
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, ErrMissingTimestamp
	}
	return time.UnixMilli(ms), nil
}

// verifyPersonalSign recovers the EIP-191 signer and compares it case-insensitively.
func verifyPersonalSign(cred Credential) error {
	sig, err := hexutil.Decode(cred.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrInvalidSignatureFormat
	}
	// Wallets emit v as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(cred.Message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(cred.WalletAddress) {
		return ErrSignatureMismatch
	}
	return nil
}

func (v *SignatureVerifier) verifyCustodial(ctx context.Context, cred Credential) error {
	if v.custodial == nil {
		return fmt.Errorf("%w: custodial provider not configured", ErrVerifierUnavailable)
	}

	result, err := retry.Do(ctx, v.retry, func(ctx context.Context) (*okx.VerifyResult, error) {
		res, err := v.custodial.VerifyMessage(ctx, cred.WalletAddress, cred.Message, cred.Signature)
		if err != nil && !okx.IsRetryable(err) {
			return nil, retry.Permanent(err)
		}
		return res, err
	})
	if err != nil {
		if errors.Is(err, okx.ErrRejected) {
			return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
		}
		logger.Error("Custodial signature verification failed for %s: %v", cred.WalletAddress, err)
		return fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	if !strings.EqualFold(strings.TrimSpace(result.Address), cred.WalletAddress) {
		return ErrSignatureMismatch
	}
	return nil
}
