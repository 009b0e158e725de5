package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalchain-project/backend/internal/integrations/okx"
)

var verifierNow = time.UnixMilli(1_700_000_000_000)

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// sign produces a personal_sign signature with v in the 27/28 form wallets emit.
func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func messageAt(ts time.Time) string {
	return LoginMessage(ts)
}

type fakeCustodial struct {
	mu      sync.Mutex
	calls   int
	results []error
	address string
}

func (f *fakeCustodial) VerifyMessage(_ context.Context, address, _, _ string) (*okx.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.results) && f.results[idx] != nil {
		return nil, f.results[idx]
	}
	if f.address != "" {
		address = f.address
	}
	return &okx.VerifyResult{Address: address}, nil
}

func newTestVerifier(custodial CustodialVerifier) (*SignatureVerifier, *[]time.Duration) {
	v := NewSignatureVerifier(custodial, DefaultLoginWindow, nil)
	v.now = func() time.Time { return verifierNow }
	delays := &[]time.Duration{}
	v.retry.Sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return v, delays
}

func TestVerifyStandardWallet(t *testing.T) {
	v, _ := newTestVerifier(nil)
	w := newWallet(t)
	msg := messageAt(verifierNow.Add(-10 * time.Second))

	cred := Credential{WalletAddress: w.address, Signature: w.sign(t, msg), Message: msg, WalletType: WalletTypeStandard}
	assert.True(t, v.Verify(context.Background(), cred))

	t.Run("address case does not matter", func(t *testing.T) {
		lower := cred
		lower.WalletAddress = strings.ToLower(w.address)
		assert.True(t, v.Verify(context.Background(), lower))
	})

	t.Run("v as 0/1 is accepted", func(t *testing.T) {
		raw, err := hexutil.Decode(cred.Signature)
		require.NoError(t, err)
		raw[crypto.RecoveryIDOffset] -= 27
		alt := cred
		alt.Signature = hexutil.Encode(raw)
		assert.True(t, v.Verify(context.Background(), alt))
	})

	t.Run("other wallet is rejected", func(t *testing.T) {
		other := cred
		other.WalletAddress = newWallet(t).address
		assert.ErrorIs(t, v.Check(context.Background(), other), ErrSignatureMismatch)
	})

	t.Run("tampered message is rejected", func(t *testing.T) {
		tampered := cred
		tampered.Message = msg + " "
		assert.False(t, v.Verify(context.Background(), tampered))
	})
}

func TestVerifyFreshnessBoundary(t *testing.T) {
	v, _ := newTestVerifier(nil)
	w := newWallet(t)

	tests := []struct {
		name   string
		offset time.Duration
		want   error
	}{
		{"exactly at window", -300000 * time.Millisecond, nil},
		{"one ms past window", -300001 * time.Millisecond, ErrLoginExpired},
		{"future within window", 300000 * time.Millisecond, nil},
		{"future past window", 300001 * time.Millisecond, ErrLoginExpired},
		{"now", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := messageAt(verifierNow.Add(tt.offset))
			err := v.Check(context.Background(), Credential{
				WalletAddress: w.address,
				Signature:     w.sign(t, msg),
				Message:       msg,
				WalletType:    WalletTypeStandard,
			})
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestVerifyFormatGatesNeverCallProvider(t *testing.T) {
	custodial := &fakeCustodial{}
	v, _ := newTestVerifier(custodial)
	msg := messageAt(verifierNow)
	validSig := "0x" + strings.Repeat("ab", 65)
	validAddr := "0x" + strings.Repeat("1", 40)

	tests := []struct {
		name string
		cred Credential
		want error
	}{
		{"no timestamp", Credential{WalletAddress: validAddr, Signature: validSig, Message: "Login to VitalChain"}, ErrMissingTimestamp},
		{"stale timestamp", Credential{WalletAddress: validAddr, Signature: validSig, Message: messageAt(verifierNow.Add(-time.Hour))}, ErrLoginExpired},
		{"short address", Credential{WalletAddress: "0x1234", Signature: validSig, Message: msg}, ErrInvalidAddress},
		{"address without prefix", Credential{WalletAddress: strings.Repeat("1", 40), Signature: validSig, Message: msg}, ErrInvalidAddress},
		{"non-hex signature", Credential{WalletAddress: validAddr, Signature: "0xzz", Message: msg}, ErrInvalidSignatureFormat},
		{"odd-length signature", Credential{WalletAddress: validAddr, Signature: "0xabc", Message: msg}, ErrInvalidSignatureFormat},
		{"empty signature", Credential{WalletAddress: validAddr, Signature: "", Message: msg}, ErrInvalidSignatureFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cred.WalletType = WalletTypeCustodial
			assert.ErrorIs(t, v.Check(context.Background(), tt.cred), tt.want)
		})
	}
	assert.Equal(t, 0, custodial.calls)
}

func TestVerifyStandardRejectsWrongLengthSignature(t *testing.T) {
	v, _ := newTestVerifier(nil)
	msg := messageAt(verifierNow)
	err := v.Check(context.Background(), Credential{
		WalletAddress: "0x" + strings.Repeat("1", 40),
		Signature:     "0x" + strings.Repeat("ab", 64),
		Message:       msg,
		WalletType:    WalletTypeStandard,
	})
	assert.ErrorIs(t, err, ErrInvalidSignatureFormat)
}

func TestVerifyCustodialRetriesTransientFailures(t *testing.T) {
	transient := fmt.Errorf("%w: status 503", okx.ErrRetryable)
	custodial := &fakeCustodial{results: []error{transient, transient, nil}}
	v, delays := newTestVerifier(custodial)

	addr := "0x" + strings.Repeat("a", 40)
	msg := messageAt(verifierNow)
	ok := v.Verify(context.Background(), Credential{
		WalletAddress: addr,
		Signature:     "0x" + strings.Repeat("ab", 65),
		Message:       msg,
		WalletType:    WalletTypeCustodial,
	})

	assert.True(t, ok)
	assert.Equal(t, 3, custodial.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestVerifyCustodialOutcomes(t *testing.T) {
	addr := "0x" + strings.Repeat("a", 40)
	transient := fmt.Errorf("%w: status 500", okx.ErrRetryable)

	tests := []struct {
		name      string
		results   []error
		address   string
		want      error
		wantCalls int
	}{
		{"rejection is not retried", []error{fmt.Errorf("%w: code 50001", okx.ErrRejected)}, "", ErrSignatureMismatch, 1},
		{"bad credentials are not retried", []error{&okx.StatusError{StatusCode: http.StatusUnauthorized}}, "", ErrVerifierUnavailable, 1},
		{"exhausted retries", []error{transient, transient, transient}, "", ErrVerifierUnavailable, 3},
		{"provider reports other signer", nil, "0x" + strings.Repeat("b", 40), ErrSignatureMismatch, 1},
		{"provider address case ignored", nil, strings.ToUpper(addr[:2]) + strings.ToUpper(addr[2:]), nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			custodial := &fakeCustodial{results: tt.results, address: tt.address}
			v, _ := newTestVerifier(custodial)
			err := v.Check(context.Background(), Credential{
				WalletAddress: addr,
				Signature:     "0x" + strings.Repeat("ab", 65),
				Message:       messageAt(verifierNow),
				WalletType:    WalletTypeCustodial,
			})
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.wantCalls, custodial.calls)
		})
	}
}

func TestVerifyCustodialWithoutProvider(t *testing.T) {
	v, _ := newTestVerifier(nil)
	err := v.Check(context.Background(), Credential{
		WalletAddress: "0x" + strings.Repeat("a", 40),
		Signature:     "0x" + strings.Repeat("ab", 65),
		Message:       messageAt(verifierNow),
		WalletType:    WalletTypeCustodial,
	})
	assert.ErrorIs(t, err, ErrVerifierUnavailable)
}

func TestVerifyRecordsOutcomeMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	v, _ := newTestVerifier(nil)
	v.metrics = metrics
	w := newWallet(t)
	msg := messageAt(verifierNow)

	v.Verify(context.Background(), Credential{WalletAddress: w.address, Signature: w.sign(t, msg), Message: msg, WalletType: WalletTypeStandard})
	v.Verify(context.Background(), Credential{WalletAddress: "nope", Signature: "0x00", Message: msg, WalletType: WalletTypeStandard})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.signatureChecks.WithLabelValues("standard", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.signatureChecks.WithLabelValues("standard", "malformed")))
}

func TestParseWalletType(t *testing.T) {
	tests := map[string]WalletType{
		"":          WalletTypeStandard,
		"standard":  WalletTypeStandard,
		"MetaMask":  WalletTypeStandard,
		"custodial": WalletTypeCustodial,
		" okx ":     WalletTypeCustodial,
	}
	for in, want := range tests {
		got, err := ParseWalletType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseWalletType("ledger")
	assert.True(t, errors.Is(err, ErrUnsupportedWalletType))
}
