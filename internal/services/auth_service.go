/**
 * @description
 * Auth Service.
 * Exchanges a signed wallet login message for a session token:
 * verify signature -> consume message -> find or create user -> issue token.
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitalchain-project/backend/internal/logger"
)

const loginMessageTitle = "Login to VitalChain"

var (
	ErrMissingLoginFields = errors.New("walletAddress, signature and message are required")
	ErrMessageReused      = errors.New("login message already used")
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
	WalletType    string `json:"walletType"`
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	WalletAddress string    `json:"walletAddress"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	NewUser       bool      `json:"newUser"`
}

type AuthService struct {
	verifier *SignatureVerifier
	sessions *SessionIssuer
	users    UserStore
	replay   *ReplayGuard
}

func NewAuthService(verifier *SignatureVerifier, sessions *SessionIssuer, users UserStore, replay *ReplayGuard) *AuthService {
	return &AuthService{
		verifier: verifier,
		sessions: sessions,
		users:    users,
		replay:   replay,
	}
}

// Login verifies req and issues a session token. Errors wrap the package sentinels
// so callers can map them to status codes.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	req.Signature = strings.TrimSpace(req.Signature)
	if req.WalletAddress == "" || req.Signature == "" || strings.TrimSpace(req.Message) == "" {
		return nil, ErrMissingLoginFields
	}

	walletType, err := ParseWalletType(req.WalletType)
	if err != nil {
		return nil, err
	}

	cred := Credential{
		WalletAddress: req.WalletAddress,
		Signature:     req.Signature,
		Message:       req.Message,
		WalletType:    walletType,
	}
	if err := s.verifier.Check(ctx, cred); err != nil {
		return nil, err
	}

	fresh, err := s.replay.Consume(ctx, req.WalletAddress, req.Message)
	if err != nil {
		// Fail open: the timestamp window still bounds replay.
		logger.Error("Replay guard unavailable, continuing login for %s: %v", req.WalletAddress, err)
	} else if !fresh {
		return nil, ErrMessageReused
	}

	user, created, err := s.users.FindOrCreate(ctx, req.WalletAddress)
	if err != nil {
		s.releaseMessage(ctx, req)
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if created {
		logger.Info("New user registered: %s (%s wallet)", user.WalletAddress, walletType)
	}

	token, expiresAt, err := s.sessions.Issue(user.WalletAddress)
	if err != nil {
		s.releaseMessage(ctx, req)
		return nil, err
	}

	return &LoginResult{
		WalletAddress: user.WalletAddress,
		Token:         token,
		ExpiresAt:     expiresAt,
		NewUser:       created,
	}, nil
}

// releaseMessage hands a consumed message back when no session was issued for it.
func (s *AuthService) releaseMessage(ctx context.Context, req LoginRequest) {
	if err := s.replay.Release(ctx, req.WalletAddress, req.Message); err != nil {
		logger.Warn("Failed to release login message for %s: %v", req.WalletAddress, err)
	}
}

// LoginMessage builds the message clients are expected to sign.
func LoginMessage(now time.Time) string {
	return fmt.Sprintf("%s\n\nTimestamp: %d", loginMessageTitle, now.UnixMilli())
}
