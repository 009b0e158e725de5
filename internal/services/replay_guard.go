/**
 * @description
 * Replay Guard.
 * Remembers login messages that were already exchanged for a session so the same
 * signed message cannot be replayed inside its freshness window.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "login:consumed:"

type ReplayGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReplayGuard keeps consumed messages for ttl, which should cover the whole
// freshness window on both sides of now.
func NewReplayGuard(rdb *redis.Client, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{rdb: rdb, ttl: ttl}
}

// Consume records (address, message) and reports whether it was seen for the first time.
// A nil guard accepts everything.
func (g *ReplayGuard) Consume(ctx context.Context, address, message string) (bool, error) {
	if g == nil || g.rdb == nil {
		return true, nil
	}
	return g.rdb.SetNX(ctx, replayKey(address, message), 1, g.ttl).Result()
}

// Release forgets a consumed message so a login that failed after Consume can be retried.
func (g *ReplayGuard) Release(ctx context.Context, address, message string) error {
	if g == nil || g.rdb == nil {
		return nil
	}
	return g.rdb.Del(ctx, replayKey(address, message)).Err()
}

func replayKey(address, message string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(address) + "\n" + message))
	return replayKeyPrefix + hex.EncodeToString(sum[:])
}
