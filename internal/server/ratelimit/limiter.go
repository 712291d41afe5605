// Package ratelimit caps how often a caller may try a guessable secret
// (a one-time code or a password) within a fixed window, using Redis
// counters shared by every server instance.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/redis/go-redis/v9"
)

// Scope namespaces counters per operation.
type Scope string

const (
	ScopeLogin         Scope = "login"
	ScopeVerifyEmail   Scope = "verify_email"
	ScopeConfirmEmail  Scope = "confirm_email"
	ScopeResetPassword Scope = "reset_password"
)

const keyPrefix = "erpkeeper:attempts:"

// ErrUnavailable wraps Redis failures. Callers decide whether to fail open.
var ErrUnavailable = errors.New("rate limiter unavailable")

// AttemptLimiter is what the session service needs from a limiter.
type AttemptLimiter interface {
	// Allow records an attempt and returns common.ErrRateLimited once the
	// budget for (scope, key) in the current window is spent.
	Allow(ctx context.Context, scope Scope, key string) error
	// Reset forgets the attempts for (scope, key), e.g. after a good login.
	Reset(ctx context.Context, scope Scope, key string) error
}

// Limiter is a fixed-window counter: the first hit in a window creates the
// key with its TTL, later hits only increment.
type Limiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

func New(client redis.UniversalClient, maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{redis: client, maxAttempts: maxAttempts, window: window}
}

func key(scope Scope, k string) string {
	return keyPrefix + string(scope) + ":" + strings.ToLower(k)
}

func (l *Limiter) Allow(ctx context.Context, scope Scope, k string) error {
	count, err := l.incrementWithTTL(ctx, key(scope, k))
	if err != nil {
		return err
	}
	if count > int64(l.maxAttempts) {
		return common.ErrRateLimited
	}
	return nil
}

func (l *Limiter) Reset(ctx context.Context, scope Scope, k string) error {
	if err := l.redis.Del(ctx, key(scope, k)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// attempts returns the counter for (scope, key); missing keys count as zero.
func (l *Limiter) attempts(ctx context.Context, scope Scope, k string) (int, error) {
	n, err := l.redis.Get(ctx, key(scope, k)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// incrementWithTTL creates the counter with its TTL and increments it in
// one MULTI/EXEC, so a counter never exists without an expiry.
func (l *Limiter) incrementWithTTL(ctx context.Context, k string) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return incr.Val(), nil
}

// Nop never limits. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Allow(context.Context, Scope, string) error { return nil }
func (Nop) Reset(context.Context, Scope, string) error { return nil }

var (
	_ AttemptLimiter = (*Limiter)(nil)
	_ AttemptLimiter = Nop{}
)
