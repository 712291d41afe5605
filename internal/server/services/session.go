// Package services contains server-side business logic. This file implements
// SessionService, which owns the account and session lifecycle: registration,
// email verification, login, refresh-token rotation, logout and password and
// email changes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/cryptox"
	"github.com/dmitrijs2005/erpkeeper/internal/logging"
	"github.com/dmitrijs2005/erpkeeper/internal/server/auth"
	"github.com/dmitrijs2005/erpkeeper/internal/server/codes"
	"github.com/dmitrijs2005/erpkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/dmitrijs2005/erpkeeper/internal/server/notify"
	"github.com/dmitrijs2005/erpkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/erpkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/erpkeeper/internal/server/storage"
	"github.com/go-playground/validator/v10"
)

// NotificationWarning is returned in Result.Warning when the state change
// committed but the follow-up message could not be delivered.
const NotificationWarning = "notification could not be sent"

// Result is returned by operations that change an account.
type Result struct {
	Account *models.Account
	Warning string
}

// LoginResult is returned by Login.
type LoginResult struct {
	Account models.Account
	Tokens  auth.Pair
}

// Dependencies are the collaborators of SessionService. Limiter and Metrics
// may be nil.
type Dependencies struct {
	Accounts accounts.Repository
	Tokens   *auth.TokenService
	Codes    *codes.Generator
	Assets   storage.Store
	Notifier notify.Gateway
	Limiter  ratelimit.AttemptLimiter
	Metrics  *metrics.Recorder
	Logger   logging.Logger
}

// Options tune SessionService behavior.
type Options struct {
	BcryptCost int
	// ConcealAccountExistence makes RequestPasswordReset succeed silently
	// for unknown emails.
	ConcealAccountExistence bool
}

// SessionService implements the account lifecycle: registration, login,
// token refresh, profile and password management.
type SessionService struct {
	accounts accounts.Repository
	tokens   *auth.TokenService
	codes    *codes.Generator
	assets   storage.Store
	notifier notify.Gateway
	limiter  ratelimit.AttemptLimiter
	metrics  *metrics.Recorder
	log      logging.Logger
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

// NewSessionService fills unset optional dependencies with no-op defaults.
func NewSessionService(deps Dependencies, opts Options) *SessionService {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop{}
	}
	return &SessionService{
		accounts: deps.Accounts,
		tokens:   deps.Tokens,
		codes:    deps.Codes,
		assets:   deps.Assets,
		notifier: deps.Notifier,
		limiter:  limiter,
		metrics:  deps.Metrics,
		log:      log.With("module", "session_service"),
		validate: newValidator(),
		opts:     opts,
		now:      time.Now,
	}
}

// finish records the operation and turns unexpected errors into
// common.ErrInternal after logging them.
func (s *SessionService) finish(ctx context.Context, op string, started time.Time, errp *error) {
	err := *errp
	if err != nil && !common.Known(err) {
		s.log.Error(ctx, "operation failed", "op", op, "error", err)
		err = common.ErrInternal
		*errp = err
	}
	s.metrics.Observe(op, err, time.Since(started))
}

// send dispatches a notification after the write has committed. Failures are
// logged and reported back as a warning string.
func (s *SessionService) send(ctx context.Context, to string, kind notify.Kind, payload notify.Payload) string {
	err := s.notifier.Send(ctx, to, kind, payload)
	s.metrics.Notification(string(kind), err)
	if err != nil {
		s.log.Warn(ctx, "notification failed", "kind", string(kind), "error", err)
		return NotificationWarning
	}
	return ""
}

// allow consults the attempt limiter. An unreachable limiter does not block
// the caller.
func (s *SessionService) allow(ctx context.Context, scope ratelimit.Scope, key string) error {
	if key == "" {
		return nil
	}
	err := s.limiter.Allow(ctx, scope, key)
	if errors.Is(err, ratelimit.ErrUnavailable) {
		s.log.Warn(ctx, "attempt limiter unavailable", "scope", string(scope), "error", err)
		return nil
	}
	return err
}

func (s *SessionService) resetAttempts(ctx context.Context, scope ratelimit.Scope, key string) {
	if key == "" {
		return
	}
	if err := s.limiter.Reset(ctx, scope, key); err != nil {
		s.log.Warn(ctx, "attempt limiter reset failed", "scope", string(scope), "error", err)
	}
}

func (s *SessionService) hash(password string) (string, error) {
	h, err := cryptox.HashPassword(password, s.opts.BcryptCost)
	if errors.Is(err, cryptox.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return h, err
}

func (s *SessionService) issueCode(ctx context.Context, purpose codes.Purpose) (codes.Code, error) {
	return s.codes.IssueUnique(ctx, purpose, s.accounts.CodeInUse)
}

func public(a *models.Account) *models.Account {
	p := a.Public()
	return &p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// notFoundAs replaces common.ErrNotFound with target and passes other
// errors through.
func notFoundAs(err, target error) error {
	if errors.Is(err, common.ErrNotFound) {
		return target
	}
	return err
}

// lookup turns common.ErrNotFound into a nil account.
func lookup(a *models.Account, err error) (*models.Account, error) {
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return a, err
}
