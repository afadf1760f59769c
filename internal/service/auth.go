package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/bookshelf/internal/domain"
	"github.com/utafrali/bookshelf/internal/repository"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

// tokenBytes is the entropy of an access token before encoding.
const tokenBytes = 32

// Login outcomes recorded in auth_login_attempts_total.
const (
	outcomeSuccess      = "success"
	outcomeUnknownEmail = "unknown_email"
	outcomeBadPassword  = "bad_password"
	outcomeError        = "error"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken domain.AccessToken `json:"access_token"`
	UserID      uuid.UUID          `json:"user_id"`
}

// AuthService issues, resolves and revokes access tokens.
type AuthService struct {
	users    repository.UserRepository
	tokens   repository.TokenStore
	hasher   PasswordHasher
	ttl      time.Duration
	logger   *slog.Logger
	attempts *prometheus.CounterVec
	newToken func() (domain.AccessToken, error)
}

// NewAuthService creates an auth service. Every token it issues lives for
// exactly ttl. reg may be nil, in which case login metrics are not exported.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenStore,
	hasher PasswordHasher,
	ttl time.Duration,
	reg prometheus.Registerer,
	logger *slog.Logger,
) *AuthService {
	opts := prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Login attempts by outcome.",
	}
	var attempts *prometheus.CounterVec
	if reg != nil {
		attempts = promauto.With(reg).NewCounterVec(opts, []string{"outcome"})
	} else {
		attempts = prometheus.NewCounterVec(opts, []string{"outcome"})
	}

	return &AuthService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		ttl:      ttl,
		logger:   logger,
		attempts: attempts,
		newToken: generateToken,
	}
}

// TTL returns the lifetime given to every issued token.
func (s *AuthService) TTL() time.Duration { return s.ttl }

// Login checks email and password and issues a fresh token. Unknown emails
// and wrong passwords fail identically; store failures are returned as they
// are so operators can tell them apart.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, cred, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.attempts.WithLabelValues(outcomeError).Inc()
		return nil, err
	}
	if user == nil || cred == nil {
		s.hasher.VerifyDummy(password)
		s.attempts.WithLabelValues(outcomeUnknownEmail).Inc()
		s.logger.InfoContext(ctx, "login failed", slog.String("reason", outcomeUnknownEmail))
		return nil, apperrors.AuthenticationFailed()
	}

	ok, err := s.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		s.attempts.WithLabelValues(outcomeError).Inc()
		s.logger.ErrorContext(ctx, "stored password hash is unusable",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.AuthenticationFailed()
	}
	if !ok {
		s.attempts.WithLabelValues(outcomeBadPassword).Inc()
		s.logger.InfoContext(ctx, "login failed",
			slog.String("reason", outcomeBadPassword),
			slog.String("user_id", user.ID.String()),
		)
		return nil, apperrors.AuthenticationFailed()
	}

	token, err := s.newToken()
	if err != nil {
		s.attempts.WithLabelValues(outcomeError).Inc()
		return nil, apperrors.Internal(err)
	}
	if err := s.tokens.Put(ctx, token, user.ID, s.ttl); err != nil {
		s.attempts.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	s.attempts.WithLabelValues(outcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID.String()),
	)

	return &LoginResult{AccessToken: token, UserID: user.ID}, nil
}

// Logout revokes token. Revoking an unknown or expired token succeeds.
func (s *AuthService) Logout(ctx context.Context, token domain.AccessToken) error {
	return s.tokens.Delete(ctx, token)
}

// Resolve returns the user token was issued to. It does not extend the
// token's lifetime.
func (s *AuthService) Resolve(ctx context.Context, token domain.AccessToken) (uuid.UUID, bool, error) {
	return s.tokens.Get(ctx, token)
}

// generateToken returns 32 random bytes as unpadded base64url (43 chars).
func generateToken() (domain.AccessToken, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return domain.AccessToken(base64.RawURLEncoding.EncodeToString(b)), nil
}
