// Package auth authenticates inbound requests from their bearer token.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/bookshelf/internal/domain"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
	"github.com/utafrali/bookshelf/pkg/httputil"
	"github.com/utafrali/bookshelf/pkg/logger"
)

const bearerScheme = "bearer"

// rejectedToken is the client-facing message for every token that does not
// lead to a live account.
const rejectedToken = "invalid or expired token"

// SessionResolver maps a token to the user it was issued to.
type SessionResolver interface {
	Resolve(ctx context.Context, token domain.AccessToken) (uuid.UUID, bool, error)
}

// UserFinder looks up the current profile for an identity.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively; anything but a single non-empty
// token after it is rejected.
func BearerToken(header string) (domain.AccessToken, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return domain.AccessToken(token), true
}

// Authorizer turns a bearer token into a Principal. It authenticates only;
// per-route role checks belong to handlers.
type Authorizer struct {
	sessions SessionResolver
	users    UserFinder
	logger   *slog.Logger
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(sessions SessionResolver, users UserFinder, logger *slog.Logger) *Authorizer {
	return &Authorizer{sessions: sessions, users: users, logger: logger}
}

// Authorize resolves header to a principal. Missing, malformed, unknown and
// expired tokens are Unauthorized; a live token whose user no longer exists
// is Unauthenticated. Store failures are returned unchanged.
func (a *Authorizer) Authorize(ctx context.Context, header string) (*domain.Principal, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, apperrors.Unauthorized("missing or malformed bearer token")
	}

	userID, ok, err := a.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Unauthorized(rejectedToken)
	}

	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthenticated(rejectedToken)
	}

	return domain.NewPrincipal(token, *user), nil
}

// Middleware authenticates every request it wraps. On success the principal
// is stored in the request context and the request logger gains user_id.
func (a *Authorizer) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			principal, err := a.Authorize(ctx, r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, apperrors.ErrUnauthenticated) {
					logger.FromContext(ctx).WarnContext(ctx, "token resolved to a missing user",
						slog.String("path", r.URL.Path),
					)
				}
				if errors.Is(err, apperrors.ErrUnauthorized) || errors.Is(err, apperrors.ErrUnauthenticated) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="bookshelf"`)
				}
				httputil.WriteError(w, r, err, a.logger)
				return
			}

			userID := principal.ID().String()
			ctx = WithPrincipal(ctx, principal)
			ctx = logger.WithUserID(ctx, userID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the middleware.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*domain.Principal)
	return p, ok && p != nil
}
