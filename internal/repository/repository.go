package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/bookshelf/internal/domain"
)

// UserRepository persists user profiles and their password hashes.
// Lookups return nil values, not errors, when nothing matches.
type UserRepository interface {
	// FindByID returns the user with id, or nil.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// FindByEmail returns the user and stored credential for email, or nils.
	FindByEmail(ctx context.Context, email string) (*domain.User, *domain.Credential, error)

	// FindCredential returns the stored hash for id, or nil.
	FindCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, error)

	// FindAll returns every user whose row converts cleanly, newest first.
	FindAll(ctx context.Context) ([]domain.User, error)

	// Create inserts a user. A taken email yields an AlreadyExists error.
	Create(ctx context.Context, u *domain.NewUser) error

	// UpdateRole changes id's role. Missing users yield a NotFound error.
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error

	// UpdatePasswordHash replaces id's stored hash.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error

	// Delete removes id. Missing users yield a NotFound error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// TokenStore maps access tokens to user IDs with a per-entry expiry.
type TokenStore interface {
	// Put stores token -> userID, replacing any previous entry, expiring after ttl.
	Put(ctx context.Context, token domain.AccessToken, userID uuid.UUID, ttl time.Duration) error

	// Get returns the user for token; ok is false when absent or expired.
	Get(ctx context.Context, token domain.AccessToken) (userID uuid.UUID, ok bool, err error)

	// Delete removes token. Absent tokens are not an error.
	Delete(ctx context.Context, token domain.AccessToken) error
}
