package service

import (
	"context"

	"github.com/utafrali/bookshelf/internal/domain"
)

// PasswordHasher hashes and checks passwords. *password.Hasher satisfies it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
	VerifyDummy(plaintext string)
}

// EventPublisher emits user lifecycle events. *event.Producer satisfies it.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserRoleChanged(ctx context.Context, user *domain.User, changedBy string) error
	PublishUserDeleted(ctx context.Context, userID, deletedBy string) error
}
