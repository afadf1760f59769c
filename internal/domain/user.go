package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

// Role is a coarse privilege tier. Roles are compared for equality only.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole converts a stored role name into a Role. Unknown names are a
// conversion error: the roles table holds something this build does not know.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", apperrors.Conversion("role", s, nil)
	}
}

func (r Role) String() string { return string(r) }

// User is a registered account's profile. It never carries secret material.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Credential is the stored password hash for one user.
type Credential struct {
	UserID       uuid.UUID
	PasswordHash string
}

// NewUser is the insert payload for a registration. PasswordHash is already
// hashed; the plaintext never reaches the store.
type NewUser struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}
