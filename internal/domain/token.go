package domain

import (
	"github.com/google/uuid"
)

// AccessToken is an opaque bearer capability. It carries no claims; its only
// meaning is the TokenStore entry it keys.
type AccessToken string

// String redacts the token so it never lands in logs by accident.
func (t AccessToken) String() string {
	if len(t) <= 4 {
		return "****"
	}
	return string(t[:4]) + "****"
}

// Principal is the authenticated caller for one request.
type Principal struct {
	token AccessToken
	user  User
}

// NewPrincipal binds a presented token to its resolved user.
func NewPrincipal(token AccessToken, user User) *Principal {
	return &Principal{token: token, user: user}
}

// ID returns the caller's identity.
func (p *Principal) ID() uuid.UUID { return p.user.ID }

// Role returns the caller's role at the time the request was authorized.
func (p *Principal) Role() Role { return p.user.Role }

// IsAdmin reports whether the caller holds the privileged role.
func (p *Principal) IsAdmin() bool { return p.user.Role == RoleAdmin }

// User returns a copy of the resolved profile.
func (p *Principal) User() User { return p.user }

// Token returns the token the caller presented.
func (p *Principal) Token() AccessToken { return p.token }
