package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

// ============================================================================
// Role
// ============================================================================

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{"ADMIN", "", true},
		{"", "", true},
		{"superuser", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrConversion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// User
// ============================================================================

func TestUser_IsAdmin(t *testing.T) {
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
}

func TestUser_JSONHasNoSecrets(t *testing.T) {
	data, err := json.Marshal(User{ID: uuid.New(), Email: "a@x.com", Role: RoleUser})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "user", raw["role"])
	assert.NotContains(t, raw, "password_hash")
	assert.NotContains(t, raw, "PasswordHash")
}

// ============================================================================
// AccessToken / Principal
// ============================================================================

func TestAccessToken_StringRedacts(t *testing.T) {
	tok := AccessToken("abcdefghijklmnop")
	assert.Equal(t, "abcd****", tok.String())
	assert.Equal(t, "****", AccessToken("abc").String())
}

func TestPrincipal(t *testing.T) {
	id := uuid.New()
	p := NewPrincipal("tok", User{ID: id, Role: RoleUser})

	assert.Equal(t, id, p.ID())
	assert.Equal(t, RoleUser, p.Role())
	assert.False(t, p.IsAdmin())
	assert.Equal(t, AccessToken("tok"), p.Token())

	admin := NewPrincipal("tok", User{ID: id, Role: RoleAdmin})
	assert.True(t, admin.IsAdmin())
}
