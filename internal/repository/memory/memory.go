// Package memory provides in-process implementations of the repository
// interfaces for tests and local wiring.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/bookshelf/internal/domain"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

type userRecord struct {
	user domain.User
	hash string
}

// UserRepository is a map-backed repository.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*userRecord
	now   func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

// NewUserRepository returns an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[uuid.UUID]*userRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *UserRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	rec, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u := rec.user
	return &u, nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, *domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, nil, r.Err
	}
	for _, rec := range r.users {
		if rec.user.Email == email {
			u := rec.user
			return &u, &domain.Credential{UserID: u.ID, PasswordHash: rec.hash}, nil
		}
	}
	return nil, nil, nil
}

func (r *UserRepository) FindCredential(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	rec, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &domain.Credential{UserID: id, PasswordHash: rec.hash}, nil
}

func (r *UserRepository) FindAll(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	users := make([]domain.User, 0, len(r.users))
	for _, rec := range r.users {
		users = append(users, rec.user)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *UserRepository) Create(_ context.Context, nu *domain.NewUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, rec := range r.users {
		if rec.user.Email == nu.Email {
			return apperrors.DuplicateEmail(nu.Email)
		}
	}
	now := r.now()
	r.users[nu.ID] = &userRecord{
		user: domain.User{
			ID:        nu.ID,
			Name:      nu.Name,
			Email:     nu.Email,
			Role:      nu.Role,
			CreatedAt: now,
			UpdatedAt: now,
		},
		hash: nu.PasswordHash,
	}
	return nil
}

func (r *UserRepository) UpdateRole(_ context.Context, id uuid.UUID, role domain.Role) error {
	return r.update(id, func(rec *userRecord) { rec.user.Role = role })
}

func (r *UserRepository) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	return r.update(id, func(rec *userRecord) { rec.hash = hash })
}

func (r *UserRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.users[id]; !ok {
		return apperrors.NotFound("user", id.String())
	}
	delete(r.users, id)
	return nil
}

func (r *UserRepository) update(id uuid.UUID, fn func(*userRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	rec, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user", id.String())
	}
	fn(rec)
	rec.user.UpdatedAt = r.now()
	return nil
}

type tokenEntry struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// TokenStore is a map-backed repository.TokenStore with lazy expiry.
type TokenStore struct {
	mu      sync.Mutex
	entries map[domain.AccessToken]tokenEntry
	now     func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

// NewTokenStore returns an empty store on the wall clock.
func NewTokenStore() *TokenStore {
	return NewTokenStoreWithClock(time.Now)
}

// NewTokenStoreWithClock returns an empty store that reads time from now.
func NewTokenStoreWithClock(now func() time.Time) *TokenStore {
	return &TokenStore{entries: make(map[domain.AccessToken]tokenEntry), now: now}
}

func (s *TokenStore) Put(_ context.Context, token domain.AccessToken, userID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.InvalidInput("token ttl must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.entries[token] = tokenEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *TokenStore) Get(_ context.Context, token domain.AccessToken) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return uuid.Nil, false, s.Err
	}
	e, ok := s.entries[token]
	if !ok {
		return uuid.Nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, token)
		return uuid.Nil, false, nil
	}
	return e.userID, true, nil
}

func (s *TokenStore) Delete(_ context.Context, token domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.entries, token)
	return nil
}

// Len returns the number of live entries.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, e := range s.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
