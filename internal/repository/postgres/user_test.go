package postgres

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/bookshelf/internal/domain"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
	"github.com/utafrali/bookshelf/pkg/logger"
)

func newUserTestFixture(t *testing.T, opts ...Option) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewUserRepository(mock, opts...), mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:        uuid.New(),
		Name:      "Alice",
		Email:     "alice@example.com",
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func columns(extra ...string) []string {
	return append([]string{"user_id", "name", "email", "role_name", "created_at", "updated_at"}, extra...)
}

func userValues(u *domain.User, roleName string) []any {
	return []any{u.ID, u.Name, u.Email, roleName, u.CreatedAt, u.UpdatedAt}
}

// ---------------------------------------------------------------------------
// FindByID
// ---------------------------------------------------------------------------

func TestUserRepository_FindByID_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users AS u INNER JOIN roles AS r USING \\(role_id\\)\\s+WHERE u.user_id = \\$1").
		WithArgs(u.ID).
		WillReturnRows(pgxmock.NewRows(columns()).AddRow(userValues(u, "user")...))

	got, err := repo.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByID_Missing(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ WHERE u.user_id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns()))

	got, err := repo.FindByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByID_UnknownRole(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	u := sampleUser()

	mock.ExpectQuery("SELECT .+ WHERE u.user_id = \\$1").
		WithArgs(u.ID).
		WillReturnRows(pgxmock.NewRows(columns()).AddRow(userValues(u, "superuser")...))

	got, err := repo.FindByID(context.Background(), u.ID)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrConversion)
}

func TestUserRepository_FindByID_ConnectionLost(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()
	connErr := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

	mock.ExpectQuery("SELECT .+ WHERE u.user_id = \\$1").
		WithArgs(id).
		WillReturnError(connErr)

	_, err := repo.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, connErr)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
}

func TestUserRepository_FindByID_ServerError(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ WHERE u.user_id = \\$1").
		WithArgs(id).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "users" does not exist`})

	_, err := repo.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

// ---------------------------------------------------------------------------
// FindByEmail / FindCredential
// ---------------------------------------------------------------------------

func TestUserRepository_FindByEmail_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	u := sampleUser()

	mock.ExpectQuery("SELECT .+, u.password_hash\\s+FROM users .+ WHERE u.email = \\$1").
		WithArgs(u.Email).
		WillReturnRows(pgxmock.NewRows(columns("password_hash")).
			AddRow(append(userValues(u, "admin"), "$2a$12$hash")...))

	got, cred, err := repo.FindByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, u.ID, cred.UserID)
	assert.Equal(t, "$2a$12$hash", cred.PasswordHash)
}

func TestUserRepository_FindByEmail_Missing(t *testing.T) {
	repo, mock := newUserTestFixture(t)

	mock.ExpectQuery("WHERE u.email = \\$1").
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	got, cred, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, cred)
}

func TestUserRepository_FindCredential(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT password_hash FROM users WHERE user_id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow("h"))

	cred, err := repo.FindCredential(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, &domain.Credential{UserID: id, PasswordHash: "h"}, cred)
}

func TestUserRepository_FindCredential_Missing(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"password_hash"}))

	cred, err := repo.FindCredential(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, cred)
}

// ---------------------------------------------------------------------------
// FindAll
// ---------------------------------------------------------------------------

func TestUserRepository_FindAll_DropsUnconvertibleRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo, mock := newUserTestFixture(t, WithMetrics(reg))

	good1, bad, good2 := sampleUser(), sampleUser(), sampleUser()
	mock.ExpectQuery("SELECT .+ ORDER BY u.created_at DESC").
		WillReturnRows(pgxmock.NewRows(columns()).
			AddRow(userValues(good1, "admin")...).
			AddRow(userValues(bad, "legacy")...).
			AddRow(userValues(good2, "user")...))

	var buf bytes.Buffer
	ctx := logger.NewContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	users, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, good1.ID, users[0].ID)
	assert.Equal(t, good2.ID, users[1].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(repo.dropped))
	assert.Contains(t, buf.String(), "dropping unconvertible user row")
	assert.Contains(t, buf.String(), bad.ID.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindAll_Empty(t *testing.T) {
	repo, mock := newUserTestFixture(t)

	mock.ExpectQuery("ORDER BY u.created_at DESC").
		WillReturnRows(pgxmock.NewRows(columns()))

	users, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUserRepository_FindAll_QueryError(t *testing.T) {
	repo, mock := newUserTestFixture(t)

	mock.ExpectQuery("ORDER BY u.created_at DESC").
		WillReturnError(context.DeadlineExceeded)

	_, err := repo.FindAll(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func newUserPayload() *domain.NewUser {
	return &domain.NewUser{
		ID:           uuid.New(),
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$12$hash",
		Role:         domain.RoleUser,
	}
}

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	nu := newUserPayload()

	mock.ExpectExec("INSERT INTO users .+ SELECT \\$1, \\$2, \\$3, \\$4, role_id FROM roles WHERE name = \\$5").
		WithArgs(nu.ID, nu.Name, nu.Email, nu.PasswordHash, "user").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), nu))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	nu := newUserPayload()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(nu.ID, nu.Name, nu.Email, nu.PasswordHash, "user").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), nu)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
}

func TestUserRepository_Create_RoleMissing(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	nu := newUserPayload()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(nu.ID, nu.Name, nu.Email, nu.PasswordHash, "user").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	assert.ErrorIs(t, repo.Create(context.Background(), nu), apperrors.ErrPersistence)
}

// ---------------------------------------------------------------------------
// UpdateRole / UpdatePasswordHash / Delete
// ---------------------------------------------------------------------------

func TestUserRepository_UpdateRole(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE users\\s+SET role_id = \\(SELECT role_id FROM roles WHERE name = \\$2\\)").
		WithArgs(id, "admin").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.UpdateRole(context.Background(), id, domain.RoleAdmin))
}

func TestUserRepository_UpdateRole_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE users").
		WithArgs(id, "admin").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.UpdateRole(context.Background(), id, domain.RoleAdmin), apperrors.ErrNotFound)
}

func TestUserRepository_UpdatePasswordHash(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE users SET password_hash = \\$2").
		WithArgs(id, "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdatePasswordHash(context.Background(), id, "new-hash"))

	mock.ExpectExec("UPDATE users SET password_hash = \\$2").
		WithArgs(id, "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), id, "new-hash"), apperrors.ErrNotFound)
}

func TestUserRepository_Delete(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM users WHERE user_id = \\$1").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	assert.NoError(t, repo.Delete(context.Background(), id))

	mock.ExpectExec("DELETE FROM users").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	err := repo.Delete(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Timeout
// ---------------------------------------------------------------------------

func TestUserRepository_TimeoutApplied(t *testing.T) {
	repo, mock := newUserTestFixture(t, WithTimeout(20*time.Millisecond))
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ WHERE u.user_id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns())).
		WillDelayFor(time.Second)

	start := time.Now()
	_, err := repo.FindByID(context.Background(), id)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
