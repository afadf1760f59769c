package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/bookshelf/internal/domain"
	"github.com/utafrali/bookshelf/pkg/database"
	apperrors "github.com/utafrali/bookshelf/pkg/errors"
	"github.com/utafrali/bookshelf/pkg/logger"
)

const storeName = "user directory"

const userColumns = `u.user_id, u.name, u.email, r.name AS role_name, u.created_at, u.updated_at`

// Option configures a UserRepository.
type Option func(*UserRepository)

// WithTimeout bounds every statement. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *UserRepository) {
		r.timeout = d
	}
}

// WithTracer wraps statements in spans and reports slow ones.
func WithTracer(t *database.QueryTracer) Option {
	return func(r *UserRepository) {
		r.tracer = t
	}
}

// WithMetrics registers the repository's counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *UserRepository) {
		r.dropped = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "user_directory_dropped_rows_total",
			Help: "User rows skipped by listings because they failed to convert.",
		})
	}
}

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db      database.DBTX
	timeout time.Duration
	tracer  *database.QueryTracer
	dropped prometheus.Counter
}

// NewUserRepository creates a PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX, opts ...Option) *UserRepository {
	r := &UserRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	if r.dropped == nil {
		r.dropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "user_directory_dropped_rows_total"})
	}
	return r
}

// userRow mirrors the joined users/roles projection before conversion.
type userRow struct {
	id        uuid.UUID
	name      string
	email     string
	roleName  string
	createdAt time.Time
	updatedAt time.Time
}

func (row *userRow) fields() []any {
	return []any{&row.id, &row.name, &row.email, &row.roleName, &row.createdAt, &row.updatedAt}
}

func (row *userRow) toDomain() (*domain.User, error) {
	role, err := domain.ParseRole(row.roleName)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:        row.id,
		Name:      row.name,
		Email:     row.email,
		Role:      role,
		CreatedAt: row.createdAt,
		UpdatedAt: row.updatedAt,
	}, nil
}

// FindByID retrieves a user by ID. A missing user is (nil, nil).
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (u *domain.User, err error) {
	query := `
		SELECT ` + userColumns + `
		FROM users AS u INNER JOIN roles AS r USING (role_id)
		WHERE u.user_id = $1`

	ctx, done := r.begin(ctx, "FindUserByID", query)
	defer func() { done(err) }()

	var row userRow
	if err := r.db.QueryRow(ctx, query, id).Scan(row.fields()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, r.storeError("find user", err)
	}
	return row.toDomain()
}

// FindByEmail retrieves a user and their stored hash by email. A missing
// user is (nil, nil, nil).
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (u *domain.User, cred *domain.Credential, err error) {
	query := `
		SELECT ` + userColumns + `, u.password_hash
		FROM users AS u INNER JOIN roles AS r USING (role_id)
		WHERE u.email = $1`

	ctx, done := r.begin(ctx, "FindUserByEmail", query)
	defer func() { done(err) }()

	var (
		row  userRow
		hash string
	)
	if err := r.db.QueryRow(ctx, query, email).Scan(append(row.fields(), &hash)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, r.storeError("find user by email", err)
	}

	u, err = row.toDomain()
	if err != nil {
		return nil, nil, err
	}
	return u, &domain.Credential{UserID: u.ID, PasswordHash: hash}, nil
}

// FindCredential retrieves the stored hash for a user. A missing user is
// (nil, nil).
func (r *UserRepository) FindCredential(ctx context.Context, id uuid.UUID) (cred *domain.Credential, err error) {
	query := `SELECT password_hash FROM users WHERE user_id = $1`

	ctx, done := r.begin(ctx, "FindCredential", query)
	defer func() { done(err) }()

	var hash string
	if err := r.db.QueryRow(ctx, query, id).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, r.storeError("find credential", err)
	}
	return &domain.Credential{UserID: id, PasswordHash: hash}, nil
}

// FindAll lists users newest first. Rows that no longer convert into a
// domain.User are skipped, logged and counted.
func (r *UserRepository) FindAll(ctx context.Context) (users []domain.User, err error) {
	query := `
		SELECT ` + userColumns + `
		FROM users AS u INNER JOIN roles AS r USING (role_id)
		ORDER BY u.created_at DESC`

	ctx, done := r.begin(ctx, "ListUsers", query)
	defer func() { done(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.storeError("list users", err)
	}
	defer rows.Close()

	users = make([]domain.User, 0)
	for rows.Next() {
		var row userRow
		if err := rows.Scan(row.fields()...); err != nil {
			return nil, r.storeError("scan user", err)
		}
		u, convErr := row.toDomain()
		if convErr != nil {
			r.dropped.Inc()
			logger.FromContext(ctx).WarnContext(ctx, "dropping unconvertible user row",
				slog.String("user_id", row.id.String()),
				slog.String("error", convErr.Error()),
			)
			continue
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, r.storeError("iterate users", err)
	}
	return users, nil
}

// Create inserts a user, resolving the role through the roles lookup table.
func (r *UserRepository) Create(ctx context.Context, u *domain.NewUser) (err error) {
	query := `
		INSERT INTO users (user_id, name, email, password_hash, role_id)
		SELECT $1, $2, $3, $4, role_id FROM roles WHERE name = $5`

	ctx, done := r.begin(ctx, "CreateUser", query)
	defer func() { done(err) }()

	ct, err := r.db.Exec(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role))
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.DuplicateEmail(u.Email)
		}
		return r.storeError("create user", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Persistence("create user", fmt.Errorf("role %q missing from roles table", u.Role))
	}
	return nil
}

// UpdateRole changes a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) (err error) {
	query := `
		UPDATE users
		SET role_id = (SELECT role_id FROM roles WHERE name = $2), updated_at = now()
		WHERE user_id = $1`

	ctx, done := r.begin(ctx, "UpdateUserRole", query)
	defer func() { done(err) }()

	ct, err := r.db.Exec(ctx, query, id, string(role))
	if err != nil {
		return r.storeError("update user role", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id.String())
	}
	return nil
}

// UpdatePasswordHash replaces a user's stored hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (err error) {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE user_id = $1`

	ctx, done := r.begin(ctx, "UpdatePasswordHash", query)
	defer func() { done(err) }()

	ct, err := r.db.Exec(ctx, query, id, hash)
	if err != nil {
		return r.storeError("update password", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id.String())
	}
	return nil
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	query := `DELETE FROM users WHERE user_id = $1`

	ctx, done := r.begin(ctx, "DeleteUser", query)
	defer func() { done(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return r.storeError("delete user", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id.String())
	}
	return nil
}

// begin applies the statement timeout and opens a span. The returned func
// must be called exactly once with the operation's outcome.
func (r *UserRepository) begin(ctx context.Context, operation, query string) (context.Context, func(error)) {
	cancel := context.CancelFunc(func() {})
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	ctx, end := r.tracer.Trace(ctx, operation, query)
	return ctx, func(err error) {
		end(err)
		cancel()
	}
}

// storeError classifies a driver error: transport problems are
// StoreUnavailable, everything the server rejected is Persistence.
func (r *UserRepository) storeError(operation string, err error) error {
	if database.IsConnectionError(err) {
		return apperrors.StoreUnavailable(storeName, fmt.Errorf("%s: %w", operation, err))
	}
	return apperrors.Persistence(operation, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
