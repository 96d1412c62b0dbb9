package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Stewz00/apisecure/internal/database"
	"github.com/Stewz00/apisecure/internal/interfaces"
	"github.com/Stewz00/apisecure/internal/model"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/samber/oops"
)

// Common errors that can be returned by the repository
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrTokenNotFound  = errors.New("recovery token not found or expired")
)

const userColumns = `uid, email, password_hash, role, last_login, last_ip, login_attempts,
	last_failed_login, recovery_token, recovery_expires, created_at, updated_at`

// UserRepositoryImpl implements the CredentialStore interface on PostgreSQL
type UserRepositoryImpl struct {
	db *database.DB
}

// Verify that UserRepositoryImpl implements CredentialStore interface
var _ interfaces.CredentialStore = (*UserRepositoryImpl)(nil)

// NewUserRepository creates a new CredentialStore backed by the pool
func NewUserRepository(db *database.DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

// FindByUID retrieves a user by primary key
func (r *UserRepositoryImpl) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = $1`, uid)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("uid", uid).Wrap(ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_UID_FAILED").With("uid", uid).Wrap(err)
	}
	return user, nil
}

// FindByEmail retrieves a user by email address (case-insensitive)
func (r *UserRepositoryImpl) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	return user, nil
}

// Insert creates a new user record
func (r *UserRepositoryImpl) Insert(ctx context.Context, user *model.User) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO users (uid, email, password_hash, role, last_ip, login_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.UID, user.Email, user.PasswordHash, string(user.Role), user.LastIP,
		user.LoginAttempts, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE_EMAIL").With("email", user.Email).Wrap(ErrDuplicateEmail)
		}
		return oops.Code("USER_INSERT_FAILED").With("uid", user.UID).Wrap(err)
	}
	return nil
}

// UpdateFields applies a partial update in a single statement
func (r *UserRepositoryImpl) UpdateFields(ctx context.Context, uid string, update model.UserUpdate) error {
	if update.Empty() {
		return nil
	}

	sets := make([]string, 0, 5)
	args := []any{uid}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.LoginAttempts != nil {
		add("login_attempts", *update.LoginAttempts)
	}
	if update.ClearRecovery {
		sets = append(sets, "recovery_token = NULL", "recovery_expires = NULL")
	}
	sets = append(sets, "updated_at = now()")

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE uid = $1`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE_EMAIL").With("uid", uid).Wrap(ErrDuplicateEmail)
		}
		return oops.Code("USER_UPDATE_FAILED").With("uid", uid).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("uid", uid).Wrap(ErrUserNotFound)
	}
	return nil
}

// RecordFailedLogin increments the failed login attempts counter
func (r *UserRepositoryImpl) RecordFailedLogin(ctx context.Context, uid string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users
		 SET login_attempts = login_attempts + 1,
		     last_failed_login = $2,
		     updated_at = now()
		 WHERE uid = $1`,
		uid, at)
	if err != nil {
		return oops.Code("USER_FAILED_LOGIN_FAILED").With("uid", uid).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("uid", uid).Wrap(ErrUserNotFound)
	}
	return nil
}

// RecordSuccessfulLogin updates the last login data and resets failed attempts
func (r *UserRepositoryImpl) RecordSuccessfulLogin(ctx context.Context, uid, ip string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users
		 SET login_attempts = 0,
		     last_failed_login = NULL,
		     last_login = $2,
		     last_ip = $3,
		     updated_at = now()
		 WHERE uid = $1`,
		uid, at, ip)
	if err != nil {
		return oops.Code("USER_LOGIN_UPDATE_FAILED").With("uid", uid).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("uid", uid).Wrap(ErrUserNotFound)
	}
	return nil
}

// SetRecoveryToken stores a recovery token together with its expiry
func (r *UserRepositoryImpl) SetRecoveryToken(ctx context.Context, uid, token string, expires time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users
		 SET recovery_token = $2,
		     recovery_expires = $3,
		     updated_at = now()
		 WHERE uid = $1`,
		uid, token, expires)
	if err != nil {
		return oops.Code("USER_RECOVERY_SET_FAILED").With("uid", uid).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("uid", uid).Wrap(ErrUserNotFound)
	}
	return nil
}

// ConsumeRecoveryToken swaps the password hash and clears the token in one statement,
// so a token can only ever be redeemed once.
func (r *UserRepositoryImpl) ConsumeRecoveryToken(ctx context.Context, token, passwordHash string, now time.Time) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx,
		`UPDATE users
		 SET password_hash = $2,
		     recovery_token = NULL,
		     recovery_expires = NULL,
		     updated_at = now()
		 WHERE recovery_token = $1 AND recovery_expires > $3
		 RETURNING `+userColumns,
		token, passwordHash, now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RECOVERY_TOKEN_INVALID").Wrap(ErrTokenNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_RECOVERY_CONSUME_FAILED").Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user model.User
		role string
	)
	err := row.Scan(
		&user.UID, &user.Email, &user.PasswordHash, &role,
		&user.LastLogin, &user.LastIP, &user.LoginAttempts,
		&user.LastFailedLogin, &user.RecoveryToken, &user.RecoveryExpires,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
