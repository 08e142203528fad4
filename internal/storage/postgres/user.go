package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/storage"
)

const uniqueViolation = "23505"

const userColumns = `id, email, normalized_email, username, password_hash, roles,
	refresh_token, refresh_token_expires_at, last_login_at, last_login_ip, last_login_user_agent, created_at`

type UserRepository struct {
	db storage.DBTX
}

func NewUserRepository(db storage.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user models.User) error {
	query := `INSERT INTO users (id, email, normalized_email, username, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.NormalizedEmail,
		user.Username,
		user.PasswordHash,
		pq.Array(user.Roles),
		user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return storage.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, normalizedEmail string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE normalized_email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, normalizedEmail))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// getUserByRefreshTokenForUpdate locks the owning row until the surrounding
// transaction ends. Must be called on a *sql.Tx.
func (r *UserRepository) getUserByRefreshTokenForUpdate(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE refresh_token = $1 FOR UPDATE`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("get user by refresh token: %w", err)
	}
	return user, nil
}

func (r *UserRepository) setRefreshToken(ctx context.Context, userID string, token *string, expiresAt time.Time) error {
	query := `UPDATE users SET refresh_token = $2, refresh_token_expires_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SaveLogin(
	ctx context.Context,
	userID string,
	token models.RefreshToken,
	meta models.ClientMetadata,
	now time.Time,
) error {
	query := `UPDATE users SET refresh_token = $2, refresh_token_expires_at = $3,
		last_login_at = $4, last_login_ip = $5, last_login_user_agent = $6 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, token.Token, token.ExpiresAt, now, meta.IPAddress, meta.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to save login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user             models.User
		refreshToken     sql.NullString
		refreshExpiresAt sql.NullTime
		lastLoginAt      sql.NullTime
		lastLoginIP      sql.NullString
		lastLoginUA      sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.NormalizedEmail,
		&user.Username,
		&user.PasswordHash,
		pq.Array(&user.Roles),
		&refreshToken,
		&refreshExpiresAt,
		&lastLoginAt,
		&lastLoginIP,
		&lastLoginUA,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.RefreshToken = refreshToken.String
	if refreshExpiresAt.Valid {
		t := refreshExpiresAt.Time
		user.RefreshTokenExpiresAt = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}
	user.LastLoginIP = lastLoginIP.String
	user.LastLoginUserAgent = lastLoginUA.String
	return &user, nil
}
