package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/storage"
)

type Storage struct {
	db *sql.DB
	*UserRepository
}

var _ storage.UserRepository = (*Storage)(nil)

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:             db,
		UserRepository: NewUserRepository(db),
	}
}

// RotateRefreshTokenTx выполняет транзакцию по ротации refresh-токена.
// Строка пользователя блокируется через SELECT ... FOR UPDATE, поэтому из двух
// конкурентных ротаций одного токена побеждает ровно одна: проигравшая после
// снятия блокировки уже не находит старый токен.
func (s *Storage) RotateRefreshTokenTx(
	ctx context.Context,
	oldToken string,
	next models.RefreshToken,
	now time.Time,
) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	userRepoTx := NewUserRepository(tx)

	user, err := userRepoTx.getUserByRefreshTokenForUpdate(ctx, oldToken)
	if err != nil {
		return nil, err
	}

	if !user.StoredRefreshToken().Active(now) {
		return nil, storage.ErrRefreshTokenExpired
	}

	if err := userRepoTx.setRefreshToken(ctx, user.ID, &next.Token, next.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store rotated token in tx: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	user.RefreshToken = next.Token
	expiresAt := next.ExpiresAt
	user.RefreshTokenExpiresAt = &expiresAt
	return user, nil
}

// RevokeRefreshToken is idempotent: an unknown token yields (nil, nil).
func (s *Storage) RevokeRefreshToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	userRepoTx := NewUserRepository(tx)

	user, err := userRepoTx.getUserByRefreshTokenForUpdate(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := userRepoTx.setRefreshToken(ctx, user.ID, nil, now); err != nil {
		return nil, fmt.Errorf("failed to clear refresh token in tx: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	user.RefreshToken = ""
	user.RefreshTokenExpiresAt = &now
	return user, nil
}

// RevokeUserRefreshToken clears the user's token by id, so it works no matter
// where the caller kept its refresh token.
func (s *Storage) RevokeUserRefreshToken(ctx context.Context, userID string, now time.Time) error {
	err := s.UserRepository.setRefreshToken(ctx, userID, nil, now)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}
	return nil
}
