package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/rryowa/authservice/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type UserRepository interface {
	GetUserByEmail(ctx context.Context, normalizedEmail string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user models.User) error

	// SaveLogin stores the user's current refresh token, replacing any previous
	// one, and records the last-login metadata.
	SaveLogin(ctx context.Context, userID string, token models.RefreshToken, meta models.ClientMetadata, now time.Time) error

	// RotateRefreshTokenTx finds the user owning oldToken and replaces it with next
	// as a single atomic unit. It returns ErrRefreshTokenNotFound when no user owns
	// oldToken and ErrRefreshTokenExpired when the stored expiry is not after now.
	RotateRefreshTokenTx(ctx context.Context, oldToken string, next models.RefreshToken, now time.Time) (*models.User, error)

	// RevokeRefreshToken clears the token and returns the owner, or nil when the
	// token is unknown.
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) (*models.User, error)

	// RevokeUserRefreshToken clears whatever refresh token userID holds. It
	// succeeds when the user has no token or does not exist.
	RevokeUserRefreshToken(ctx context.Context, userID string, now time.Time) error
}

// IsTransient reports whether err comes from a timeout, a cancelled deadline or
// a broken connection rather than from the data itself.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
