package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/storage"
)

// dummyPassword is hashed once so that unknown emails cost one full hash
// comparison, the same as a wrong password.
const dummyPassword = "dummy-password-for-timing-equalization"

type CredentialVerifier struct {
	users     storage.UserRepository
	hasher    PasswordHasher
	dummyHash string
	log       *zap.SugaredLogger
}

func NewCredentialVerifier(users storage.UserRepository, hasher PasswordHasher, log *zap.SugaredLogger) (*CredentialVerifier, error) {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	return &CredentialVerifier{
		users:     users,
		hasher:    hasher,
		dummyHash: dummyHash,
		log:       log,
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Verify returns ErrInvalidCredentials for both an unknown email and a wrong
// password. Store failures are reported as TemporaryFailure or Unexpected.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			v.hasher.Verify(v.dummyHash, password)
			v.log.Debugw("login rejected", "cause", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, classify("lookup user", err)
	}

	if !v.hasher.Verify(user.PasswordHash, password) {
		v.log.Debugw("login rejected", "cause", "password mismatch", "userID", user.ID)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
