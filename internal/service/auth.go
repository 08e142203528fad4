package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/storage"
)

const (
	DefaultRole       = "User"
	minPasswordLength = 6
	emailTakenMessage = "email is already registered"
)

// AuthResult is returned by every operation that ends with a signed-in user.
type AuthResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

type AuthService struct {
	users        storage.UserRepository
	verifier     *CredentialVerifier
	tokens       *TokenService
	hasher       PasswordHasher
	notifier     Notifier
	log          *zap.SugaredLogger
	storeTimeout time.Duration
	now          func() time.Time
}

type AuthServiceOption func(*AuthService)

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) AuthServiceOption {
	return func(s *AuthService) { s.now = now }
}

// WithStoreTimeout bounds every call to the user store.
func WithStoreTimeout(d time.Duration) AuthServiceOption {
	return func(s *AuthService) { s.storeTimeout = d }
}

func NewAuthService(
	users storage.UserRepository,
	verifier *CredentialVerifier,
	tokens *TokenService,
	hasher PasswordHasher,
	notifier Notifier,
	log *zap.SugaredLogger,
	opts ...AuthServiceOption,
) *AuthService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &AuthService{
		users:    users,
		verifier: verifier,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Now() time.Time {
	return s.now()
}

func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

func (s *AuthService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Login verifies credentials, mints a token pair and stores the refresh token,
// replacing whatever token the user had before.
func (s *AuthService) Login(ctx context.Context, email, password string, meta models.ClientMetadata) (*AuthResult, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return s.signIn(ctx, user, meta)
}

// Register creates a user and signs it in exactly like Login.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, meta models.ClientMetadata) (*AuthResult, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	msgs, err := s.registrationViolations(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		return nil, NewValidationError(msgs...)
	}

	normalized := NormalizeEmail(req.Email)

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w: %w", ErrUnexpected, err)
	}

	user := models.User{
		ID:              uuid.NewString(),
		Email:           req.Email,
		NormalizedEmail: normalized,
		Username:        req.Username,
		PasswordHash:    hash,
		Roles:           []string{DefaultRole},
		CreatedAt:       s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, NewValidationError(emailTakenMessage)
		}
		return nil, classify("create user", err)
	}

	s.log.Infow("user registered", "userID", user.ID)
	return s.signIn(ctx, &user, meta)
}

// RegistrationViolations lists every registration rule req breaks: the
// password policy and an already registered email. fieldMessages from request
// validation come first so the caller gets one combined list.
func (s *AuthService) RegistrationViolations(ctx context.Context, req models.RegisterRequest, fieldMessages ...string) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	msgs, err := s.registrationViolations(ctx, req)
	if err != nil {
		return err
	}
	if all := append(append([]string(nil), fieldMessages...), msgs...); len(all) > 0 {
		return NewValidationError(all...)
	}
	return nil
}

func (s *AuthService) registrationViolations(ctx context.Context, req models.RegisterRequest) ([]string, error) {
	var msgs []string
	if req.Password == "" {
		msgs = append(msgs, "password is required")
	} else {
		msgs = append(msgs, PasswordPolicyViolations(req.Password)...)
	}

	if req.Email == "" {
		return msgs, nil
	}
	_, err := s.users.GetUserByEmail(ctx, NormalizeEmail(req.Email))
	switch {
	case err == nil:
		msgs = append(msgs, emailTakenMessage)
	case !errors.Is(err, storage.ErrUserNotFound):
		return nil, classify("lookup user", err)
	}
	return msgs, nil
}

func (s *AuthService) signIn(ctx context.Context, user *models.User, meta models.ClientMetadata) (*AuthResult, error) {
	now := s.now()
	pair, err := s.tokens.Issue(user, meta, now)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w: %w", ErrUnexpected, err)
	}

	if err := s.users.SaveLogin(ctx, user.ID, pair.RefreshToken, meta, now); err != nil {
		return nil, classify("save login", err)
	}

	s.notifier.Notify(ctx, models.AuthEvent{
		Type:      models.EventLogin,
		UserID:    user.ID,
		Username:  user.Username,
		NewIP:     meta.IPAddress,
		UserAgent: meta.UserAgent,
		At:        now.UTC(),
	})

	return &AuthResult{User: user, Tokens: pair}, nil
}

// Rotate exchanges a refresh token for a new pair. The old token stops working
// as soon as the new one is stored; not-found and expired are both reported as
// ErrInvalidRefreshToken.
func (s *AuthService) Rotate(ctx context.Context, oldRefreshToken string, meta models.ClientMetadata) (*AuthResult, error) {
	if oldRefreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	now := s.now()
	next, err := s.tokens.CreateRefreshToken(now)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w: %w", ErrUnexpected, err)
	}

	user, err := s.users.RotateRefreshTokenTx(ctx, oldRefreshToken, next, now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRefreshTokenNotFound):
			s.log.Infow("refresh rejected", "cause", "not found")
			return nil, ErrInvalidRefreshToken
		case errors.Is(err, storage.ErrRefreshTokenExpired):
			s.log.Infow("refresh rejected", "cause", "expired")
			return nil, ErrInvalidRefreshToken
		default:
			return nil, classify("rotate refresh token", err)
		}
	}

	accessToken, accessExp, err := s.tokens.CreateAccessToken(user, meta, now)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w: %w", ErrUnexpected, err)
	}

	return &AuthResult{
		User: user,
		Tokens: &models.TokenPair{
			AccessToken:      accessToken,
			AccessExpiresAt:  accessExp,
			RefreshToken:     next,
			ExpiresInSeconds: int64(s.tokens.accessTTL / time.Second),
		},
	}, nil
}

// Revoke clears the refresh token. Revoking an unknown or already revoked
// token succeeds.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	if refreshToken == "" {
		return true, nil
	}

	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	user, err := s.users.RevokeRefreshToken(ctx, refreshToken, s.now())
	if err != nil {
		return false, classify("revoke refresh token", err)
	}
	if user != nil {
		s.log.Infow("refresh token revoked", "userID", user.ID)
	}
	return true, nil
}

// Logout revokes refreshToken and, when claims are known, whatever refresh token
// the identity holds, so callers that keep the token in a request body or
// client storage are signed out too. The returned error is informational;
// callers clear client-side tokens regardless.
func (s *AuthService) Logout(ctx context.Context, claims *models.SessionClaims, refreshToken string, reason models.AuthEventType) error {
	_, err := s.Revoke(ctx, refreshToken)

	if claims != nil {
		if userErr := s.revokeUser(ctx, claims.UserID); userErr != nil {
			err = errors.Join(err, userErr)
		}

		s.notifier.Notify(ctx, models.AuthEvent{
			Type:     reason,
			UserID:   claims.UserID,
			Username: claims.Username,
			At:       s.now().UTC(),
		})
	}
	return err
}

func (s *AuthService) revokeUser(ctx context.Context, userID string) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	if err := s.users.RevokeUserRefreshToken(ctx, userID, s.now()); err != nil {
		return classify("revoke user refresh token", err)
	}
	s.log.Infow("refresh token revoked", "userID", userID)
	return nil
}

// PasswordPolicyViolations returns one message per broken rule.
func PasswordPolicyViolations(password string) []string {
	var msgs []string
	if len(password) < minPasswordLength {
		msgs = append(msgs, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		msgs = append(msgs, "password must contain a letter")
	}
	if !hasDigit {
		msgs = append(msgs, "password must contain a digit")
	}
	return msgs
}
