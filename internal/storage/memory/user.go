package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/storage"
)

// InMemoryUserStorage keeps users in process memory. A single mutex serializes
// every write, which gives rotation and revocation the same one-winner
// guarantee the postgres row lock gives.
type InMemoryUserStorage struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	byEmail map[string]string
	byToken map[string]string
	log     *zap.SugaredLogger
}

var _ storage.UserRepository = (*InMemoryUserStorage)(nil)

func NewUserStorage(log *zap.SugaredLogger) *InMemoryUserStorage {
	return &InMemoryUserStorage{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		byToken: make(map[string]string),
		log:     log,
	}
}

func (m *InMemoryUserStorage) CreateUser(ctx context.Context, user models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[user.NormalizedEmail]; ok {
		return storage.ErrEmailTaken
	}

	u := cloneUser(&user)
	m.users[u.ID] = u
	m.byEmail[u.NormalizedEmail] = u.ID
	if u.RefreshToken != "" {
		m.byToken[u.RefreshToken] = u.ID
	}
	m.log.Debugw("User created", "userID", u.ID)

	return nil
}

func (m *InMemoryUserStorage) GetUserByEmail(ctx context.Context, normalizedEmail string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizedEmail]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *InMemoryUserStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *InMemoryUserStorage) SaveLogin(
	ctx context.Context,
	userID string,
	token models.RefreshToken,
	meta models.ClientMetadata,
	now time.Time,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	m.setToken(u, token.Token, token.ExpiresAt)
	loginAt := now
	u.LastLoginAt = &loginAt
	u.LastLoginIP = meta.IPAddress
	u.LastLoginUserAgent = meta.UserAgent

	return nil
}

func (m *InMemoryUserStorage) RotateRefreshTokenTx(
	ctx context.Context,
	oldToken string,
	next models.RefreshToken,
	now time.Time,
) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byToken[oldToken]
	if !ok || oldToken == "" {
		m.log.Debugw("Refresh token not found")
		return nil, storage.ErrRefreshTokenNotFound
	}

	u := m.users[id]
	if !u.StoredRefreshToken().Active(now) {
		return nil, storage.ErrRefreshTokenExpired
	}

	m.setToken(u, next.Token, next.ExpiresAt)
	m.log.Debugw("Refresh token rotated", "userID", u.ID)

	return cloneUser(u), nil
}

func (m *InMemoryUserStorage) RevokeRefreshToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byToken[token]
	if !ok || token == "" {
		return nil, nil
	}

	u := m.users[id]
	m.setToken(u, "", now)

	return cloneUser(u), nil
}

func (m *InMemoryUserStorage) RevokeUserRefreshToken(ctx context.Context, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok || u.RefreshToken == "" {
		return nil
	}
	m.setToken(u, "", now)
	m.log.Debugw("Refresh token revoked by user", "userID", userID)

	return nil
}

// setToken must be called with mu held.
func (m *InMemoryUserStorage) setToken(u *models.User, token string, expiresAt time.Time) {
	if u.RefreshToken != "" {
		delete(m.byToken, u.RefreshToken)
	}
	u.RefreshToken = token
	exp := expiresAt
	u.RefreshTokenExpiresAt = &exp
	if token != "" {
		m.byToken[token] = u.ID
	}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	if u.RefreshTokenExpiresAt != nil {
		t := *u.RefreshTokenExpiresAt
		c.RefreshTokenExpiresAt = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
