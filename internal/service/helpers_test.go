package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/storage/memory"
	"github.com/rryowa/authservice/internal/util"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

func testTokenConfig() *util.TokenConfig {
	return &util.TokenConfig{
		JwtSecretKey: []byte(testSecret),
		Issuer:       "authservice",
		Audience:     "authservice-clients",
		AccessTTL:    util.AccessTTL,
		RefreshTTL:   util.RefreshTTL,
		Leeway:       util.JWTLeeway,
	}
}

// recordingNotifier collects events synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event models.AuthEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []models.AuthEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.AuthEvent(nil), n.events...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type authFixture struct {
	svc      *AuthService
	users    *memory.InMemoryUserStorage
	tokens   *TokenService
	notifier *recordingNotifier
	clock    *testClock
	meta     models.ClientMetadata
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	log := zap.NewNop().Sugar()
	users := memory.NewUserStorage(log)
	hasher := NewBcryptHasher(bcrypt.MinCost)
	verifier, err := NewCredentialVerifier(users, hasher, log)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	tokens := NewTokenService(testTokenConfig())

	return &authFixture{
		svc:      NewAuthService(users, verifier, tokens, hasher, notifier, log, WithClock(clock.Now)),
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		clock:    clock,
		meta: models.ClientMetadata{
			UserAgent: "Mozilla/5.0 Chrome",
			IPAddress: "203.0.113.7",
		},
	}
}

func (f *authFixture) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()

	res, err := f.svc.Register(context.Background(), models.RegisterRequest{
		Email:    email,
		Username: "alice",
		Password: password,
	}, f.meta)
	require.NoError(t, err)
	return res
}
