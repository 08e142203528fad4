package service

import (
	"context"

	"github.com/rryowa/authservice/internal/models"
)

// RateLimiter decides whether a caller identified by key may proceed. Each
// implementation owns its own TTL and eviction policy.
type RateLimiter interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// Notifier is a fire-and-forget sink for auth events. It never reports errors
// and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, event models.AuthEvent)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, models.AuthEvent) {}
