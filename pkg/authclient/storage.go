package authclient

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	tokensKeySuffix = "auth.tokens"

	// StaleAfter is how long a stored entry is trusted before it is discarded.
	StaleAfter = time.Hour
)

// Storage is a string key/value store, the shape of browser localStorage.
type Storage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string)
	RemoveItem(key string)
}

// MemoryStorage is a Storage kept in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *MemoryStorage) SetItem(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *MemoryStorage) RemoveItem(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// Tokens is what the server hands back to a script client.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type storedTokens struct {
	Tokens
	StoredAt time.Time `json:"storedAt"`
}

// TokenStore keeps a single Tokens entry under "<namespace>:auth.tokens".
type TokenStore struct {
	storage Storage
	key     string
	now     func() time.Time
}

func NewTokenStore(storage Storage, namespace string) *TokenStore {
	return &TokenStore{
		storage: storage,
		key:     fmt.Sprintf("%s:%s", namespace, tokensKeySuffix),
		now:     time.Now,
	}
}

// Key returns the storage key the tokens live under.
func (s *TokenStore) Key() string {
	return s.key
}

func (s *TokenStore) Save(t Tokens) error {
	raw, err := json.Marshal(storedTokens{Tokens: t, StoredAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	s.storage.SetItem(s.key, string(raw))
	return nil
}

// Load returns the stored tokens. A stale or unreadable entry is removed and
// reported as absent.
func (s *TokenStore) Load() (Tokens, bool) {
	raw, ok := s.storage.GetItem(s.key)
	if !ok || raw == "" {
		return Tokens{}, false
	}

	var st storedTokens
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.Clear()
		return Tokens{}, false
	}
	if s.now().Sub(st.StoredAt) > StaleAfter {
		s.Clear()
		return Tokens{}, false
	}
	return st.Tokens, true
}

func (s *TokenStore) Clear() {
	s.storage.RemoveItem(s.key)
}
