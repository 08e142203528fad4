package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	userCalls    atomic.Int32
	refreshCalls atomic.Int32
	validAccess  atomic.Value
	terminate    atomic.Bool
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "script", r.Header.Get("X-Client-Surface"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
			return
		}
		f.validAccess.Store("access-1")
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  "access-1",
			"refreshToken": "refresh-1",
			"expiresIn":    3600,
			"user":         map[string]any{"id": "u1", "email": body["email"], "isAuthenticated": true},
		})
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refreshToken"] != "refresh-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid or expired refresh token"})
			return
		}
		f.validAccess.Store("access-2")
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  "access-2",
			"refreshToken": "refresh-2",
			"expiresIn":    3600,
		})
	})

	mux.HandleFunc("/auth/user", func(w http.ResponseWriter, r *http.Request) {
		f.userCalls.Add(1)
		if f.terminate.Load() {
			http.Redirect(w, r, "/login?reason=security", http.StatusFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+f.validAccess.Load().(string) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "email": "a@x.com", "isAuthenticated": true})
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()

	f := &fakeServer{}
	f.validAccess.Store("")
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	return New(srv.URL, NewTokenStore(NewMemoryStorage(), "test")), f
}

func TestClientLoginStoresTokens(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	u, err := c.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	access, err := c.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)
}

func TestClientLoginRejected(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	_, err := c.Login(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid email or password", apiErr.Message)

	_, err = c.AccessToken()
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestClientUserRefreshesOnceOn401(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	// The server moved on to a new access token; the stored one is now rejected.
	f.validAccess.Store("access-2")

	u, err := c.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(2), f.userCalls.Load())

	tokens, ok := c.Store.Load()
	require.True(t, ok)
	assert.Equal(t, "refresh-2", tokens.RefreshToken)
}

func TestClientRefreshRejectedClearsStore(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	require.NoError(t, c.Store.Save(Tokens{AccessToken: "a", RefreshToken: "stale"}))

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	_, ok := c.Store.Load()
	assert.False(t, ok)
}

func TestClientForcedLogout(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	f.terminate.Store(true)

	_, err = c.User(ctx)
	require.ErrorIs(t, err, ErrSessionTerminated)

	_, ok := c.Store.Load()
	assert.False(t, ok)
}

func TestClientLogoutClearsStore(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	_, ok := c.Store.Load()
	assert.False(t, ok)

	// Logging out twice is harmless.
	require.NoError(t, c.Logout(ctx))
}

func TestClientNotSignedIn(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	_, err := c.User(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNotSignedIn)
}
