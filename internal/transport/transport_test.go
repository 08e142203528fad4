package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/authservice/internal/models"
)

func TestDetectSurface(t *testing.T) {
	t.Parallel()

	page := httptest.NewRequest(http.MethodGet, "/", nil)
	page.AddCookie(&http.Cookie{Name: models.CookieAccessToken, Value: "c"})

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer abc")

	script := httptest.NewRequest(http.MethodGet, "/", nil)
	script.Header.Set("Authorization", "Bearer abc")
	script.Header.Set(ScriptClientHeader, "Script")

	assert.Equal(t, SurfacePage, DetectSurface(page))
	assert.Equal(t, SurfaceBearer, DetectSurface(bearer))
	assert.Equal(t, SurfaceScript, DetectSurface(script))
}

func TestPolicyTable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Source{SourceCookie}, PolicyFor(SurfacePage).Read)
	assert.Equal(t, []Target{TargetCookie}, PolicyFor(SurfacePage).Write)

	for _, s := range []Surface{SurfaceBearer, SurfaceScript} {
		assert.Equal(t, []Source{SourceHeader, SourceCookie}, PolicyFor(s).Read, s.String())
		assert.Contains(t, PolicyFor(s).Write, TargetBody, s.String())
		assert.Contains(t, PolicyFor(s).Write, TargetCookie, s.String())
	}
}

func TestExtractAccessToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		cookie     string
		script     bool
		wantToken  string
		wantSource Source
	}{
		{name: "none", wantSource: SourceNone},
		{name: "cookie", cookie: "from-cookie", wantToken: "from-cookie", wantSource: SourceCookie},
		{name: "header", header: "Bearer from-header", wantToken: "from-header", wantSource: SourceHeader},
		{name: "header beats cookie", header: "Bearer from-header", cookie: "from-cookie", wantToken: "from-header", wantSource: SourceHeader},
		{name: "lowercase scheme", header: "bearer from-header", wantToken: "from-header", wantSource: SourceHeader},
		{name: "other scheme falls back to cookie", header: "Basic dXNlcjpwYXNz", cookie: "from-cookie", wantToken: "from-cookie", wantSource: SourceCookie},
		{name: "empty bearer", header: "Bearer ", wantSource: SourceNone},
		{name: "script without header uses cookie", script: true, cookie: "from-cookie", wantToken: "from-cookie", wantSource: SourceCookie},
		{name: "script header beats cookie", script: true, header: "Bearer from-storage", cookie: "from-cookie", wantToken: "from-storage", wantSource: SourceHeader},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: models.CookieAccessToken, Value: tt.cookie})
			}
			if tt.script {
				r.Header.Set(ScriptClientHeader, "script")
			}

			token, src := ExtractAccessToken(r)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantSource, src)
		})
	}
}

func TestExtractRefreshToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, ExtractRefreshToken(r, ""))

	r.AddCookie(&http.Cookie{Name: models.CookieRefreshToken, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", ExtractRefreshToken(r, ""))
	assert.Equal(t, "from-body", ExtractRefreshToken(r, " from-body "))
}

func TestWriteTokens(t *testing.T) {
	t.Parallel()

	exp := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	rec := httptest.NewRecorder()
	WriteTokens(rec, SurfacePage, &models.TokenPair{
		AccessToken:     "access",
		AccessExpiresAt: exp,
		RefreshToken:    models.RefreshToken{Token: "refresh", ExpiresAt: exp.Add(7 * 24 * time.Hour)},
	})
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
	}

	require.Contains(t, byName, models.CookieAccessToken)
	require.Contains(t, byName, models.CookieRefreshToken)
	assert.Equal(t, "access", byName[models.CookieAccessToken].Value)
	assert.True(t, byName[models.CookieAccessToken].Expires.Equal(exp))
	assert.Equal(t, "refresh", byName[models.CookieRefreshToken].Value)
}

func TestWriteTokensForBodySurfaces(t *testing.T) {
	t.Parallel()

	pair := &models.TokenPair{
		AccessToken:     "access",
		AccessExpiresAt: time.Now().Add(time.Hour),
		RefreshToken:    models.RefreshToken{Token: "refresh", ExpiresAt: time.Now().Add(time.Hour)},
	}

	for _, s := range []Surface{SurfaceBearer, SurfaceScript} {
		s := s
		t.Run(s.String(), func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			WriteTokens(rec, s, pair)

			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Len(t, rec.Result().Cookies(), 2)
		})
	}
}

func TestClearAllCookies(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	r.AddCookie(&http.Cookie{Name: models.CookieAccessToken, Value: "a"})

	rec := httptest.NewRecorder()
	ClearAllCookies(rec, r)

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
	assert.Equal(t, map[string]bool{
		"theme":                   true,
		models.CookieAccessToken:  true,
		models.CookieRefreshToken: true,
	}, names)
}

func TestSurfaceString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "page", SurfacePage.String())
	assert.Equal(t, "bearer", SurfaceBearer.String())
	assert.Equal(t, "script", SurfaceScript.String())
}
