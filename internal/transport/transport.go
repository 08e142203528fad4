// Package transport decides where tokens are read from and written to for
// each kind of caller.
package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/rryowa/authservice/internal/models"
)

// Surface is the shape of the calling client.
type Surface int

const (
	// SurfacePage is a server-rendered page relying on HTTP-only cookies.
	SurfacePage Surface = iota
	// SurfaceBearer is an API client sending an Authorization header.
	SurfaceBearer
	// SurfaceScript is an in-browser script keeping tokens in client storage.
	SurfaceScript
)

func (s Surface) String() string {
	switch s {
	case SurfacePage:
		return "page"
	case SurfaceBearer:
		return "bearer"
	case SurfaceScript:
		return "script"
	default:
		return "unknown"
	}
}

type Source int

const (
	SourceNone Source = iota
	SourceHeader
	SourceCookie
)

type Target int

const (
	TargetCookie Target = iota
	// TargetBody hands the pair to the client in the JSON response, which the
	// client stores itself.
	TargetBody
)

// Policy says where a surface presents its access token and where new tokens
// go back to.
type Policy struct {
	// Read lists access token sources in precedence order.
	Read  []Source
	Write []Target
}

// Header beats cookie wherever both are read. Auth endpoints set the token
// cookies for every surface.
//
//nolint:gochecknoglobals // read-only policy table
var policies = map[Surface]Policy{
	SurfacePage:   {Read: []Source{SourceCookie}, Write: []Target{TargetCookie}},
	SurfaceBearer: {Read: []Source{SourceHeader, SourceCookie}, Write: []Target{TargetBody, TargetCookie}},
	// Script clients keep the pair in client storage and present the access
	// token as a bearer header.
	SurfaceScript: {Read: []Source{SourceHeader, SourceCookie}, Write: []Target{TargetBody, TargetCookie}},
}

const (
	ScriptClientHeader = "X-Client-Surface"
	bearerPrefix       = "Bearer "
)

func PolicyFor(s Surface) Policy {
	return policies[s]
}

// DetectSurface classifies the caller of r.
func DetectSurface(r *http.Request) Surface {
	if strings.EqualFold(r.Header.Get(ScriptClientHeader), SurfaceScript.String()) {
		return SurfaceScript
	}
	if bearerToken(r) != "" {
		return SurfaceBearer
	}
	return SurfacePage
}

// ExtractAccessToken returns the access token and the source it came from,
// reading the sources of the caller's surface in order.
func ExtractAccessToken(r *http.Request) (string, Source) {
	for _, src := range PolicyFor(DetectSurface(r)).Read {
		switch src {
		case SourceHeader:
			if t := bearerToken(r); t != "" {
				return t, SourceHeader
			}
		case SourceCookie:
			if c, err := r.Cookie(models.CookieAccessToken); err == nil && c.Value != "" {
				return c.Value, SourceCookie
			}
		}
	}
	return "", SourceNone
}

// ExtractRefreshToken prefers an explicitly supplied token (request body) over
// the refreshToken cookie.
func ExtractRefreshToken(r *http.Request, fromBody string) string {
	if t := strings.TrimSpace(fromBody); t != "" {
		return t
	}
	if c, err := r.Cookie(models.CookieRefreshToken); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) <= len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(h[len(bearerPrefix):])
}

// WriteTokens delivers pair on the write targets of surface. The JSON body
// itself is written by the handler; for body targets the response is marked
// uncacheable.
func WriteTokens(w http.ResponseWriter, surface Surface, pair *models.TokenPair) {
	for _, target := range PolicyFor(surface).Write {
		switch target {
		case TargetCookie:
			http.SetCookie(w, newCookie(models.CookieAccessToken, pair.AccessToken, pair.AccessExpiresAt))
			http.SetCookie(w, newCookie(models.CookieRefreshToken, pair.RefreshToken.Token, pair.RefreshToken.ExpiresAt))
		case TargetBody:
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
		}
	}
}

// ClearTokens expires the jwt and refreshToken cookies.
func ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, expiredCookie(models.CookieAccessToken))
	http.SetCookie(w, expiredCookie(models.CookieRefreshToken))
}

// ClearAllCookies expires every cookie the request carried plus the token cookies.
func ClearAllCookies(w http.ResponseWriter, r *http.Request) {
	seen := map[string]bool{}
	for _, c := range r.Cookies() {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		http.SetCookie(w, expiredCookie(c.Name))
	}
	for _, name := range []string{models.CookieAccessToken, models.CookieRefreshToken} {
		if !seen[name] {
			http.SetCookie(w, expiredCookie(name))
		}
	}
}

func newCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
