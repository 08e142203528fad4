package models

import "time"

//nolint:gosec //file not handles sensitive data
const (
	CookieAccessToken  = "jwt"
	CookieRefreshToken = "refreshToken"

	MwClaimsKey = "session_claims"
)

// User is the identity record. The auth core only reads it and writes the
// refresh token and last-login fields.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	NormalizedEmail       string     `json:"-"`
	Username              string     `json:"username"`
	PasswordHash          string     `json:"-"`
	Roles                 []string   `json:"roles"`
	RefreshToken          string     `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
	LastLoginAt           *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP           string     `json:"-"`
	LastLoginUserAgent    string     `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
}

// StoredRefreshToken returns the user's current refresh token, empty when none is held.
func (u *User) StoredRefreshToken() RefreshToken {
	t := RefreshToken{Token: u.RefreshToken}
	if u.RefreshTokenExpiresAt != nil {
		t.ExpiresAt = *u.RefreshTokenExpiresAt
	}
	return t
}

// RefreshToken is an opaque refresh token value with its expiry.
type RefreshToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the token is still usable at now. The boundary is exclusive.
func (t RefreshToken) Active(now time.Time) bool {
	return t.Token != "" && t.ExpiresAt.After(now)
}

// ClientMetadata describes the caller as observed on the current request.
type ClientMetadata struct {
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
}

// TokenPair is what the issuer hands back after login, registration or rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     RefreshToken
	ExpiresInSeconds int64
}

// SessionClaims is the typed claim bundle produced once when an access token is verified.
type SessionClaims struct {
	UserID    string
	Username  string
	Email     string
	Roles     []string
	JTI       string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time

	IPAddress    string
	UserAgent    string
	LastActivity time.Time
	// HasSessionContext is false when any of ip_address, user_agent or
	// last_activity was missing or could not be parsed.
	HasSessionContext bool
}
