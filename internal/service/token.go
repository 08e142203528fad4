package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/util"
)

var ErrInvalidSigningMethod = errors.New("invalid signing method")

type TokenService struct {
	jwtSecretKey []byte
	issuer       string
	audience     string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	leeway       time.Duration
}

func NewTokenService(cfg *util.TokenConfig) *TokenService {
	return &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		leeway:       cfg.Leeway,
	}
}

type jwtClaims struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Roles        []string `json:"role,omitempty"`
	IPAddress    string   `json:"ip_address,omitempty"`
	UserAgent    string   `json:"user_agent,omitempty"`
	LastActivity string   `json:"last_activity,omitempty"`
	jwt.RegisteredClaims
}

// Issue mints an access token and a fresh refresh token for user. The caller
// is responsible for persisting the refresh token.
func (ts *TokenService) Issue(user *models.User, meta models.ClientMetadata, now time.Time) (*models.TokenPair, error) {
	accessToken, accessExp, err := ts.CreateAccessToken(user, meta, now)
	if err != nil {
		return nil, err
	}

	refresh, err := ts.CreateRefreshToken(now)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		ExpiresInSeconds: int64(ts.accessTTL / time.Second),
	}, nil
}

// CreateAccessToken создает HS256 signed access токен с новым JTI.
func (ts *TokenService) CreateAccessToken(user *models.User, meta models.ClientMetadata, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ts.accessTTL)
	claims := &jwtClaims{
		Name:         user.Username,
		Email:        user.Email,
		Roles:        user.Roles,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		LastActivity: now.UTC().Format(time.RFC3339),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signed string: %w", err)
	}

	return signedToken, expiresAt, nil
}

// CreateRefreshToken returns an opaque token of util.RawRefreshBytes random
// bytes. It carries no claims and means nothing without the server-side record.
func (ts *TokenService) CreateRefreshToken(now time.Time) (models.RefreshToken, error) {
	rawToken := make([]byte, util.RawRefreshBytes)
	if _, err := rand.Read(rawToken); err != nil {
		return models.RefreshToken{}, fmt.Errorf("failed to read random bytes: %w", err)
	}

	return models.RefreshToken{
		Token:     base64.StdEncoding.EncodeToString(rawToken),
		ExpiresAt: now.Add(ts.refreshTTL),
	}, nil
}

// VerifyAccessToken checks signature, algorithm, issuer, audience and expiry
// (with leeway) and converts the claims into a typed bundle. Every failure is
// reported as ErrUnauthorized wrapping the parser error.
func (ts *TokenService) VerifyAccessToken(token string, now time.Time) (*models.SessionClaims, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(ts.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&jwtClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := parsedToken.Claims.(*jwtClaims)
	if !parsedToken.Valid || !ok || claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	return claims.toSessionClaims(), nil
}

func (c *jwtClaims) toSessionClaims() *models.SessionClaims {
	sc := &models.SessionClaims{
		UserID:    c.Subject,
		Username:  c.Name,
		Email:     c.Email,
		Roles:     append([]string(nil), c.Roles...),
		JTI:       c.ID,
		Issuer:    c.Issuer,
		IPAddress: c.IPAddress,
		UserAgent: c.UserAgent,
	}
	if c.IssuedAt != nil {
		sc.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		sc.ExpiresAt = c.ExpiresAt.Time
	}

	lastActivity, err := time.Parse(time.RFC3339, c.LastActivity)
	sc.LastActivity = lastActivity
	sc.HasSessionContext = err == nil && c.IPAddress != "" && c.UserAgent != ""

	return sc
}
