package util

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultIssuer    = "authservice"
	defaultAudience  = "authservice-clients"
	defaultLoginPath = "/login"

	defaultRateLimit     = 100
	defaultRateInterval  = 1 * time.Minute
	defaultRateBlockTime = 5 * time.Minute

	defaultStoreTimeout = 3 * time.Second

	// AccessTTL, RefreshTTL and JWTLeeway are fixed by the token contract, not configurable.
	AccessTTL       = 1 * time.Hour
	RefreshTTL      = 7 * 24 * time.Hour
	JWTLeeway       = 5 * time.Minute
	SessionMaxIdle  = 24 * time.Hour
	RawRefreshBytes = 64
	MinSecretLength = 32
)

var ErrJWTSecretMissing = errors.New("JWT_SECRET is not set")

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
	// TrustProxy makes the client IP come from X-Forwarded-For instead of the
	// socket peer address.
	TrustProxy bool
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
		TrustProxy:      parseBoolOrDefault("TRUST_PROXY", false),
	}
}

// TokenConfig is read once at startup and never mutated afterwards.
type TokenConfig struct {
	JwtSecretKey []byte
	Issuer       string
	Audience     string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Leeway       time.Duration
}

func NewTokenConfig() (*TokenConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, ErrJWTSecretMissing
	}
	if len(secret) < MinSecretLength {
		return nil, errors.New("JWT_SECRET must be at least 32 bytes long")
	}

	return &TokenConfig{
		JwtSecretKey: []byte(secret),
		Issuer:       getEnvOrDefault("JWT_ISSUER", defaultIssuer),
		Audience:     getEnvOrDefault("JWT_AUDIENCE", defaultAudience),
		AccessTTL:    AccessTTL,
		RefreshTTL:   RefreshTTL,
		Leeway:       JWTLeeway,
	}, nil
}

type SessionConfig struct {
	LoginPath      string
	EnforceIPCheck bool
	MaxIdle        time.Duration
}

func NewSessionConfig() *SessionConfig {
	return &SessionConfig{
		LoginPath:      getEnvOrDefault("LOGIN_PATH", defaultLoginPath),
		EnforceIPCheck: parseBoolOrDefault("ENFORCE_IP_CHECK", false),
		MaxIdle:        SessionMaxIdle,
	}
}

type RateLimiterConfig struct {
	Backend   string
	Limit     int
	Interval  time.Duration
	BlockTime time.Duration
}

func NewRateLimiterConfig() *RateLimiterConfig {
	limitStr := os.Getenv("RATE_LIMIT_LIMIT")
	limit := defaultRateLimit
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		} else {
			log.Printf("Invalid RATE_LIMIT_LIMIT: %s, using default %d", limitStr, defaultRateLimit)
		}
	}

	return &RateLimiterConfig{
		Backend:   strings.ToLower(getEnvOrDefault("RATE_LIMIT_BACKEND", "memory")),
		Limit:     limit,
		Interval:  parseDurationOrDefault("RATE_LIMIT_INTERVAL", defaultRateInterval),
		BlockTime: parseDurationOrDefault("RATE_LIMIT_BLOCK_TIME", defaultRateBlockTime),
	}
}

type StorageConfig struct {
	Driver       string
	DSN          string
	RedisAddr    string
	StoreTimeout time.Duration
}

func NewStorageConfig() *StorageConfig {
	return &StorageConfig{
		Driver:       strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", "postgres")),
		DSN:          os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		StoreTimeout: parseDurationOrDefault("STORE_TIMEOUT", defaultStoreTimeout),
	}
}

func GetWebhookURL() string {
	return os.Getenv("WEBHOOK_URL")
}

func GetWebhookReceiverAddr(def string) string {
	return getEnvOrDefault("WEBHOOK_RECEIVER_ADDR", def)
}

// GetBcryptCost returns BCRYPT_COST, or 0 to let the hasher pick its default.
func GetBcryptCost() int {
	v := os.Getenv("BCRYPT_COST")
	if v == "" {
		return 0
	}
	cost, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid BCRYPT_COST: %s, using default", v)
		return 0
	}
	return cost
}

func getEnvOrDefault(varName, def string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return def
}

func parseBoolOrDefault(varName string, def bool) bool {
	if v := os.Getenv(varName); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("Invalid bool in %s: %s, using default %t", varName, v, def)
	}
	return def
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}
