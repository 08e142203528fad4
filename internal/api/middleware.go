package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/controller"
	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/service"
	"github.com/rryowa/authservice/internal/transport"
	"github.com/rryowa/authservice/internal/util"
)

const (
	authBasePath = "/auth"

	SecurityReason = "security"
)

// The session monitor does not run on endpoints that establish a session.
//
//nolint:gochecknoglobals // read-only
var publicAuthPaths = []string{
	authBasePath + "/login",
	authBasePath + "/register",
	authBasePath + "/refresh",
}

// Authenticate extracts and verifies the access token. A valid token stores a
// *models.SessionClaims in the context; a missing or invalid one leaves the
// request anonymous and RequireAuth decides whether that is acceptable.
func Authenticate(authService *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, _ := transport.ExtractAccessToken(c.Request())
			if token == "" {
				return next(c)
			}

			claims, err := authService.Tokens().VerifyAccessToken(token, authService.Now())
			if err != nil {
				return next(c)
			}

			c.Set(models.MwClaimsKey, claims)
			return next(c)
		}
	}
}

func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if controller.ClaimsFrom(c) == nil {
				return service.ErrUnauthorized
			}
			return next(c)
		}
	}
}

// SessionGuard runs the session monitor on every authenticated request. Any
// verdict other than continue signs the caller out, clears all cookies and
// redirects to loginPath with reason=security, even when the access token
// itself is still valid.
func SessionGuard(
	monitor *service.SessionMonitor,
	authService *service.AuthService,
	loginPath string,
	log *zap.SugaredLogger,
	skipPaths ...string,
) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	redirectTo := securityRedirectURL(loginPath)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := controller.ClaimsFrom(c)
			if claims == nil || skip[c.Path()] {
				return next(c)
			}

			verdict := monitor.Evaluate(c.Request().Context(), claims, controller.ClientMetadata(c), authService.Now())
			if verdict == service.VerdictContinue {
				return next(c)
			}

			log.Warnw("forcing logout",
				"verdict", verdict.String(),
				"userID", claims.UserID,
				"uri", c.Request().RequestURI,
			)

			refreshToken := transport.ExtractRefreshToken(c.Request(), "")
			if err := authService.Logout(c.Request().Context(), claims, refreshToken, models.EventSecurity); err != nil {
				log.Warnw("forced logout: revocation failed", "error", err, "userID", claims.UserID)
			}

			transport.ClearAllCookies(c.Response(), c.Request())
			return c.Redirect(http.StatusFound, redirectTo)
		}
	}
}

func securityRedirectURL(loginPath string) string {
	u, err := url.Parse(loginPath)
	if err != nil {
		u = &url.URL{Path: loginPath}
	}
	q := u.Query()
	q.Set("reason", SecurityReason)
	u.RawQuery = q.Encode()
	return u.String()
}

// RateLimit rejects callers that the limiter refuses, keyed by route and
// client IP. Limiter failures let the request through.
func RateLimit(limiter service.RateLimiter, log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}

			key := c.Path() + ":" + c.RealIP()
			ok, err := limiter.TryAcquire(c.Request().Context(), key)
			if err != nil {
				log.Warnw("rate limiter unavailable, allowing request", "error", err)
				return next(c)
			}
			if !ok {
				log.Warnw("rate limit exceeded", "key", key)
				return util.NewResponseError(http.StatusTooManyRequests, "too many requests, please try again later")
			}
			return next(c)
		}
	}
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"request_id", v.RequestID,
				"surface", transport.DetectSurface(c.Request()).String(),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				a.log.Errorw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}
