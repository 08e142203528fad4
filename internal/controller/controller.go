package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/service"
	"github.com/rryowa/authservice/internal/transport"
	"github.com/rryowa/authservice/internal/util"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
	validator   *RequestValidator
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
		validator:   NewRequestValidator(),
	}
}

// RouteMiddleware is attached per route class when handlers are registered.
type RouteMiddleware struct {
	Public    []echo.MiddlewareFunc
	Protected []echo.MiddlewareFunc
}

func RegisterHandlersWithBaseURL(e *echo.Echo, c *Controller, base string, mw RouteMiddleware, groupMw ...echo.MiddlewareFunc) {
	e.GET("/ping", c.CheckServer)

	g := e.Group(base, groupMw...)
	g.POST("/login", c.Login, mw.Public...)
	g.POST("/register", c.Register, mw.Public...)
	g.POST("/refresh", c.Refresh, mw.Public...)
	g.POST("/logout", c.Logout, mw.Protected...)
	g.GET("/user", c.CurrentUser, mw.Protected...)
}

// (GET /ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return service.NewValidationError("invalid request body")
	}
	if err := c.validator.Validate(req); err != nil {
		return err
	}

	res, err := c.authService.Login(ctx.Request().Context(), req.Email, req.Password, ClientMetadata(ctx))
	if err != nil {
		return err
	}

	transport.WriteTokens(ctx.Response(), transport.DetectSurface(ctx.Request()), res.Tokens)
	return ctx.JSON(http.StatusOK, authResponse(res))
}

// (POST /auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return service.NewValidationError("invalid request body")
	}
	if msgs := c.validator.Violations(req); len(msgs) > 0 {
		return c.authService.RegistrationViolations(ctx.Request().Context(), req, msgs...)
	}

	res, err := c.authService.Register(ctx.Request().Context(), req, ClientMetadata(ctx))
	if err != nil {
		return err
	}

	transport.WriteTokens(ctx.Response(), transport.DetectSurface(ctx.Request()), res.Tokens)
	return ctx.JSON(http.StatusOK, authResponse(res))
}

// (POST /auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return service.NewValidationError("invalid request body")
	}

	token := transport.ExtractRefreshToken(ctx.Request(), req.RefreshToken)
	if token == "" {
		return util.NewResponseError(http.StatusBadRequest, "refresh token is required")
	}

	res, err := c.authService.Rotate(ctx.Request().Context(), token, ClientMetadata(ctx))
	if err != nil {
		return err
	}

	transport.WriteTokens(ctx.Response(), transport.DetectSurface(ctx.Request()), res.Tokens)
	return ctx.JSON(http.StatusOK, tokenPairResponse(res.Tokens))
}

// (POST /auth/logout).
func (c *Controller) Logout(ctx echo.Context) error {
	var req models.LogoutRequest
	// The body is optional; a malformed one does not block logout.
	_ = ctx.Bind(&req)

	claims := ClaimsFrom(ctx)
	token := transport.ExtractRefreshToken(ctx.Request(), req.RefreshToken)

	if err := c.authService.Logout(ctx.Request().Context(), claims, token, models.EventLogout); err != nil {
		c.zapLogger.Warnw("logout: refresh token revocation failed", "error", err, "userID", claims.UserID)
	}

	transport.ClearTokens(ctx.Response())
	return ctx.JSON(http.StatusOK, models.LogoutResponse{Success: true})
}

// (GET /auth/user).
func (c *Controller) CurrentUser(ctx echo.Context) error {
	claims := ClaimsFrom(ctx)
	if claims == nil {
		return service.ErrUnauthorized
	}

	return ctx.JSON(http.StatusOK, models.UserInfo{
		ID:              claims.UserID,
		Username:        claims.Username,
		Email:           claims.Email,
		Roles:           claims.Roles,
		IsAuthenticated: true,
	})
}

// ClaimsFrom returns the verified claims stored by the authentication
// middleware, or nil for anonymous requests.
func ClaimsFrom(ctx echo.Context) *models.SessionClaims {
	claims, _ := ctx.Get(models.MwClaimsKey).(*models.SessionClaims)
	return claims
}

func ClientMetadata(ctx echo.Context) models.ClientMetadata {
	return models.ClientMetadata{
		UserAgent: ctx.Request().UserAgent(),
		IPAddress: ctx.RealIP(),
	}
}

func tokenPairResponse(pair *models.TokenPair) models.TokenPairResponse {
	return models.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken.Token,
		ExpiresIn:    pair.ExpiresInSeconds,
	}
}

func authResponse(res *service.AuthResult) models.AuthResponse {
	return models.AuthResponse{
		TokenPairResponse: tokenPairResponse(res.Tokens),
		User: models.UserInfo{
			ID:              res.User.ID,
			Username:        res.User.Username,
			Email:           res.User.Email,
			Roles:           res.User.Roles,
			IsAuthenticated: true,
		},
	}
}
