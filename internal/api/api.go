package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	middleware "github.com/oapi-codegen/echo-middleware"
	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/controller"
	"github.com/rryowa/authservice/internal/service"
	"github.com/rryowa/authservice/internal/util"
)

const (
	shutdownTimeout = 5 * time.Second
)

type API struct {
	server          *echo.Echo
	controller      *controller.Controller
	authService     *service.AuthService
	monitor         *service.SessionMonitor
	limiter         service.RateLimiter
	sessionConfig   *util.SessionConfig
	log             *zap.SugaredLogger
	gracefulTimeout time.Duration
}

func NewAPI(
	c *controller.Controller,
	authService *service.AuthService,
	monitor *service.SessionMonitor,
	limiter service.RateLimiter,
	sc *util.ServerConfig,
	sessionConfig *util.SessionConfig,
	l *zap.SugaredLogger,
) (*API, error) {
	e := echo.New()
	e.HideBanner = true

	e.Server.Addr = sc.ServerAddr
	e.Server.WriteTimeout = sc.WriteTimeout
	e.Server.ReadTimeout = sc.ReadTimeout
	e.Server.IdleTimeout = sc.IdleTimeout
	e.HTTPErrorHandler = ErrorHandler(l)
	if sc.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	a := &API{
		server:          e,
		controller:      c,
		authService:     authService,
		monitor:         monitor,
		limiter:         limiter,
		sessionConfig:   sessionConfig,
		log:             l,
		gracefulTimeout: sc.GracefulTimeout,
	}
	if err := a.setupRoutes(); err != nil {
		return nil, err
	}
	return a, nil
}

// Handler exposes the router, mainly for tests.
func (a *API) Handler() http.Handler {
	return a.server
}

func (a *API) setupRoutes() error {
	swagger, err := controller.GetSwagger()
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	swagger.Servers = nil

	a.server.Use(echomiddleware.Recover())
	a.server.Use(echomiddleware.RequestID())
	a.server.Use(echomiddleware.RequestLoggerWithConfig(GetLoggerMiddlewareConfig(a)))
	a.server.Use(Authenticate(a.authService))
	a.server.Use(SessionGuard(a.monitor, a.authService, a.sessionConfig.LoginPath, a.log, publicAuthPaths...))

	/* Маршруты /auth валидируются по встроенному OpenAPI документу
	до передачи в методы контроллера. Правила полей проверяет уже контроллер.
	*/
	controller.RegisterHandlersWithBaseURL(
		a.server,
		a.controller,
		authBasePath,
		controller.RouteMiddleware{
			Public:    []echo.MiddlewareFunc{RateLimit(a.limiter, a.log)},
			Protected: []echo.MiddlewareFunc{RequireAuth()},
		},
		middleware.OapiRequestValidatorWithOptions(swagger, &middleware.Options{
			ErrorHandler: openAPIErrorHandler,
		}),
	)

	return nil
}

func (a *API) Run(ctxBackground context.Context) {
	ctx, stop := signal.NotifyContext(ctxBackground, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.ListenGracefulShutdown(ctx)
}

func (a *API) ListenGracefulShutdown(ctx context.Context) {
	go func() {
		err := a.server.Start(a.server.Server.Addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()
	a.log.Infof("Listening on: %s", a.server.Server.Addr)

	<-ctx.Done()
	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Errorf("shutdown: %v", err)
	}

	longShutdown := make(chan struct{}, 1)

	go func() {
		time.Sleep(a.gracefulTimeout)
		longShutdown <- struct{}{}
	}()

	select {
	case <-shutdownCtx.Done():
		if errors.Is(shutdownCtx.Err(), context.Canceled) {
			a.log.Info("server shutdown completed")
		} else {
			a.log.Errorf("server shutdown: %v", shutdownCtx.Err())
		}
	case <-longShutdown:
		a.log.Infof("finished")
	}
}
