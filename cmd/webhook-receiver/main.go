package main

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/util"
)

const defaultReceiverAddr = ":9090"

// A development sink for auth events posted by the service's webhook notifier.
func main() {
	logger := util.NewZapLogger()
	defer func() { _ = logger.Sync() }()

	addr := util.GetWebhookReceiverAddr(defaultReceiverAddr)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())

	e.POST("/", func(c echo.Context) error {
		var event models.AuthEvent
		if err := c.Bind(&event); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Error parsing JSON")
		}

		logger.Infow("Received webhook",
			"type", event.Type,
			"userID", event.UserID,
			"username", event.Username,
			"oldIP", event.OldIP,
			"newIP", event.NewIP,
			"userAgent", event.UserAgent,
			"reason", event.Reason,
			"at", event.At,
		)

		return c.String(http.StatusOK, "Webhook received!")
	})

	logger.Infof("Webhook receiver listening on %s", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
