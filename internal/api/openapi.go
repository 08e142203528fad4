package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rryowa/authservice/internal/service"
)

// openAPIErrorHandler turns schema violations into ValidationFailed; other
// router errors such as unknown routes pass through unchanged.
func openAPIErrorHandler(_ echo.Context, err *echo.HTTPError) error {
	if err.Code == http.StatusBadRequest {
		return service.NewValidationError("malformed request body")
	}
	return err
}
