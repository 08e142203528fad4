package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
	"github.com/rryowa/authservice/internal/service"
	"github.com/rryowa/authservice/internal/util"
)

const internalErrorMessage = "internal server error"

// ErrorHandler converts every error that reaches the HTTP boundary into a
// short {"message": ...} body. Unexpected errors are logged with context and
// never detailed to the client.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := statusFor(err)
		switch {
		case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
			log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		case status == http.StatusServiceUnavailable:
			log.Warnw("temporary failure", "error", err, "uri", c.Request().RequestURI)
			c.Response().Header().Set("Retry-After", "1")
		}

		if err := c.JSON(status, models.ErrorResponse{Message: message}); err != nil {
			log.Errorw("failed to write json response", "error", err)
		}
	}
}

func statusFor(err error) (int, string) {
	var validationErr *service.ValidationError
	var responseErr util.ResponseError
	var he *echo.HTTPError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, service.ErrValidationFailed):
		return http.StatusBadRequest, service.ErrValidationFailed.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, service.ErrInvalidRefreshToken.Error()
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, service.ErrUnauthorized.Error()
	case errors.Is(err, service.ErrTemporaryFailure):
		return http.StatusServiceUnavailable, service.ErrTemporaryFailure.Error()
	case errors.Is(err, service.ErrUnexpected):
		return http.StatusInternalServerError, internalErrorMessage
	case errors.As(err, &responseErr):
		return responseErr.Status, responseErr.Msg
	case errors.As(err, &he):
		if he.Code >= http.StatusInternalServerError {
			return he.Code, internalErrorMessage
		}
		return he.Code, fmt.Sprint(he.Message)
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}
