package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrNotSignedIn = errors.New("not signed in")

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service: %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the service.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
}

// ErrSessionTerminated is returned when the service signed the session out on
// its own, for example after a user agent change. Stored tokens are cleared.
var ErrSessionTerminated = errors.New("session terminated by the server")
