package client

import (
	"encoding/json"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrDaemonNotRunning means nothing is listening on the daemon socket.
	ErrDaemonNotRunning = pkgerrors.New("guard daemon not running")

	// ErrPermissionDenied means the socket exists but the caller may not open it.
	// The daemon socket is root-only unless non-root access was allowed at install.
	ErrPermissionDenied = pkgerrors.New("permission denied")

	// ErrNotFound means the daemon does not serve the requested endpoint,
	// usually because it is an older version.
	ErrNotFound = pkgerrors.New("endpoint not found")
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("guard daemon returned %d: %s", e.StatusCode, e.Message)
}

// newAPIError keeps the daemon's message. Handlers reply with a JSON string.
func newAPIError(code int, body []byte) *APIError {
	var msg string
	if err := json.Unmarshal(body, &msg); err != nil {
		msg = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: code, Message: msg}
}
