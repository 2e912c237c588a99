package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned before any network attempt.
var (
	// ErrNotConfigured indicates a missing endpoint or credential.
	ErrNotConfigured = errors.New("API key or API URL not set")

	// ErrInvalidModel indicates an absent model identifier.
	ErrInvalidModel = errors.New("model identifier is not valid or not defined")

	// ErrUnsupportedProvider indicates a provider name with no backend.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
)

// ErrSetupTimeout indicates that no response started within the setup timeout.
var ErrSetupTimeout = errors.New("timed out waiting for the completion to start")

// ErrFatalAPI marks provider errors that will not go away on the next turn,
// such as a rejected credential or an exhausted quota.
var ErrFatalAPI = errors.New("fatal API error")

// StreamError is a transport failure during streaming. Partial holds the
// text received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"incorrect api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like an auth, billing or quota
// rejection from the provider.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal provider errors with ErrFatalAPI and returns any
// other error unchanged.
func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}

// ErrorKind names the class of a turn-ending error for metrics and the
// usage ledger.
func ErrorKind(err error) string {
	var se *StreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInvalidModel):
		return "invalid_model"
	case errors.Is(err, ErrSetupTimeout):
		return "setup_timeout"
	case errors.Is(err, ErrFatalAPI):
		return "fatal_api"
	case errors.As(err, &se):
		return "transport"
	}
	return "other"
}
