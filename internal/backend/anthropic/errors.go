package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is matched by every *DecodeError
var ErrDecode = errors.New("decode error")

// DecodeError reports a frame that is malformed or has no known event shape
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("decode error: %v", e.Err)
	}
	return fmt.Sprintf("decode error: %v (line %q)", e.Err, e.Line)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// APIError is the provider's error payload: {"error": {"type", "message"}}
type APIError struct {
	StatusCode int             `json:"-"`
	Details    APIErrorDetails `json:"error"`
}

// APIErrorDetails is the inner error object
type APIErrorDetails struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Details.Type + " - " + e.Details.Message
}

// parseAPIError decodes a non-2xx response body, falling back to a
// synthetic http_error_<code> error carrying the raw body text.
func parseAPIError(status int, body []byte) *APIError {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Details.Type != "" {
		apiErr.StatusCode = status
		return &apiErr
	}
	return &APIError{
		StatusCode: status,
		Details: APIErrorDetails{
			Type:    fmt.Sprintf("http_error_%d", status),
			Message: string(body),
		},
	}
}
