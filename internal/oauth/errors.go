package oauth

import "fmt"

// OAuth 2.0 error codes (RFC 6749 Section 5.2).
const (
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
)

// Error is a typed OAuth protocol error. Engines always return it as a
// value; the transport maps it to a 400 with the standard error object.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Errorf constructs an Error with a formatted description.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}
