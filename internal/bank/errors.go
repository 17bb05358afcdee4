package bank

import (
	"errors"
	"fmt"
)

// Response codes the client understands. Anything else on a failed result is a
// hard failure carried verbatim to the caller.
const (
	CodeCaptchaRejected = "GW283"
	CodeSessionExpired  = "GW200"
)

// AuthError is a login failure. Captcha-rejected and session-expired codes are
// retried automatically (bounded); every other code is fatal.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("bank auth failed: code=%s message=%s", e.Code, e.Message)
}

// RequestError is a non-auth failure reported by the bank on an authenticated
// call. Never retried.
type RequestError struct {
	Path    string
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("bank request %s failed: code=%s message=%s", e.Path, e.Code, e.Message)
}

// ValidationError flags bad caller input (for example an out-of-range date
// window). Surfaced immediately, never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// TransientNetworkError wraps a transport-level failure (connection refused,
// timeout). Call sites may retry a bounded number of times with backoff.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network failure during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsSessionExpired reports whether err carries the session-expired code.
func IsSessionExpired(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == CodeSessionExpired
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code == CodeSessionExpired
	}
	return false
}
