package llmprovider

import "fmt"

// ErrorKind classifies a provider-level failure so the retry engine and the
// agent loop can react without string-matching vendor error text.
type ErrorKind string

const (
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrNetwork         ErrorKind = "network"
	ErrAuth            ErrorKind = "auth"
	ErrAPI             ErrorKind = "api"
	ErrContextOverflow ErrorKind = "context_overflow"
	ErrCancelled       ErrorKind = "cancelled"
)

// Error is the classified error a Provider returns on failure.
type Error struct {
	Kind ErrorKind
	Text string

	// RetryAfterMs is set on ErrRateLimited when the server reported a
	// Retry-After hint; 0 means no hint was given.
	RetryAfterMs int

	// Code is set on ErrAPI to the vendor's error code, if any.
	Code string

	// Cause is the underlying error, if any, for errors.Unwrap.
	Cause error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Text)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.Cause }

// RateLimited builds a retryable rate-limit error. retryAfterMs is 0 when
// the vendor gave no explicit hint.
func RateLimited(retryAfterMs int, text string) *Error {
	return &Error{Kind: ErrRateLimited, Text: text, RetryAfterMs: retryAfterMs}
}

// NetworkError builds a retryable transport-level error.
func NetworkError(cause error) *Error {
	text := "network error"
	if cause != nil {
		text = cause.Error()
	}
	return &Error{Kind: ErrNetwork, Text: text, Cause: cause}
}

// AuthError builds a non-retryable authentication/authorization error.
func AuthError(text string) *Error {
	return &Error{Kind: ErrAuth, Text: text}
}

// APIError builds a non-retryable error surfaced by the vendor with a code.
func APIError(code, text string) *Error {
	return &Error{Kind: ErrAPI, Code: code, Text: text}
}

// ContextOverflowError builds the error the agent loop's reactive-compaction
// path watches for.
func ContextOverflowError(text string) *Error {
	return &Error{Kind: ErrContextOverflow, Text: text}
}

// CancelledError builds the error returned when ctx is done.
func CancelledError() *Error {
	return &Error{Kind: ErrCancelled, Text: "cancelled"}
}

// IsRetryable reports whether the retry engine should attempt this error
// again: rate limits and transport failures are, auth/api/overflow/cancel
// are not.
func (e *Error) IsRetryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrNetwork
}
