package gigachat

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a request failure for retry decisions.
type ErrorKind int

const (
	// KindAuth covers credential acquisition failures and provider-side
	// auth rejections (401/403).
	KindAuth ErrorKind = iota

	// KindRateLimit is an HTTP 429 quota rejection.
	KindRateLimit

	// KindServer is a provider 5xx.
	KindServer

	// KindNetwork covers connectivity failures and timeouts.
	KindNetwork

	// KindClient is a non-retryable 4xx (malformed request, unknown model).
	KindClient

	// KindStreamParse is a malformed or truncated stream payload. Partial
	// output may already have been delivered, so it is never retried.
	KindStreamParse
)

// String returns the kind name used in logs and error messages.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindClient:
		return "client"
	case KindStreamParse:
		return "stream_parse"
	default:
		return "unknown"
	}
}

// Error is a classified GigaChat request failure.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status when the failure came from a response, else 0
	Msg    string
	Cause  error

	// RetryAfter carries the provider's Retry-After hint on rate-limit
	// rejections; zero when absent.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gigachat: %s error (status %d): %s", e.Kind, e.Status, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("gigachat: %s error: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("gigachat: %s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the ErrorKind from err. Context cancellation and unwrapped
// transport failures map to KindNetwork.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindNetwork
}

// classifyStatus maps an HTTP response status to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

func statusError(status int, body string) *Error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &Error{Kind: classifyStatus(status), Status: status, Msg: body}
}
