package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrTransport marks retryable failures talking to the provider.
	ErrTransport = errors.New("transport error")

	// ErrGeneration marks provider failures that retrying will not fix,
	// including transport failures that outlived every retry.
	ErrGeneration = errors.New("generation error")
)

// TransportErrorKind classifies a retryable transport failure.
type TransportErrorKind string

const (
	TransportTimeout     TransportErrorKind = "timeout"
	TransportRateLimited TransportErrorKind = "rate_limited"
	TransportServerError TransportErrorKind = "server_error"
)

// TransportError is a timeout, rate limit or server error returned by the provider.
type TransportError struct {
	Kind       TransportErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm transport %s (http %d): %v", e.Kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("llm transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// classifyStatus maps an unsuccessful HTTP response to a TransportError when
// it is worth retrying and to a generation error otherwise.
func classifyStatus(statusCode int, body string, retryAfter time.Duration) error {
	statusErr := &httpStatusError{StatusCode: statusCode, Body: body}

	var kind TransportErrorKind

	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		kind = TransportTimeout
	case statusCode == http.StatusTooManyRequests:
		kind = TransportRateLimited
	case statusCode >= http.StatusInternalServerError:
		kind = TransportServerError
	default:
		return fmt.Errorf("%w: %w", ErrGeneration, statusErr)
	}

	return &TransportError{Kind: kind, StatusCode: statusCode, RetryAfter: retryAfter, Err: statusErr}
}

// classifyRequestError wraps network timeouts as TransportErrors. Context
// cancellation is returned unchanged so callers can observe it.
func classifyRequestError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}

	return fmt.Errorf("%w: %w", ErrGeneration, err)
}
