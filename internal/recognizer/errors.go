package recognizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"docscan/internal/domain"
)

var (
	// ErrNoText marks a backend call that finished without recognizing anything.
	ErrNoText = errors.New("no text recognized")
	// ErrNilResult marks a backend that returned neither a result nor an error.
	ErrNilResult = errors.New("backend returned no result")
)

// RateLimitError indicates a remote backend returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Backend    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Backend, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(backend string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Backend:    backend,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// Classify tags err with an ErrorKind. Errors that already carry a kind keep
// it; context expiry becomes a timeout; everything else is a processing error.
func Classify(backend string, err error) *domain.RecognitionError {
	var re *domain.RecognitionError
	if errors.As(err, &re) {
		if re.Backend == "" {
			return domain.NewRecognitionError(re.Kind, backend, re.Err)
		}
		return re
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.NewRecognitionError(domain.ErrorKindTimeout, backend, err)
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return domain.NewRecognitionError(domain.ErrorKindResourceExhausted, backend, err)
	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return domain.NewRecognitionError(domain.ErrorKindInitialization, backend, err)
	default:
		return domain.NewRecognitionError(domain.ErrorKindProcessing, backend, err)
	}
}

// HTTPError maps a non-200 response from a remote backend to a tagged error.
func HTTPError(backend string, resp *http.Response, body []byte) error {
	baseErr := fmt.Errorf("%s API error (status %d): %s", backend, resp.StatusCode, Truncate(string(body), 500))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
		return domain.NewRecognitionError(domain.ErrorKindProcessing, backend, NewRateLimitError(backend, baseErr, retryAfter))
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return domain.NewRecognitionError(domain.ErrorKindInitialization, backend, baseErr)
	case http.StatusRequestEntityTooLarge:
		return domain.NewRecognitionError(domain.ErrorKindResourceExhausted, backend, baseErr)
	case http.StatusGatewayTimeout:
		return domain.NewRecognitionError(domain.ErrorKindTimeout, backend, baseErr)
	default:
		return domain.NewRecognitionError(domain.ErrorKindProcessing, backend, baseErr)
	}
}

// Truncate shortens s to maxLen bytes for error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
