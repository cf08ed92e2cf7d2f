package credentials

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNoCredentials is returned when the rotator was built without any credential.
var ErrNoCredentials = errors.New("no api credentials configured")

// ErrQuotaExhausted matches QuotaExhaustedError via errors.Is.
var ErrQuotaExhausted = errors.New("all api credentials exhausted their quota")

// ErrMalformedResponse wraps platform responses that could not be decoded.
var ErrMalformedResponse = errors.New("malformed api response")

// QuotaExhaustedError reports that every credential was refused for quota reasons.
type QuotaExhaustedError struct {
	Attempts int
	Body     string
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted after %d attempt(s): %s", e.Attempts, e.Body)
}

// Is lets callers test with errors.Is(err, ErrQuotaExhausted).
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

// APIError is a non-quota failure reported by the platform. It is never retried with another credential.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// IsQuotaExhausted reports whether err carries a quota exhaustion.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

// IsTransient reports failures worth leaving for the next scheduled run:
// timeouts, network errors, malformed bodies and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrNoCredentials) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedResponse) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusRequestTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
