package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ServiceError is a non-success response from the remote service
type ServiceError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsRateLimited reports a 429 response
func (e *ServiceError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsOverloaded reports Anthropic's 529 overloaded response
func (e *ServiceError) IsOverloaded() bool {
	return e.StatusCode == 529
}

// Retryable reports whether the same request may succeed later
func (e *ServiceError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusConflict:
		return true
	case e.IsRateLimited(), e.IsOverloaded():
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// BudgetExceededError is returned when a run hits its turn limit
type BudgetExceededError struct {
	MaxTurns int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("turn budget exceeded: no final answer after %d turns", e.MaxTurns)
}

// InvalidReplyError is returned when a provider reply breaks the tool
// invocation contract: empty or repeated ids, or results that do not pair up
type InvalidReplyError struct {
	Turn int
	Err  error
}

func (e *InvalidReplyError) Error() string {
	return fmt.Sprintf("invalid reply on turn %d: %v", e.Turn, e.Err)
}

func (e *InvalidReplyError) Unwrap() error { return e.Err }

// IsRetryableError checks if an error should be retried. Retryable service
// statuses and transport failures qualify; cancellation never does.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
