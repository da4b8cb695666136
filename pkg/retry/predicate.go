package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

var transientStatus = map[int]bool{
	408: true,
	429: true,
	502: true,
	503: true,
	504: true,
}

var transientMarkers = []string{
	"econnreset",
	"econnrefused",
	"etimedout",
	"enotfound",
	"eai_again",
	"epipe",
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"rate limit",
	"too many requests",
	"try again",
	"status 408",
	"status 429",
	"status 502",
	"status 503",
	"status 504",
}

type statusCoder interface {
	StatusCode() int
}

// IsTransient is the default retry predicate: network failures, timeouts,
// throttling and gateway errors are worth another attempt, everything else is
// not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var fatal FatalError
	if errors.As(err, &fatal) && fatal.IsFatal() {
		return false
	}

	var marked *retryableError
	if errors.As(err, &marked) {
		return true
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) && transientStatus[sc.StatusCode()] {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
