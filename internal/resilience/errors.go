package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// Failure classifies why a remote call failed. Classification only feeds
// logging; the retry policy treats every class the same.
type Failure int

const (
	// FailureUnknown is any other unexpected fault.
	FailureUnknown Failure = iota
	// FailureRejected is a non-success status from the remote host.
	FailureRejected
	// FailureTimeout is a deadline or network timeout.
	FailureTimeout
	// FailureConnection is a refused, reset, or unreachable connection.
	FailureConnection
)

func (f Failure) String() string {
	switch f {
	case FailureRejected:
		return "rejected"
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	default:
		return "unexpected"
	}
}

// StatusCoder is implemented by errors that carry a remote status code.
type StatusCoder interface {
	StatusCode() int
}

// Classify inspects err and reports its failure class.
func Classify(err error) Failure {
	if err == nil {
		return FailureUnknown
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return FailureRejected
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return FailureConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureConnection
	}

	return FailureUnknown
}
