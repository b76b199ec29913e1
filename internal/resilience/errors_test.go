package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{"nil", nil, FailureUnknown},
		{"status", &statusErr{code: 503}, FailureRejected},
		{"wrapped status", fmt.Errorf("upload: %w", &statusErr{code: 400}), FailureRejected},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), FailureTimeout},
		{"net timeout", timeoutErr{}, FailureTimeout},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), FailureConnection},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), FailureConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.imgur.com"}, FailureConnection},
		{"other", errors.New("open page_1.png: no such file"), FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailure_String(t *testing.T) {
	if FailureRejected.String() != "rejected" {
		t.Errorf("unexpected %q", FailureRejected.String())
	}
	if Failure(99).String() != "unexpected" {
		t.Errorf("unexpected %q", Failure(99).String())
	}
}
