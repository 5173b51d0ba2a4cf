package ai

import (
	"context"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: errors.Wrap(timeoutError{}, "post"), want: true},
		{name: "refused", err: errors.Wrap(syscall.ECONNREFUSED, "dial"), want: true},
		{name: "reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: true},
		{name: "unexpected eof", err: errors.Wrap(io.ErrUnexpectedEOF, "read body"), want: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "api.example"}, want: true},
		{name: "plain", err: errors.New("bad request"), want: false},
		{name: "cancelled", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNetworkError(tt.err))
		})
	}
}
