package resilience

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("greylisted"), 451), true},
		{"wrapped transient", fmt.Errorf("send: %w", NewTransientError(errors.New("x"), 421)), true},
		{"dns timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, true},
		{"connection reset string", errors.New("read: connection reset by peer"), true},
		{"greylist string", errors.New("smtp: 451 greylisting in effect"), true},
		{"service unavailable", errors.New("421 service not available"), true},
		{"permanent rejection", errors.New("550 no such user"), false},
		{"plain error", errors.New("bad message"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientSMTPCode(t *testing.T) {
	for _, code := range []int{421, 450, 451, 452} {
		if !IsTransientSMTPCode(code) {
			t.Errorf("code %d should be transient", code)
		}
	}
	for _, code := range []int{250, 550, 553, 554} {
		if IsTransientSMTPCode(code) {
			t.Errorf("code %d should not be transient", code)
		}
	}
}
