package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("download: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain", errors.New("404 not found"), false},
		{"econnreset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), true},
		{"econnrefused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"message pattern", errors.New("TLS handshake timeout"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"ECONNRESET", "socket hang up", "Target closed"}

	assert.True(t, MatchesAny("read ECONNRESET", patterns))
	assert.True(t, MatchesAny("Error: SOCKET HANG UP", patterns))
	assert.True(t, MatchesAny("protocol error: target closed.", patterns))
	assert.False(t, MatchesAny("invalid credentials", patterns))
	assert.False(t, MatchesAny("", patterns))
	assert.False(t, MatchesAny("anything", []string{""}))
	assert.False(t, MatchesAny("anything", nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner, 500)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
	assert.Equal(t, 500, te.StatusCode)
}
