//go:build unix

package heartbeat

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_WatchSignals(t *testing.T) {
	fs := &fakeStore{}
	g, exits, _ := newTestGuard(fs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.WatchSignals(ctx)
	// Give signal.Notify a moment to register before delivery.
	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	assert.Eventually(t, func() bool { return exits.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.Contains(t, *fs.lastPatch(t).ErrorMessage, "worker terminated by signal")
}
