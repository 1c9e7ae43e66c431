// Package heartbeat keeps a running job's liveness timestamp current and
// routes process-fatal faults to a failed job record.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Toucher refreshes a job's heartbeat timestamp.
type Toucher interface {
	Touch(ctx context.Context, jobID string) error
}

// Heartbeat touches a job on a fixed interval until stopped. It runs
// independently of pipeline progress.
type Heartbeat struct {
	Store    Toucher
	JobID    string
	Interval time.Duration
	// OnPanic receives a panic from the beat loop. Nil re-panics.
	OnPanic func(any)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Heartbeat. Non-positive intervals default to 20s.
func New(st Toucher, jobID string, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &Heartbeat{Store: st, JobID: jobID, Interval: interval}
}

// Start beats once immediately and then every Interval. Calling Start on a
// running heartbeat is a no-op.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go h.loop(ctx, h.done)
}

// Stop halts the heartbeat and waits for the loop to exit. It is safe to
// call more than once.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	// done closes before the hook runs; the hook may call Stop.
	defer h.recoverPanic()
	defer close(done)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, h.Interval)
	defer cancel()
	if err := h.Store.Touch(tctx, h.JobID); err != nil && ctx.Err() == nil {
		zap.L().Warn("heartbeat: touch failed",
			zap.String("job_id", h.JobID),
			zap.Error(err),
		)
	}
}

func (h *Heartbeat) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	if h.OnPanic == nil {
		panic(r)
	}
	h.OnPanic(r)
}
