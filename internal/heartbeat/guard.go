package heartbeat

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/store"
)

// Updater applies a partial update to a job record.
type Updater interface {
	UpdateJob(ctx context.Context, jobID string, patch store.JobPatch) error
}

// Guard turns process-fatal faults into a failed job record and a
// non-zero exit. Only the first fault is handled.
type Guard struct {
	Store     Updater
	JobID     string
	Heartbeat *Heartbeat
	// Exit terminates the process; os.Exit unless replaced.
	Exit func(code int)
	// Timeout bounds the final job update.
	Timeout time.Duration

	once sync.Once
}

// NewGuard creates a Guard for jobID.
func NewGuard(st Updater, jobID string, hb *Heartbeat) *Guard {
	return &Guard{
		Store:     st,
		JobID:     jobID,
		Heartbeat: hb,
		Exit:      os.Exit,
		Timeout:   10 * time.Second,
	}
}

// Fail stops the heartbeat, marks the job failed with cause as the error
// message and exits with status 1. A failing job update is logged and
// does not prevent the exit.
func (g *Guard) Fail(cause error) {
	g.once.Do(func() {
		log := zap.L().With(zap.String("job_id", g.JobID))
		log.Error("worker: fatal fault", zap.Error(cause))

		if g.Heartbeat != nil {
			g.Heartbeat.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()
		failed := model.JobStatusFailed
		msg := cause.Error()
		if err := g.Store.UpdateJob(ctx, g.JobID, store.JobPatch{Status: &failed, ErrorMessage: &msg}); err != nil {
			log.Error("worker: could not mark job failed", zap.Error(err))
		}

		_ = zap.L().Sync()
		g.Exit(1)
	})
}

// Recover must be deferred directly. It converts a panic into Fail.
func (g *Guard) Recover() {
	if r := recover(); r != nil {
		g.Panic(r)
	}
}

// Panic fails the job with a value recovered elsewhere. Components that
// recover in their own goroutines take it as their panic hook.
func (g *Guard) Panic(r any) {
	g.Fail(panicError(r))
}

// Go runs fn in a new goroutine. A panic or a returned error fails the job.
func (g *Guard) Go(fn func() error) {
	go func() {
		defer g.Recover()
		if err := fn(); err != nil {
			g.Fail(err)
		}
	}()
}

// WatchSignals fails the job when the process receives SIGINT or SIGTERM.
// Watching ends when ctx is done.
func (g *Guard) WatchSignals(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			return eris.Errorf("worker terminated by signal %s", sig)
		case <-ctx.Done():
			return nil
		}
	})
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return eris.Wrap(err, "worker panic")
	}
	return eris.New(fmt.Sprintf("worker panic: %v", r))
}
