package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/store"
)

type fakeStore struct {
	touches   atomic.Int32
	touchErr  error
	touchBoom bool
	mu        sync.Mutex
	patches   []store.JobPatch
	updateErr error
}

func (f *fakeStore) Touch(context.Context, string) error {
	f.touches.Add(1)
	if f.touchBoom {
		panic("store driver crashed")
	}
	return f.touchErr
}

func (f *fakeStore) UpdateJob(_ context.Context, _ string, p store.JobPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, p)
	return f.updateErr
}

func (f *fakeStore) lastPatch(t *testing.T) store.JobPatch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.patches)
	return f.patches[len(f.patches)-1]
}

func TestHeartbeat_TouchesUntilStopped(t *testing.T) {
	fs := &fakeStore{}
	hb := New(fs, "job-1", 5*time.Millisecond)
	hb.Start(context.Background())
	hb.Start(context.Background()) // no second loop

	assert.Eventually(t, func() bool { return fs.touches.Load() >= 3 }, time.Second, time.Millisecond)
	hb.Stop()
	n := fs.touches.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, fs.touches.Load())

	hb.Stop()
}

func TestHeartbeat_TouchErrorsAreNotFatal(t *testing.T) {
	fs := &fakeStore{touchErr: errors.New("store unreachable")}
	hb := New(fs, "job-1", 2*time.Millisecond)
	hb.Start(context.Background())
	assert.Eventually(t, func() bool { return fs.touches.Load() >= 3 }, time.Second, time.Millisecond)
	hb.Stop()
}

func TestHeartbeat_TouchPanicFailsJob(t *testing.T) {
	fs := &fakeStore{touchBoom: true}
	g, exits, hb := newTestGuard(fs)
	hb.OnPanic = g.Panic
	hb.Start(context.Background())

	assert.Eventually(t, func() bool { return exits.Load() == 1 }, time.Second, time.Millisecond)
	p := fs.lastPatch(t)
	assert.Equal(t, model.JobStatusFailed, *p.Status)
	assert.Equal(t, "worker panic: store driver crashed", *p.ErrorMessage)
	hb.Stop()
}

func TestHeartbeat_DefaultInterval(t *testing.T) {
	assert.Equal(t, 20*time.Second, New(&fakeStore{}, "j", 0).Interval)
}

func newTestGuard(fs *fakeStore) (*Guard, *atomic.Int32, *Heartbeat) {
	hb := New(fs, "job-1", time.Hour)
	g := NewGuard(fs, "job-1", hb)
	var exits atomic.Int32
	g.Exit = func(code int) { exits.Add(int32(code)) }
	return g, &exits, hb
}

func TestGuard_FailMarksJobAndExitsOnce(t *testing.T) {
	fs := &fakeStore{}
	g, exits, hb := newTestGuard(fs)
	hb.Start(context.Background())

	g.Fail(errors.New("acquisition engine: connection reset"))
	g.Fail(errors.New("second fault"))

	assert.Equal(t, int32(1), exits.Load())
	p := fs.lastPatch(t)
	require.NotNil(t, p.Status)
	assert.Equal(t, model.JobStatusFailed, *p.Status)
	assert.Equal(t, "acquisition engine: connection reset", *p.ErrorMessage)
	assert.Len(t, fs.patches, 1)

	// Heartbeat stopped: no loop left to stop.
	hb.mu.Lock()
	assert.Nil(t, hb.cancel)
	hb.mu.Unlock()
}

func TestGuard_ExitsEvenWhenUpdateFails(t *testing.T) {
	fs := &fakeStore{updateErr: errors.New("store down")}
	g, exits, _ := newTestGuard(fs)

	g.Fail(errors.New("boom"))
	assert.Equal(t, int32(1), exits.Load())
}

func TestGuard_RecoverConvertsPanic(t *testing.T) {
	fs := &fakeStore{}
	g, exits, _ := newTestGuard(fs)

	func() {
		defer g.Recover()
		panic("nil map write")
	}()

	assert.Equal(t, int32(1), exits.Load())
	assert.Equal(t, "worker panic: nil map write", *fs.lastPatch(t).ErrorMessage)
}

func TestGuard_GoRoutesErrorsAndPanics(t *testing.T) {
	fs := &fakeStore{}
	g, exits, _ := newTestGuard(fs)
	g.Go(func() error { return errors.New("unobserved failure") })
	assert.Eventually(t, func() bool { return exits.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "unobserved failure", *fs.lastPatch(t).ErrorMessage)

	fs2 := &fakeStore{}
	g2, exits2, _ := newTestGuard(fs2)
	g2.Go(func() error { panic(errors.New("index out of range")) })
	assert.Eventually(t, func() bool { return exits2.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "worker panic: index out of range", *fs2.lastPatch(t).ErrorMessage)
}

func TestGuard_GoSuccessDoesNotFail(t *testing.T) {
	fs := &fakeStore{}
	g, exits, _ := newTestGuard(fs)
	done := make(chan struct{})
	g.Go(func() error { close(done); return nil })
	<-done
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), exits.Load())
}
