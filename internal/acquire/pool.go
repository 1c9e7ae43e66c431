package acquire

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/techpack-cli/internal/artifact"
	"github.com/sells-group/techpack-cli/internal/model"
)

// Pool acquires artifacts for many keys concurrently.
type Pool struct {
	Engine      Engine
	Cache       *artifact.Cache
	Parallelism int
	// OnPanic receives a panic that escapes a worker outside item
	// acquisition (session setup, recovery, close or the callback). Nil
	// re-panics.
	OnPanic func(any)
}

// Run acquires every key and returns one result per key in input order.
// onDone is called after each item, one call at a time. A failing or
// panicking item never stops the pool.
func (p *Pool) Run(ctx context.Context, keys []string, onDone func(model.AcquisitionResult)) []model.AcquisitionResult {
	if len(keys) == 0 {
		return nil
	}
	workers := min(max(p.Parallelism, 1), len(keys))
	queue := NewQueue(keys)

	var mu sync.Mutex
	results := make([]model.AcquisitionResult, 0, len(keys))
	record := func(r model.AcquisitionResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
		if onDone != nil {
			onDone(r)
		}
	}

	zap.L().Info("acquire: starting pool",
		zap.Int("items", len(keys)),
		zap.Int("workers", workers),
	)

	var g errgroup.Group
	for id := range workers {
		g.Go(func() error {
			defer p.recoverPanic()
			p.work(ctx, id, queue, record)
			return nil
		})
	}
	_ = g.Wait()

	// Keys left unclaimed because every session failed to open, or the
	// context ended, are reported as failures.
	if n := queue.Remaining(); n > 0 {
		zap.L().Warn("acquire: pool stopped with unclaimed items",
			zap.Int("unclaimed", n),
			zap.Bool("canceled", ctx.Err() != nil),
		)
	}
	for {
		key, ok := queue.Claim()
		if !ok {
			break
		}
		reason := "no acquisition session available"
		if ctx.Err() != nil {
			reason = ctx.Err().Error()
		}
		record(model.AcquisitionResult{Key: key, Error: reason})
	}

	order := make(map[string]int, len(keys))
	for i, k := range keys {
		order[k] = i
	}
	slices.SortFunc(results, func(a, b model.AcquisitionResult) int {
		return order[a.Key] - order[b.Key]
	})
	return results
}

func (p *Pool) work(ctx context.Context, id int, queue *Queue, record func(model.AcquisitionResult)) {
	log := zap.L().With(zap.Int("worker", id))

	sess, err := p.Engine.NewSession(ctx)
	if err != nil {
		log.Error("acquire: open session failed", zap.Error(err))
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("acquire: close session failed", zap.Error(err))
		}
	}()

	for ctx.Err() == nil {
		key, ok := queue.Claim()
		if !ok {
			return
		}
		res := p.acquireSafe(ctx, sess, key)
		if res.Success {
			log.Debug("acquire: item done", zap.String("key", key), zap.Bool("skipped", res.Skipped))
		} else {
			log.Warn("acquire: item failed", zap.String("key", key), zap.String("error", res.Error))
			if err := sess.Recover(ctx); err != nil {
				log.Warn("acquire: session recover failed", zap.Error(err))
			}
		}
		record(res)
	}
}

func (p *Pool) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	if p.OnPanic == nil {
		panic(r)
	}
	p.OnPanic(r)
}

func (p *Pool) acquireSafe(ctx context.Context, sess Session, key string) (res model.AcquisitionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.AcquisitionResult{Key: key, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return p.acquire(ctx, sess, key)
}

func (p *Pool) acquire(ctx context.Context, sess Session, key string) model.AcquisitionResult {
	a, fresh, err := p.Cache.Fresh(ctx, key)
	if err != nil {
		zap.L().Warn("acquire: cache check failed, downloading", zap.String("key", key), zap.Error(err))
	}
	if fresh {
		return model.AcquisitionResult{Key: key, Success: true, Skipped: true, Artifact: a}
	}

	data, err := sess.Acquire(ctx, key)
	if err != nil {
		return model.AcquisitionResult{Key: key, Error: err.Error()}
	}
	saved, err := p.Cache.Store.Save(ctx, key, data)
	if err != nil {
		return model.AcquisitionResult{Key: key, Error: err.Error()}
	}
	return model.AcquisitionResult{Key: key, Success: true, Artifact: saved}
}
