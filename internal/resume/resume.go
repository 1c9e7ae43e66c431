// Package resume reconciles a job's persisted progress with the work its
// input describes, so a restarted worker only redoes what is missing.
package resume

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/artifact"
	"github.com/sells-group/techpack-cli/internal/model"
	"github.com/sells-group/techpack-cli/internal/store"
)

// Plan is the remaining work for one worker run.
type Plan struct {
	// RemainingDownloads are keys to acquire, in input order.
	RemainingDownloads []string
	// VerifiedDownloads are recorded downloads whose artifact is still
	// present and fresh, and which still need extraction.
	VerifiedDownloads []string
	// Requeued are recorded downloads whose artifact went missing or stale.
	Requeued []string
	// Prior holds stored extraction results; these keys are done.
	Prior map[string]model.ExtractionResult

	order map[string]int
}

// Done reports how many units of work (downloads plus extractions) the
// plan starts with already complete.
func (p *Plan) Done() int {
	return len(p.VerifiedDownloads) + 2*len(p.Prior)
}

// ExtractionQueue returns the keys to extract: the given successful
// downloads plus every verified download, minus anything in Prior, in input
// order.
func (p *Plan) ExtractionQueue(successful []string) []string {
	want := make(map[string]bool, len(successful)+len(p.VerifiedDownloads))
	for _, k := range p.VerifiedDownloads {
		want[k] = true
	}
	for _, k := range successful {
		want[k] = true
	}

	queue := make([]string, 0, len(want))
	for k := range want {
		if _, done := p.Prior[k]; !done {
			queue = append(queue, k)
		}
	}
	sortByOrder(queue, p.order)
	return queue
}

// Controller builds plans from the job store and the artifact cache.
type Controller struct {
	Store store.Store
	Cache *artifact.Cache
}

// Reconcile computes the plan for job over keys. Recorded downloads whose
// artifact is missing or stale are removed from the job record and put back
// on the download queue. Running it twice without intervening progress
// yields the same plan.
func (c *Controller) Reconcile(ctx context.Context, job *model.Job, keys []string) (*Plan, error) {
	log := zap.L().With(zap.String("job_id", job.ID))

	plan := &Plan{
		Prior: make(map[string]model.ExtractionResult),
		order: make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		if _, dup := plan.order[k]; !dup {
			plan.order[k] = i
		}
	}

	for _, k := range keys {
		if _, seen := plan.Prior[k]; seen {
			continue
		}
		if res, ok := job.PartialExtractions[k]; ok && job.Extracted(k) {
			plan.Prior[k] = res
			continue
		}
		if !job.Downloaded(k) {
			plan.RemainingDownloads = append(plan.RemainingDownloads, k)
			continue
		}

		a, fresh, err := c.Cache.Fresh(ctx, k)
		if err != nil {
			return nil, eris.Wrapf(err, "resume: verify artifact %s", k)
		}
		if fresh {
			plan.VerifiedDownloads = append(plan.VerifiedDownloads, k)
			continue
		}
		reason := "missing"
		if a != nil {
			reason = "stale"
		}
		log.Warn("resume: recorded download no longer usable, requeueing",
			zap.String("key", k),
			zap.String("reason", reason),
		)
		plan.Requeued = append(plan.Requeued, k)
		plan.RemainingDownloads = append(plan.RemainingDownloads, k)
	}

	if len(plan.Requeued) > 0 {
		if err := c.Store.RemoveCompletedDownloads(ctx, job.ID, plan.Requeued); err != nil {
			return nil, eris.Wrap(err, "resume: correct completed downloads")
		}
	}

	log.Info("resume: plan ready",
		zap.Int("keys", len(keys)),
		zap.Int("remaining_downloads", len(plan.RemainingDownloads)),
		zap.Int("verified_downloads", len(plan.VerifiedDownloads)),
		zap.Int("requeued", len(plan.Requeued)),
		zap.Int("prior_extractions", len(plan.Prior)),
	)
	return plan, nil
}

func sortByOrder(keys []string, order map[string]int) {
	slices.SortFunc(keys, func(a, b string) int {
		return order[a] - order[b]
	})
}
