package job

import (
	"math"
	"sync"
)

// Progress converts completed units of work into a job percentage. Each
// item counts twice, once per phase. The percentage stays below 100 while
// the job runs and never goes down within one process.
type Progress struct {
	mu        sync.Mutex
	total     int
	processed int
	last      int
}

// NewProgress starts a tracker for total items with done units already
// complete.
func NewProgress(total, done int) *Progress {
	p := &Progress{total: total, processed: done}
	p.last = p.compute()
	return p
}

// Advance records one finished unit and returns the new percentage.
func (p *Progress) Advance() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if pct := p.compute(); pct > p.last {
		p.last = pct
	}
	return p.last
}

// Percent returns the current percentage.
func (p *Progress) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Progress) compute() int {
	if p.total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(p.processed) / float64(p.total*2) * 100))
	return min(99, max(pct, 0))
}
