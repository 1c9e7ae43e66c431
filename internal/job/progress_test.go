package job

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_TwoPhaseScale(t *testing.T) {
	p := NewProgress(2, 0)
	assert.Equal(t, 0, p.Percent())
	assert.Equal(t, 25, p.Advance())
	assert.Equal(t, 50, p.Advance())
	assert.Equal(t, 75, p.Advance())
	// All four units done still reads 99 until the job is finalized.
	assert.Equal(t, 99, p.Advance())
	assert.Equal(t, 99, p.Advance())
}

func TestProgress_ResumeStartsFromDoneWork(t *testing.T) {
	p := NewProgress(10, 4)
	assert.Equal(t, 20, p.Percent())
	assert.Equal(t, 25, p.Advance())
}

func TestProgress_Rounding(t *testing.T) {
	p := NewProgress(3, 0)
	assert.Equal(t, 17, p.Advance()) // 16.67
	assert.Equal(t, 33, p.Advance())
}

func TestProgress_ZeroItems(t *testing.T) {
	p := NewProgress(0, 0)
	assert.Equal(t, 0, p.Advance())
}

func TestProgress_ConcurrentMonotonic(t *testing.T) {
	p := NewProgress(100, 0)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for range 25 {
				pct := p.Advance()
				assert.GreaterOrEqual(t, pct, last)
				last = pct
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 99, p.Percent())
}
