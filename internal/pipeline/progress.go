package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocorpus/internal/metrics"
)

// Progress counts the tasks of one batch. Counters only grow and may be read
// from any goroutine while workers update them.
type Progress struct {
	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pending returns tasks neither completed nor failed.
func (s Snapshot) Pending() int64 {
	if p := s.Total - s.Completed - s.Failed; p > 0 {
		return p
	}
	return 0
}

// Add schedules n more tasks.
func (p *Progress) Add(n int) {
	if n > 0 {
		p.total.Add(int64(n))
	}
}

// Done records a finished task.
func (p *Progress) Done(ok bool) {
	if ok {
		p.completed.Add(1)
		return
	}
	p.failed.Add(1)
}

// Snapshot reads the counters.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{Total: p.total.Load(), Completed: p.completed.Load(), Failed: p.failed.Load()}
}

// Report logs the counters and mirrors them into m every interval until the
// returned stop function is called. stop emits a final update and waits for
// the reporter to exit.
func (p *Progress) Report(ctx context.Context, interval time.Duration, m *metrics.Metrics) (stop func()) {
	publish := func(final bool) {
		s := p.Snapshot()
		m.SetProgress(s.Total, s.Completed, s.Failed)
		ev := log.Debug()
		if final {
			ev = log.Info()
		}
		ev.Int64("total", s.Total).Int64("completed", s.Completed).Int64("failed", s.Failed).
			Int64("pending", s.Pending()).Msg("progress")
	}
	if interval <= 0 {
		return func() { publish(true) }
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				publish(false)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			publish(true)
		})
	}
}
