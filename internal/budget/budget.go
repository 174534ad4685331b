package budget

import (
	"sync/atomic"
)

// Pages is a page budget shared by every strategy of one discovery run.
// Take is safe for concurrent use. A non-positive max means unlimited.
type Pages struct {
	max  int64
	used atomic.Int64
}

// NewPages returns a budget allowing max page visits.
func NewPages(max int) *Pages {
	return &Pages{max: int64(max)}
}

// Take reserves one page. It returns false once the budget is spent and
// never over-reserves.
func (p *Pages) Take() bool {
	if p == nil {
		return true
	}
	if p.max <= 0 {
		p.used.Add(1)
		return true
	}
	for {
		cur := p.used.Load()
		if cur >= p.max {
			return false
		}
		if p.used.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns a page reserved by Take that was not actually visited,
// such as a probe that answered 404.
func (p *Pages) Release() {
	if p == nil {
		return
	}
	for {
		cur := p.used.Load()
		if cur <= 0 || p.used.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Used returns the number of pages taken so far.
func (p *Pages) Used() int {
	if p == nil {
		return 0
	}
	return int(p.used.Load())
}

// Max returns the configured limit (0 when unlimited).
func (p *Pages) Max() int {
	if p == nil || p.max <= 0 {
		return 0
	}
	return int(p.max)
}

// Remaining returns pages left, or -1 when unlimited.
func (p *Pages) Remaining() int {
	if p == nil || p.max <= 0 {
		return -1
	}
	r := p.max - p.used.Load()
	if r < 0 {
		r = 0
	}
	return int(r)
}

// Exhausted reports whether no page can be taken anymore.
func (p *Pages) Exhausted() bool {
	return p.Remaining() == 0
}
