// Package browser provides pooled, explicitly scoped scriptable browser
// sessions used for rendered discovery, rendered extraction and anti-bot
// bypass.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// Session is one isolated browser tab. Sessions are never shared between
// concurrent tasks.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Scroll scrolls to the bottom until the page height stops growing.
	Scroll(ctx context.Context, opts ScrollOptions) error
	Evaluate(ctx context.Context, script string, out any) error
	// HTML returns the rendered DOM.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts new sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// ScrollOptions bound infinite-scroll harvesting. Zero fields take the
// defaults; a negative MaxAttempts disables scrolling.
type ScrollOptions struct {
	MaxAttempts int
	Pause       time.Duration
}

func (o ScrollOptions) withDefaults() ScrollOptions {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 10
	}
	if o.Pause <= 0 {
		o.Pause = 2 * time.Second
	}
	return o
}

// ErrUnavailable is returned when no launcher is configured.
var ErrUnavailable = fmt.Errorf("%w: browser unavailable", corpus.ErrRender)

// Pool limits how many sessions run at once. Each With call gets a fresh
// session that is closed on every exit path.
type Pool struct {
	launcher Launcher
	sem      *semaphore.Weighted

	invocations atomic.Int64
	active      atomic.Int64
}

// NewPool returns a pool of at most size concurrent sessions. A nil
// launcher yields a pool that always reports ErrUnavailable.
func NewPool(l Launcher, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{launcher: l, sem: semaphore.NewWeighted(int64(size))}
}

// Available reports whether sessions can be launched.
func (p *Pool) Available() bool { return p != nil && p.launcher != nil }

// Invocations counts sessions launched over the pool's lifetime.
func (p *Pool) Invocations() int64 {
	if p == nil {
		return 0
	}
	return p.invocations.Load()
}

// Active returns the number of sessions currently held.
func (p *Pool) Active() int64 {
	if p == nil {
		return 0
	}
	return p.active.Load()
}

// With acquires a session, runs fn and releases it. Errors and panics from
// fn are reported as corpus.ErrRender.
func (p *Pool) With(ctx context.Context, fn func(Session) error) (err error) {
	if !p.Available() {
		return ErrUnavailable
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: acquire session: %w", corpus.ErrRender, err)
	}
	defer p.sem.Release(1)

	p.invocations.Add(1)
	s, err := p.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("%w: launch: %w", corpus.ErrRender, err)
	}
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		if cerr := s.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("browser session close failed")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", corpus.ErrRender, r)
		}
	}()
	if err := fn(s); err != nil {
		if errors.Is(err, corpus.ErrRender) {
			return err
		}
		return fmt.Errorf("%w: %w", corpus.ErrRender, err)
	}
	return nil
}

// Render navigates to url, scrolls until the page height settles and
// returns the rendered HTML.
func (p *Pool) Render(ctx context.Context, url string, opts ScrollOptions) (string, error) {
	opts = opts.withDefaults()
	var html string
	err := p.With(ctx, func(s Session) error {
		if err := s.Navigate(ctx, url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if opts.MaxAttempts > 0 {
			if err := s.Scroll(ctx, opts); err != nil {
				return fmt.Errorf("scroll %s: %w", url, err)
			}
		}
		h, err := s.HTML(ctx)
		if err != nil {
			return fmt.Errorf("read dom %s: %w", url, err)
		}
		html = h
		return nil
	})
	return html, err
}
