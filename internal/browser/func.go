package browser

import (
	"context"
	"errors"
	"sync/atomic"
)

// PageFunc renders url to HTML without a real browser.
type PageFunc func(ctx context.Context, url string) (string, error)

// FuncLauncher launches sessions backed by a PageFunc. It serves offline
// runs and tests.
type FuncLauncher struct {
	Render  PageFunc
	closed  atomic.Int64
	scrolls atomic.Int64
}

// Closed counts sessions that have been closed.
func (l *FuncLauncher) Closed() int64 { return l.closed.Load() }

// Scrolls counts Scroll calls across all sessions.
func (l *FuncLauncher) Scrolls() int64 { return l.scrolls.Load() }

func (l *FuncLauncher) Launch(ctx context.Context) (Session, error) {
	if l.Render == nil {
		return nil, errors.New("no render func")
	}
	return &funcSession{launcher: l}, nil
}

type funcSession struct {
	launcher *FuncLauncher
	html     string
}

func (s *funcSession) Navigate(ctx context.Context, url string) error {
	h, err := s.launcher.Render(ctx, url)
	if err != nil {
		return err
	}
	s.html = h
	return nil
}

func (s *funcSession) Scroll(ctx context.Context, _ ScrollOptions) error {
	s.launcher.scrolls.Add(1)
	return ctx.Err()
}

func (s *funcSession) Evaluate(context.Context, string, any) error {
	return errors.New("evaluate not supported")
}

func (s *funcSession) HTML(ctx context.Context) (string, error) {
	return s.html, ctx.Err()
}

func (s *funcSession) Close() error {
	s.launcher.closed.Add(1)
	return nil
}
