package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeLauncher starts one headless Chrome process per session.
type ChromeLauncher struct {
	ExecPath  string
	UserAgent string
	Headless  bool
}

// Launch starts Chrome and opens a blank tab.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	// The session outlives ctx; Close tears it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	s := &chromeSession{ctx: tabCtx, cancel: func() {
		cancelTab()
		cancelAlloc()
	}}

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()
	select {
	case <-ctx.Done():
		s.cancel()
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			s.cancel()
			return nil, err
		}
	}
	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by the caller's deadline and
// cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if dl, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(s.ctx, dl)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *chromeSession) Scroll(ctx context.Context, opts ScrollOptions) error {
	opts = opts.withDefaults()
	last := -1.0
	for i := 0; i < opts.MaxAttempts; i++ {
		var height float64
		err := s.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height))
		if err != nil {
			return err
		}
		if height == last {
			return nil
		}
		last = height
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Pause):
		}
	}
	return nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
