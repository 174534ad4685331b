package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

// Bypasser renders challenged pages in a real browser and waits for the
// challenge to clear. It implements fetch.Bypasser.
type Bypasser struct {
	Pool *Pool
	// Wait bounds how long to poll for the challenge to clear.
	Wait time.Duration
	// Poll is the interval between DOM checks.
	Poll time.Duration
}

func (b *Bypasser) Bypass(ctx context.Context, url string) (*fetch.Response, error) {
	wait := b.Wait
	if wait <= 0 {
		wait = 15 * time.Second
	}
	poll := b.Poll
	if poll <= 0 {
		poll = time.Second
	}
	var html string
	err := b.Pool.With(ctx, func(s Session) error {
		if err := s.Navigate(ctx, url); err != nil {
			return err
		}
		deadline := time.Now().Add(wait)
		for {
			h, err := s.HTML(ctx)
			if err != nil {
				return err
			}
			if !fetch.DetectChallenge(http.StatusOK, nil, []byte(h)) {
				html = h
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("%w: challenge did not clear", corpus.ErrBlocked)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(poll):
			}
		}
	})
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	return &fetch.Response{
		URL:         url,
		FinalURL:    url,
		Status:      http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Header:      h,
		Body:        []byte(html),
	}, nil
}
