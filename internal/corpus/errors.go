package corpus

import (
	"context"
	"errors"
	"fmt"
)

// Failure classes. Callers wrap these with %w and test with errors.Is.
var (
	ErrFetch               = errors.New("fetch failed")
	ErrBlocked             = fmt.Errorf("%w: blocked by anti-bot challenge", ErrFetch)
	ErrParse               = errors.New("parse failed")
	ErrRender              = errors.New("render failed")
	ErrQualityTooLow       = errors.New("extraction quality too low")
	ErrUnsupportedDocument = errors.New("unsupported document")
	// ErrBudgetExhausted marks normal termination of a bounded run.
	ErrBudgetExhausted = errors.New("page budget exhausted")
)

// StageError attaches the failing source and stage to an error.
type StageError struct {
	Source string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Reason returns a short, stable label for err suitable for logs and skip
// reports.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrFetch):
		return "fetch_error"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrRender):
		return "render_error"
	case errors.Is(err, ErrQualityTooLow):
		return "quality_too_low"
	case errors.Is(err, ErrUnsupportedDocument):
		return "unsupported_document"
	case errors.Is(err, ErrBudgetExhausted):
		return "budget_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
