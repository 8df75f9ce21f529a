package recognizer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"docscan/internal/domain"
	"docscan/internal/layout"
	"docscan/internal/port"
)

type callOutcome struct {
	res *domain.BackendResult
	err error
}

// Invoke runs one backend call under its own timeout and always returns a
// result; failures are carried in Result.Err. The call runs in a separate
// goroutine so a backend that ignores its context cannot hold the caller past
// the deadline.
func Invoke(ctx context.Context, b port.RecognitionBackend, page *domain.Page, timeout time.Duration) *domain.BackendResult {
	name := b.Name()
	start := time.Now()

	if !b.Supports(page.MediaType) {
		return &domain.BackendResult{
			Backend: name,
			Err: domain.NewRecognitionError(domain.ErrorKindInitialization, name,
				fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, page.MediaType)),
		}
	}

	if err := ctx.Err(); err != nil {
		return &domain.BackendResult{Backend: name, Err: Classify(name, err)}
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ch := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callOutcome{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		res, err := b.Recognize(callCtx, page)
		ch <- callOutcome{res: res, err: err}
	}()

	var out callOutcome
	select {
	case out = <-ch:
	case <-callCtx.Done():
		out = callOutcome{err: callCtx.Err()}
	}
	elapsed := time.Since(start)

	if out.err == nil && out.res == nil {
		out.err = ErrNilResult
	}
	if out.err != nil {
		return &domain.BackendResult{Backend: name, Duration: elapsed, Err: Classify(name, out.err)}
	}

	res := sanitize(out.res)
	res.Backend = name
	res.Duration = elapsed
	if strings.TrimSpace(res.Text) == "" && len(res.Tokens) == 0 {
		res.Err = domain.NewRecognitionError(domain.ErrorKindProcessing, name, ErrNoText)
	}
	return res
}

// sanitize copies a backend result, clamping token confidences into [0,1] and
// filling Text from the tokens when a backend left it empty.
func sanitize(in *domain.BackendResult) *domain.BackendResult {
	out := &domain.BackendResult{Text: in.Text}
	out.Tokens = make([]domain.Token, 0, len(in.Tokens))
	for _, t := range in.Tokens {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		t.Confidence = clamp01(t.Confidence)
		out.Tokens = append(out.Tokens, t)
	}
	if strings.TrimSpace(out.Text) == "" && len(out.Tokens) > 0 {
		out.Text = layout.Text(out.Tokens)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
