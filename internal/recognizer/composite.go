package recognizer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docscan/internal/domain"
	"docscan/internal/port"
)

// Options configures the composite recognizer.
type Options struct {
	// MinTokenConfidence is the mean token confidence (0..1) at which
	// sequential mode stops trying further backends.
	MinTokenConfidence float64
	// MaxParallel bounds concurrent backend calls in parallel mode.
	MaxParallel int
	// OverlapIoU is the box overlap at which tokens from different
	// backends are treated as readings of the same region.
	OverlapIoU float64
}

// Run is the outcome of one composite recognition: the merged or selected
// result plus one entry per backend invocation, in invocation order.
type Run struct {
	Result   *domain.BackendResult
	Attempts []*domain.BackendResult
}

// Composite runs a list of backends under a sequential-fallback or
// parallel-vote policy. It holds no per-request state.
type Composite struct {
	opts Options
	log  *slog.Logger
}

// NewComposite creates a Composite recognizer.
func NewComposite(opts Options, log *slog.Logger) *Composite {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.OverlapIoU <= 0 {
		opts.OverlapIoU = 0.3
	}
	return &Composite{opts: opts, log: log}
}

// Recognize runs backends against page according to mode. timeout applies to
// each backend call; ctx carries the overall deadline. When every backend
// fails, Run.Result is a failed result; no success is ever synthesized.
func (c *Composite) Recognize(ctx context.Context, page *domain.Page, backends []port.RecognitionBackend, mode domain.RecognitionMode, timeout time.Duration) *Run {
	if len(backends) == 0 {
		return &Run{Result: &domain.BackendResult{
			Err: domain.NewRecognitionError(domain.ErrorKindInitialization, "", domain.ErrNoBackends),
		}}
	}
	if mode == domain.ModeParallel && len(backends) > 1 {
		return c.parallel(ctx, page, backends, timeout)
	}
	return c.sequential(ctx, page, backends, timeout)
}

func (c *Composite) sequential(ctx context.Context, page *domain.Page, backends []port.RecognitionBackend, timeout time.Duration) *Run {
	run := &Run{}
	var best *domain.BackendResult
	for _, b := range backends {
		// Past the deadline only the first backend is tried, so the run still
		// names a real attempt.
		if ctx.Err() != nil && len(run.Attempts) > 0 {
			break
		}
		res := Invoke(ctx, b, page, timeout)
		run.Attempts = append(run.Attempts, res)
		if res.Failed() {
			c.log.Info("recognizer: backend failed", "backend", res.Backend, "kind", res.Err.Kind, "error", res.Err.Err)
			continue
		}
		mean := res.MeanConfidence()
		if best == nil || mean > best.MeanConfidence() {
			best = res
		}
		if mean >= c.opts.MinTokenConfidence {
			break
		}
		c.log.Info("recognizer: below token confidence floor", "backend", res.Backend, "mean_confidence", mean)
	}
	if best != nil {
		run.Result = best
		return run
	}
	run.Result = failedResult(ctx, run.Attempts)
	return run
}

func (c *Composite) parallel(ctx context.Context, page *domain.Page, backends []port.RecognitionBackend, timeout time.Duration) *Run {
	start := time.Now()
	results := make([]*domain.BackendResult, len(backends))

	var g errgroup.Group
	g.SetLimit(c.opts.MaxParallel)
	for i, b := range backends {
		g.Go(func() error {
			results[i] = Invoke(ctx, b, page, timeout)
			return nil
		})
	}
	_ = g.Wait()

	run := &Run{Attempts: results}
	var ok []*domain.BackendResult
	for _, res := range results {
		if res.Failed() {
			c.log.Info("recognizer: backend failed", "backend", res.Backend, "kind", res.Err.Kind, "error", res.Err.Err)
			continue
		}
		ok = append(ok, res)
	}
	switch len(ok) {
	case 0:
		run.Result = failedResult(ctx, results)
	case 1:
		run.Result = ok[0]
	default:
		merged := Vote(ok, c.opts.OverlapIoU)
		merged.Duration = time.Since(start)
		run.Result = merged
	}
	return run
}

// failedResult summarizes a run in which no backend succeeded. Resource
// exhaustion wins over other kinds so the caller can degrade and retry.
func failedResult(ctx context.Context, attempts []*domain.BackendResult) *domain.BackendResult {
	var names []string
	var last *domain.RecognitionError
	for _, a := range attempts {
		names = append(names, a.Backend)
		if a.Err == nil {
			continue
		}
		if last == nil || last.Kind != domain.ErrorKindResourceExhausted {
			last = a.Err
		}
	}
	if last == nil {
		err := ctx.Err()
		if err == nil {
			err = errors.New("no backend attempted")
		}
		last = domain.NewRecognitionError(domain.ErrorKindTimeout, "", err)
	}
	return &domain.BackendResult{Backend: strings.Join(names, "+"), Err: last}
}
