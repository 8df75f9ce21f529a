// Package pipeline drives one document through preprocessing, recognition,
// extraction, validation and scoring, falling back across backend sets until
// a result scores high enough or the sets run out.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"docscan/internal/domain"
	"docscan/internal/port"
	"docscan/internal/recognizer"
)

// BackendResolver maps backend names to initialized backends.
type BackendResolver interface {
	Resolve(names []string) ([]port.RecognitionBackend, error)
}

// Recognizer runs one backend set against a page.
type Recognizer interface {
	Recognize(ctx context.Context, page *domain.Page, backends []port.RecognitionBackend, mode domain.RecognitionMode, timeout time.Duration) *recognizer.Run
}

// FieldExtractor turns a recognition result into candidate fields.
type FieldExtractor interface {
	Extract(res *domain.BackendResult) []domain.CandidateField
}

// FieldValidator attaches validation outcomes to fields.
type FieldValidator interface {
	Validate(fields []domain.CandidateField) []domain.CandidateField
}

// Scorer computes the confidence breakdown of a result and its fields.
type Scorer interface {
	Score(res *domain.BackendResult, fields []domain.CandidateField) domain.ConfidenceBreakdown
}

// Deps are the stage implementations used by the controller.
type Deps struct {
	Backends     BackendResolver
	Preprocessor port.Preprocessor
	Recognizer   Recognizer
	Extractor    FieldExtractor
	Validator    FieldValidator
	Scorer       Scorer
}

// Options tunes the controller.
type Options struct {
	// MaxParallel is the backend-set size in parallel mode.
	MaxParallel int
	// MinTokenConfidence is the mean token confidence (0..1) a sequential
	// result needs before its score can be accepted. Results below it are
	// kept as best-so-far while the next backend is tried.
	MinTokenConfidence float64
	// ShrinkFactor scales the page on the degrade-and-retry path.
	ShrinkFactor float64
	// Now is the clock stamped on outcomes.
	Now func() time.Time
}

// Controller is the pipeline state machine. It keeps no per-document state
// between calls and is safe for concurrent use.
type Controller struct {
	backends  BackendResolver
	pre       port.Preprocessor
	recognize Recognizer
	extractor FieldExtractor
	validator FieldValidator
	scorer    Scorer
	opts      Options
	log       *slog.Logger
}

// NewController creates a Controller.
func NewController(deps Deps, opts Options, log *slog.Logger) *Controller {
	if opts.ShrinkFactor <= 0 || opts.ShrinkFactor >= 1 {
		opts.ShrinkFactor = 0.5
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		backends:  deps.Backends,
		pre:       deps.Preprocessor,
		recognize: deps.Recognizer,
		extractor: deps.Extractor,
		validator: deps.Validator,
		scorer:    deps.Scorer,
		opts:      opts,
		log:       log,
	}
}

// candidate is a scored interpretation of one recognition result.
type candidate struct {
	result    *domain.BackendResult
	fields    []domain.CandidateField
	breakdown domain.ConfidenceBreakdown
}

// run is the state of one Process call.
type run struct {
	c     *Controller
	req   domain.ProcessingRequest
	state State

	page     *domain.Page
	work     *domain.Page
	sets     [][]port.RecognitionBackend
	set      int
	degraded bool

	result    *domain.BackendResult
	fields    []domain.CandidateField
	breakdown domain.ConfidenceBreakdown

	best     *candidate
	accepted bool
	chain    []domain.Attempt
}

// Process runs req to completion. Malformed requests return a REJECTED
// outcome together with an error; every other run returns a nil error and an
// outcome whose status is SUCCESS, PARTIAL or FAILED. The request deadline
// bounds the whole run, including backend calls in flight when it passes.
func (c *Controller) Process(ctx context.Context, req domain.ProcessingRequest) (*domain.ProcessingOutcome, error) {
	start := time.Now()
	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	r := &run{c: c, req: req, state: StateInit}
	if err := r.init(); err != nil {
		c.log.Info("pipeline: request rejected", "document_id", req.Document.ID, "error", err)
		return c.outcome(r, domain.StatusRejected, start), err
	}

	for r.state != StateDone {
		r.step(ctx)
	}

	status := domain.StatusFailed
	switch {
	case r.accepted:
		status = domain.StatusSuccess
	case r.best != nil:
		status = domain.StatusPartial
	}
	return c.outcome(r, status, start), nil
}

func (r *run) init() error {
	page, err := pageFor(r.req.Document)
	if err != nil {
		return err
	}
	backends, err := r.c.resolve(&r.req)
	if err != nil {
		return err
	}
	r.page = page
	r.sets = backendSets(backends, r.req.Mode, r.c.opts.MaxParallel)
	r.to(StatePreprocess)
	return nil
}

func (r *run) to(next State) {
	r.c.log.Debug("pipeline: transition",
		"document_id", r.req.Document.ID,
		"from", r.state,
		"to", next,
		"set", r.set,
	)
	r.state = next
}

// advance moves on to the next backend set with the undegraded page.
func (r *run) advance() {
	r.set++
	r.degraded = false
	r.work = r.page
	r.to(StateRecognize)
}

func (r *run) step(ctx context.Context) {
	c := r.c
	switch r.state {
	case StatePreprocess:
		r.page = c.pre.Normalize(ctx, r.page)
		r.work = r.page
		r.to(StateRecognize)

	case StateRecognize:
		// An expired deadline still records one attempt so the chain is
		// never empty.
		if r.set >= len(r.sets) || (ctx.Err() != nil && len(r.chain) > 0) {
			r.to(StateDone)
			return
		}
		res := r.recognizeSet(ctx)
		switch {
		case res.Usable():
			r.result = res
			r.to(StateExtract)
		case !r.degraded && domain.KindOf(res.Err) == domain.ErrorKindResourceExhausted:
			r.to(StateDegradeAndRetry)
		default:
			r.advance()
		}

	case StateDegradeAndRetry:
		shrunk, err := c.pre.Shrink(r.work, c.opts.ShrinkFactor)
		if err != nil {
			c.log.Info("pipeline: cannot degrade page", "document_id", r.req.Document.ID, "error", err)
			r.advance()
			return
		}
		r.work = shrunk
		r.degraded = true
		r.to(StateRecognize)

	case StateExtract:
		r.fields = c.extractor.Extract(r.result)
		r.to(StateValidate)

	case StateValidate:
		r.fields = c.validator.Validate(r.fields)
		r.to(StateScore)

	case StateScore:
		r.breakdown = c.scorer.Score(r.result, r.fields)
		if r.best == nil || r.breakdown.Score > r.best.breakdown.Score {
			r.best = &candidate{result: r.result, fields: r.fields, breakdown: r.breakdown}
		}
		if !r.meetsTokenFloor() {
			c.log.Info("pipeline: below token confidence floor",
				"document_id", r.req.Document.ID,
				"backend", r.result.Backend,
				"mean_confidence", r.result.MeanConfidence(),
			)
			r.advance()
			return
		}
		if r.breakdown.Score >= r.req.MinConfidence {
			r.accepted = true
			r.to(StateDone)
			return
		}
		c.log.Info("pipeline: below minimum confidence",
			"document_id", r.req.Document.ID,
			"backend", r.result.Backend,
			"score", r.breakdown.Score,
		)
		r.advance()

	default:
		r.to(StateDone)
	}
}

// meetsTokenFloor reports whether the current result may be accepted. The
// floor applies to sequential mode only; a parallel vote is judged by score.
func (r *run) meetsTokenFloor() bool {
	if r.req.Mode == domain.ModeParallel {
		return true
	}
	return r.result.MeanConfidence() >= r.c.opts.MinTokenConfidence
}

// recognizeSet runs the current set and appends its attempts to the chain.
func (r *run) recognizeSet(ctx context.Context) *domain.BackendResult {
	startedAt := r.c.opts.Now()
	out := r.c.recognize.Recognize(ctx, r.work, r.sets[r.set], r.req.Mode, r.req.BackendTimeout)
	attempts := out.Attempts
	if len(attempts) == 0 {
		attempts = []*domain.BackendResult{out.Result}
	}
	for _, a := range attempts {
		r.chain = append(r.chain, r.attempt(a, startedAt))
	}
	return out.Result
}

func (r *run) attempt(res *domain.BackendResult, startedAt time.Time) domain.Attempt {
	a := domain.Attempt{
		Backend:        res.Backend,
		Set:            r.set,
		Degraded:       r.degraded,
		StartedAt:      startedAt,
		DurationMS:     res.Duration.Milliseconds(),
		MeanConfidence: res.MeanConfidence(),
		Tokens:         len(res.Tokens),
	}
	if res.Err != nil {
		a.ErrorKind = res.Err.Kind
		a.Error = res.Err.Error()
		a.MeanConfidence = 0
		a.Tokens = 0
	}
	return a
}

func (c *Controller) outcome(r *run, status domain.ProcessingStatus, start time.Time) *domain.ProcessingOutcome {
	o := &domain.ProcessingOutcome{
		DocumentID:    r.req.Document.ID,
		Status:        status,
		Fields:        []domain.CandidateField{},
		FallbackChain: r.chain,
		ElapsedMS:     time.Since(start).Milliseconds(),
		ProcessedAt:   c.opts.Now().UTC(),
	}
	if o.FallbackChain == nil {
		o.FallbackChain = []domain.Attempt{}
	}
	if r.best != nil {
		o.Fields = r.best.fields
		if o.Fields == nil {
			o.Fields = []domain.CandidateField{}
		}
		o.Breakdown = r.best.breakdown
		o.AcceptedBackend = r.best.result.Backend
	}
	return o
}
