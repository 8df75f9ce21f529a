package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docscan/internal/domain"
	"docscan/internal/logging"
	"docscan/internal/pipeline"
	"docscan/internal/port"
	"docscan/internal/recognizer"
	"docscan/mocks"
)

type extractFunc func(*domain.BackendResult) []domain.CandidateField

func (f extractFunc) Extract(res *domain.BackendResult) []domain.CandidateField { return f(res) }

type passThrough struct{}

func (passThrough) Validate(fields []domain.CandidateField) []domain.CandidateField { return fields }

// scoreByBackend scores a result by the name of the backend that produced it.
type scoreByBackend map[string]float64

func (s scoreByBackend) Score(res *domain.BackendResult, _ []domain.CandidateField) domain.ConfidenceBreakdown {
	return domain.ConfidenceBreakdown{Score: s[res.Backend]}
}

func backendField(res *domain.BackendResult) []domain.CandidateField {
	return []domain.CandidateField{{Name: domain.FieldInvoiceNumber, RawValue: res.Backend, NormalizedValue: res.Backend}}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 0})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func okResult(text string) *domain.BackendResult {
	return &domain.BackendResult{
		Text: text,
		Tokens: []domain.Token{{
			Text:       text,
			Box:        domain.BBox{X: 0.1, Y: 0.1, W: 0.2, H: 0.02},
			Confidence: 0.9,
		}},
	}
}

func succeeding(name string) *mocks.MockRecognitionBackend {
	return reading(name, 0.9)
}

// reading returns a backend whose single token has the given confidence.
func reading(name string, confidence float64) *mocks.MockRecognitionBackend {
	res := okResult("Faktura")
	res.Tokens[0].Confidence = confidence
	m := mocks.NewMockRecognitionBackend(name)
	m.On("Recognize", mock.Anything, mock.Anything).Return(res, nil)
	return m
}

func failing(name string, kind domain.ErrorKind) *mocks.MockRecognitionBackend {
	m := mocks.NewMockRecognitionBackend(name)
	m.On("Recognize", mock.Anything, mock.Anything).
		Return(nil, domain.NewRecognitionError(kind, name, errors.New("backend said no")))
	return m
}

func hanging(name string) *mocks.MockRecognitionBackend {
	m := mocks.NewMockRecognitionBackend(name)
	m.On("Recognize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)
	return m
}

func identityPreprocessor() *mocks.MockPreprocessor {
	pre := new(mocks.MockPreprocessor)
	pre.On("Normalize", mock.Anything, mock.Anything).
		Return(func(_ context.Context, p *domain.Page) *domain.Page { return p })
	return pre
}

type fixture struct {
	t        *testing.T
	backends []port.RecognitionBackend
	pre      port.Preprocessor
	scores   scoreByBackend
	opts     pipeline.Options
	log      *slog.Logger
}

func newFixture(t *testing.T, backends ...port.RecognitionBackend) *fixture {
	return &fixture{
		t:        t,
		backends: backends,
		pre:      identityPreprocessor(),
		scores:   scoreByBackend{},
		opts:     pipeline.Options{MaxParallel: 2, ShrinkFactor: 0.5},
		log:      logging.Discard(),
	}
}

func (f *fixture) controller() *pipeline.Controller {
	deps := pipeline.Deps{
		Backends:     recognizer.NewSet(f.backends...),
		Preprocessor: f.pre,
		Recognizer: recognizer.NewComposite(recognizer.Options{
			MinTokenConfidence: f.opts.MinTokenConfidence,
			MaxParallel:        2,
		}, logging.Discard()),
		Extractor:    extractFunc(backendField),
		Validator:    passThrough{},
		Scorer:       f.scores,
	}
	return pipeline.NewController(deps, f.opts, f.log)
}

func (f *fixture) request(names ...string) domain.ProcessingRequest {
	return domain.ProcessingRequest{
		Document:       domain.Document{ID: uuid.New(), MediaType: domain.MediaTypePNG, Data: pngBytes(f.t, 40, 20)},
		Backends:       names,
		Mode:           domain.ModeSequential,
		BackendTimeout: 30 * time.Millisecond,
		Deadline:       5 * time.Second,
		MinConfidence:  70,
	}
}

func chainOf(o *domain.ProcessingOutcome) (names []string, kinds []domain.ErrorKind) {
	for _, a := range o.FallbackChain {
		names = append(names, a.Backend)
		kinds = append(kinds, a.ErrorKind)
	}
	return names, kinds
}

func TestProcess_TimeoutTimeoutSuccess(t *testing.T) {
	f := newFixture(t, hanging("a"), hanging("b"), succeeding("c"))
	f.scores["c"] = 90

	out, err := f.controller().Process(context.Background(), f.request("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, out.Status)
	names, kinds := chainOf(out)
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, []domain.ErrorKind{domain.ErrorKindTimeout, domain.ErrorKindTimeout, ""}, kinds)
	assert.Equal(t, []int{0, 1, 2}, []int{out.FallbackChain[0].Set, out.FallbackChain[1].Set, out.FallbackChain[2].Set})
	assert.Equal(t, "c", out.AcceptedBackend)
	assert.InDelta(t, 90, out.Breakdown.Score, 1e-9)
	require.Len(t, out.Fields, 1)
	assert.Equal(t, "c", out.Fields[0].NormalizedValue)
}

func TestProcess_StopsAtFirstAcceptedSet(t *testing.T) {
	c := succeeding("c")
	f := newFixture(t, succeeding("a"), c)
	f.scores["a"] = 75

	out, err := f.controller().Process(context.Background(), f.request("a", "c"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, out.Status)
	assert.Len(t, out.FallbackChain, 1)
	c.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything)
}

func TestProcess_PartialKeepsBestResult(t *testing.T) {
	f := newFixture(t, succeeding("a"), succeeding("b"), failing("c", domain.ErrorKindProcessing))
	f.scores["a"] = 60
	f.scores["b"] = 40

	out, err := f.controller().Process(context.Background(), f.request("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, out.Status)
	assert.Equal(t, "a", out.AcceptedBackend)
	assert.InDelta(t, 60, out.Breakdown.Score, 1e-9)
	names, _ := chainOf(out)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestProcess_FailedWhenNoUsableText(t *testing.T) {
	f := newFixture(t, failing("a", domain.ErrorKindInitialization), failing("b", domain.ErrorKindProcessing))

	out, err := f.controller().Process(context.Background(), f.request("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, out.Status)
	assert.Empty(t, out.Fields)
	assert.NotNil(t, out.Fields)
	assert.Zero(t, out.Breakdown.Score)
	_, kinds := chainOf(out)
	assert.Equal(t, []domain.ErrorKind{domain.ErrorKindInitialization, domain.ErrorKindProcessing}, kinds)
	assert.Contains(t, out.FallbackChain[0].Error, "backend said no")
}

func TestProcess_Rejected(t *testing.T) {
	f := newFixture(t, succeeding("a"))

	tests := []struct {
		name   string
		mutate func(*domain.ProcessingRequest)
		want   error
	}{
		{"empty document", func(r *domain.ProcessingRequest) { r.Document.Data = nil }, domain.ErrMalformedInput},
		{"unsupported media type", func(r *domain.ProcessingRequest) { r.Document.MediaType = "text/plain" }, domain.ErrUnsupportedMediaType},
		{"undecodable image", func(r *domain.ProcessingRequest) { r.Document.Data = []byte("not a png") }, domain.ErrMalformedInput},
		{"pdf without header", func(r *domain.ProcessingRequest) {
			r.Document.MediaType = domain.MediaTypePDF
			r.Document.Data = []byte("hello")
		}, domain.ErrMalformedInput},
		{"unknown backend", func(r *domain.ProcessingRequest) { r.Backends = []string{"a", "nope"} }, domain.ErrUnknownBackend},
		{"no backends", func(r *domain.ProcessingRequest) { r.Backends = nil }, domain.ErrNoBackends},
		{"bad mode", func(r *domain.ProcessingRequest) { r.Mode = "round-robin" }, domain.ErrMalformedInput},
		{"bad min confidence", func(r *domain.ProcessingRequest) { r.MinConfidence = 101 }, domain.ErrMalformedInput},
		{"NaN min confidence", func(r *domain.ProcessingRequest) { r.MinConfidence = math.NaN() }, domain.ErrMalformedInput},
		{"negative deadline", func(r *domain.ProcessingRequest) { r.Deadline = -time.Second }, domain.ErrMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("a")
			tt.mutate(&req)

			out, err := f.controller().Process(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			require.NotNil(t, out)
			assert.Equal(t, domain.StatusRejected, out.Status)
			assert.Empty(t, out.FallbackChain)
			assert.Equal(t, req.Document.ID, out.DocumentID)
		})
	}
}

func TestProcess_DegradeAndRetry(t *testing.T) {
	original := pngBytes(t, 40, 20)
	shrunk := &domain.Page{MediaType: domain.MediaTypePNG, Data: pngBytes(t, 20, 10), Width: 20, Height: 10}

	a := mocks.NewMockRecognitionBackend("a")
	a.On("Recognize", mock.Anything, mock.MatchedBy(func(p *domain.Page) bool { return p.Width == 40 })).
		Return(nil, domain.NewRecognitionError(domain.ErrorKindResourceExhausted, "a", errors.New("out of memory"))).Once()
	a.On("Recognize", mock.Anything, shrunk).Return(okResult("Faktura"), nil).Once()

	pre := identityPreprocessor()
	pre.On("Shrink", mock.MatchedBy(func(p *domain.Page) bool { return bytes.Equal(p.Data, original) }), 0.5).
		Return(shrunk, nil).Once()

	f := newFixture(t, a)
	f.pre = pre
	f.scores["a"] = 80
	req := f.request("a")
	req.Document.Data = original

	out, err := f.controller().Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, out.Status)
	require.Len(t, out.FallbackChain, 2)
	assert.Equal(t, domain.ErrorKindResourceExhausted, out.FallbackChain[0].ErrorKind)
	assert.False(t, out.FallbackChain[0].Degraded)
	assert.True(t, out.FallbackChain[1].Degraded)
	assert.True(t, out.FallbackChain[1].Succeeded())
	assert.Equal(t, 0, out.FallbackChain[1].Set)
	a.AssertExpectations(t)
	pre.AssertExpectations(t)
}

func TestProcess_DegradeRetriesOnlyOnce(t *testing.T) {
	a := failing("a", domain.ErrorKindResourceExhausted)
	b := succeeding("b")
	pre := identityPreprocessor()
	pre.On("Shrink", mock.Anything, 0.5).
		Return(&domain.Page{MediaType: domain.MediaTypePNG, Data: []byte{1}, Width: 20, Height: 10}, nil).Once()

	f := newFixture(t, a, b)
	f.pre = pre
	f.scores["b"] = 80

	out, err := f.controller().Process(context.Background(), f.request("a", "b"))
	require.NoError(t, err)

	names, kinds := chainOf(out)
	assert.Equal(t, []string{"a", "a", "b"}, names)
	assert.Equal(t, []domain.ErrorKind{domain.ErrorKindResourceExhausted, domain.ErrorKindResourceExhausted, ""}, kinds)
	assert.Equal(t, domain.StatusSuccess, out.Status)
	a.AssertNumberOfCalls(t, "Recognize", 2)
}

func TestProcess_UnshrinkablePageFallsThrough(t *testing.T) {
	pre := identityPreprocessor()
	pre.On("Shrink", mock.Anything, 0.5).Return(nil, domain.ErrUnsupportedMediaType)

	f := newFixture(t, failing("a", domain.ErrorKindResourceExhausted), succeeding("b"))
	f.pre = pre
	f.scores["b"] = 80
	req := f.request("a", "b")
	req.Document.MediaType = domain.MediaTypePDF
	req.Document.Data = []byte("%PDF-1.7\n")

	out, err := f.controller().Process(context.Background(), req)
	require.NoError(t, err)
	names, _ := chainOf(out)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, domain.StatusSuccess, out.Status)
}

func TestProcess_ParallelSets(t *testing.T) {
	f := newFixture(t,
		failing("a", domain.ErrorKindProcessing),
		failing("b", domain.ErrorKindTimeout),
		succeeding("c"),
	)
	f.scores["c"] = 80
	req := f.request("a", "b", "c")
	req.Mode = domain.ModeParallel

	out, err := f.controller().Process(context.Background(), req)
	require.NoError(t, err)

	names, _ := chainOf(out)
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, []int{0, 0, 1}, []int{out.FallbackChain[0].Set, out.FallbackChain[1].Set, out.FallbackChain[2].Set})
	assert.Equal(t, domain.StatusSuccess, out.Status)
}

func TestProcess_DeadlineBoundsRun(t *testing.T) {
	f := newFixture(t, hanging("a"), hanging("b"))
	req := f.request("a", "b")
	req.BackendTimeout = 10 * time.Second
	req.Deadline = 50 * time.Millisecond

	start := time.Now()
	out, err := f.controller().Process(context.Background(), req)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.StatusFailed, out.Status)
	require.NotEmpty(t, out.FallbackChain)
	assert.Equal(t, domain.ErrorKindTimeout, out.FallbackChain[0].ErrorKind)
}

func TestProcess_ExpiredContextStillRecordsAttempt(t *testing.T) {
	f := newFixture(t, succeeding("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.controller().Process(ctx, f.request("a"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, out.Status)
	require.Len(t, out.FallbackChain, 1)
	assert.Equal(t, "a", out.FallbackChain[0].Backend)
	assert.Equal(t, domain.ErrorKindTimeout, out.FallbackChain[0].ErrorKind)
}

func TestProcess_SequentialSkipsResultBelowTokenFloor(t *testing.T) {
	f := newFixture(t, reading("low", 0.2), reading("high", 0.9))
	f.opts.MinTokenConfidence = 0.6
	f.scores["low"] = 80
	f.scores["high"] = 80

	out, err := f.controller().Process(context.Background(), f.request("low", "high"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, out.Status)
	assert.Equal(t, "high", out.AcceptedBackend)
	names, _ := chainOf(out)
	assert.Equal(t, []string{"low", "high"}, names)
	assert.InDelta(t, 0.2, out.FallbackChain[0].MeanConfidence, 1e-9)
}

func TestProcess_OnlyBelowTokenFloorIsPartial(t *testing.T) {
	f := newFixture(t, reading("low", 0.2))
	f.opts.MinTokenConfidence = 0.6
	f.scores["low"] = 95

	out, err := f.controller().Process(context.Background(), f.request("low"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, out.Status)
	assert.Equal(t, "low", out.AcceptedBackend)
	assert.Len(t, out.FallbackChain, 1)
}

func TestProcess_ParallelIgnoresTokenFloor(t *testing.T) {
	f := newFixture(t, reading("low", 0.2))
	f.opts.MinTokenConfidence = 0.6
	f.scores["low"] = 80
	req := f.request("low")
	req.Mode = domain.ModeParallel

	out, err := f.controller().Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, out.Status)
}

func TestProcess_LogsTransitionsWithoutContent(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, succeeding("a"))
	f.scores["a"] = 80
	f.log = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := f.controller().Process(context.Background(), f.request("a"))
	require.NoError(t, err)

	logs := buf.String()
	for _, s := range []pipeline.State{pipeline.StatePreprocess, pipeline.StateRecognize, pipeline.StateExtract, pipeline.StateValidate, pipeline.StateScore, pipeline.StateDone} {
		assert.Contains(t, logs, `"to":"`+string(s)+`"`)
	}
	assert.NotContains(t, logs, "Faktura")
}
