package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/logging"
	"docscan/internal/port"
	"docscan/internal/service"
	"docscan/mocks"
)

type serviceFixture struct {
	pipeline *mocks.MockPipeline
	outcomes *mocks.MockOutcomeRepo
	audit    *mocks.MockAttemptAuditRepo
	storage  *mocks.MockObjectStorage
	cfg      config.PipelineConfig
}

func newServiceFixture() *serviceFixture {
	return &serviceFixture{
		pipeline: new(mocks.MockPipeline),
		outcomes: new(mocks.MockOutcomeRepo),
		audit:    new(mocks.MockAttemptAuditRepo),
		storage:  new(mocks.MockObjectStorage),
		cfg: config.PipelineConfig{
			Backends:       []string{"pdftext", "tesseract"},
			Mode:           "sequential",
			BackendTimeout: 10 * time.Second,
			Deadline:       time.Minute,
			MinConfidence:  70,
			MaxUploadMB:    1,
		},
	}
}

func (f *serviceFixture) service() service.ProcessingService {
	return service.NewProcessingService(f.pipeline, f.outcomes, f.audit, f.storage, f.cfg,
		&config.S3Config{Bucket: "inbox"}, logging.Discard())
}

func (f *serviceFixture) assertAll(t *testing.T) {
	f.pipeline.AssertExpectations(t)
	f.outcomes.AssertExpectations(t)
	f.audit.AssertExpectations(t)
	f.storage.AssertExpectations(t)
}

func successOutcome(id uuid.UUID) *domain.ProcessingOutcome {
	return &domain.ProcessingOutcome{
		DocumentID:      id,
		Status:          domain.StatusSuccess,
		Fields:          []domain.CandidateField{},
		Breakdown:       domain.ConfidenceBreakdown{Score: 88},
		FallbackChain:   []domain.Attempt{{Backend: "tesseract", Tokens: 12}},
		AcceptedBackend: "tesseract",
	}
}

func uploadTo(key string) interface{} {
	return mock.MatchedBy(func(in port.UploadInput) bool { return in.Bucket == "inbox" && in.Key == key })
}

func TestProcessingService_Process_UsesConfiguredDefaults(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()
	out := successOutcome(id)
	data := []byte("%PDF-1.4 invoice")

	f.storage.On("Upload", mock.Anything, uploadTo("documents/"+id.String()+"/fv.pdf")).
		Return(&port.UploadOutput{}, nil)
	f.pipeline.On("Process", mock.Anything, mock.MatchedBy(func(req domain.ProcessingRequest) bool {
		return req.Document.ID == id &&
			req.Document.MediaType == domain.MediaTypePDF &&
			assert.ObjectsAreEqual([]string{"pdftext", "tesseract"}, req.Backends) &&
			req.Mode == domain.ModeSequential &&
			req.BackendTimeout == 10*time.Second &&
			req.Deadline == time.Minute &&
			req.MinConfidence == 70
	})).Return(out, nil)
	f.outcomes.On("Save", mock.Anything, out).Return(nil)
	f.audit.On("CreateBatch", mock.Anything, id, out.FallbackChain).Return(nil)
	f.storage.On("Upload", mock.Anything, uploadTo("outcomes/"+id.String()+".json")).
		Return(&port.UploadOutput{}, nil)

	got, err := f.service().Process(context.Background(), service.ProcessInput{
		DocumentID: id,
		FileName:   "fv.pdf",
		Data:       data,
	})

	require.NoError(t, err)
	assert.Same(t, out, got)
	f.assertAll(t)
}

func TestProcessingService_Process_AppliesOverrides(t *testing.T) {
	f := newServiceFixture()
	minConf := 55.0
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.pipeline.On("Process", mock.Anything, mock.MatchedBy(func(req domain.ProcessingRequest) bool {
		return assert.ObjectsAreEqual([]string{"claude"}, req.Backends) &&
			req.Mode == domain.ModeParallel &&
			req.BackendTimeout == 3*time.Second &&
			req.Deadline == 9*time.Second &&
			req.MinConfidence == 55 &&
			req.Document.MediaType == domain.MediaTypePNG
	})).Return(successOutcome(uuid.New()), nil)
	f.outcomes.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.audit.On("CreateBatch", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service().Process(context.Background(), service.ProcessInput{
		FileName: "scan.png",
		Data:     []byte{0x89, 'P', 'N', 'G'},
		Overrides: service.Overrides{
			Backends:       []string{"claude"},
			Mode:           "PARALLEL",
			BackendTimeout: 3 * time.Second,
			Deadline:       9 * time.Second,
			MinConfidence:  &minConf,
		},
	})

	require.NoError(t, err)
	f.pipeline.AssertExpectations(t)
}

func TestProcessingService_Process_RejectsEmptyAndOversized(t *testing.T) {
	f := newServiceFixture()
	svc := f.service()

	_, err := svc.Process(context.Background(), service.ProcessInput{FileName: "a.png"})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	_, err = svc.Process(context.Background(), service.ProcessInput{
		FileName: "a.png",
		Data:     make([]byte, 1024*1024+1),
	})
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)

	f.pipeline.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestProcessingService_Process_PersistsRejectedOutcome(t *testing.T) {
	f := newServiceFixture()
	rejected := &domain.ProcessingOutcome{
		DocumentID:    uuid.New(),
		Status:        domain.StatusRejected,
		FallbackChain: []domain.Attempt{},
	}
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.pipeline.On("Process", mock.Anything, mock.Anything).Return(rejected, domain.ErrUnsupportedMediaType)
	f.outcomes.On("Save", mock.Anything, rejected).Return(nil)
	f.audit.On("CreateBatch", mock.Anything, rejected.DocumentID, rejected.FallbackChain).Return(nil)

	got, err := f.service().Process(context.Background(), service.ProcessInput{
		FileName:  "notes.txt",
		MediaType: "text/plain",
		Data:      []byte("hello"),
	})

	assert.ErrorIs(t, err, domain.ErrUnsupportedMediaType)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusRejected, got.Status)
	f.outcomes.AssertExpectations(t)
}

func TestProcessingService_Process_ArchiveAndAuditFailuresAreNotFatal(t *testing.T) {
	f := newServiceFixture()
	out := successOutcome(uuid.New())
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("s3 down"))
	f.pipeline.On("Process", mock.Anything, mock.Anything).Return(out, nil)
	f.outcomes.On("Save", mock.Anything, out).Return(nil)
	f.audit.On("CreateBatch", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db busy"))

	got, err := f.service().Process(context.Background(), service.ProcessInput{
		FileName: "fv.pdf",
		Data:     []byte("%PDF-1.7"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
}

func TestProcessingService_Process_SaveFailureIsReturned(t *testing.T) {
	f := newServiceFixture()
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.pipeline.On("Process", mock.Anything, mock.Anything).Return(successOutcome(uuid.New()), nil)
	f.outcomes.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := f.service().Process(context.Background(), service.ProcessInput{
		FileName: "fv.pdf",
		Data:     []byte("%PDF-1.7"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "save outcome")
	f.audit.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessingService_Process_SavesAfterDeadline(t *testing.T) {
	f := newServiceFixture()
	out := successOutcome(uuid.New())
	ctx, cancel := context.WithCancel(context.Background())

	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.pipeline.On("Process", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(out, nil)
	f.outcomes.On("Save", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), out).Return(nil)
	f.audit.On("CreateBatch", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service().Process(ctx, service.ProcessInput{FileName: "fv.pdf", Data: []byte("%PDF-1.7")})

	require.NoError(t, err)
	f.outcomes.AssertExpectations(t)
}

func TestProcessingService_ProcessStored(t *testing.T) {
	f := newServiceFixture()
	out := successOutcome(uuid.New())
	f.storage.On("Download", mock.Anything, "inbox", "incoming/fv-7.jpg").Return([]byte{0xFF, 0xD8, 0xFF}, nil)
	f.pipeline.On("Process", mock.Anything, mock.MatchedBy(func(req domain.ProcessingRequest) bool {
		return req.Document.MediaType == domain.MediaTypeJPEG
	})).Return(out, nil)
	f.outcomes.On("Save", mock.Anything, out).Return(nil)
	f.audit.On("CreateBatch", mock.Anything, out.DocumentID, out.FallbackChain).Return(nil)
	f.storage.On("Upload", mock.Anything, uploadTo("outcomes/"+out.DocumentID.String()+".json")).
		Return(&port.UploadOutput{}, nil)

	got, err := f.service().ProcessStored(context.Background(), service.ProcessStoredInput{Key: "incoming/fv-7.jpg"})

	require.NoError(t, err)
	assert.Same(t, out, got)
	f.assertAll(t)
}

func TestProcessingService_ProcessStored_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"missing object", domain.ErrNotFound, domain.ErrNotFound},
		{"too large", domain.ErrPayloadTooLarge, domain.ErrPayloadTooLarge},
		{"transport", errors.New("dial tcp: timeout"), domain.ErrDownloadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			f.storage.On("Download", mock.Anything, "other", "k.pdf").Return(nil, tt.err)

			_, err := f.service().ProcessStored(context.Background(), service.ProcessStoredInput{Bucket: "other", Key: "k.pdf"})

			assert.ErrorIs(t, err, tt.wantErr)
			f.pipeline.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessingService_ProcessStored_MissingKey(t *testing.T) {
	f := newServiceFixture()
	_, err := f.service().ProcessStored(context.Background(), service.ProcessStoredInput{Key: " "})
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestProcessingService_ListAttempts(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()
	records := []domain.AttemptRecord{{DocumentID: id, Seq: 0, Backend: "tesseract"}}
	f.outcomes.On("GetByDocumentID", mock.Anything, id).Return(successOutcome(id), nil)
	f.audit.On("ListByDocument", mock.Anything, id).Return(records, nil)

	got, err := f.service().ListAttempts(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestProcessingService_ListAttempts_UnknownDocument(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()
	f.outcomes.On("GetByDocumentID", mock.Anything, id).Return(nil, domain.ErrNotFound)

	_, err := f.service().ListAttempts(context.Background(), id)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.audit.AssertNotCalled(t, "ListByDocument", mock.Anything, mock.Anything)
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		declared string
		data     []byte
		want     string
	}{
		{"declared wins", "a.pdf", "Image/PNG", nil, domain.MediaTypePNG},
		{"extension", "skan.TIFF", "", nil, domain.MediaTypeTIFF},
		{"sniff pdf", "upload", "", []byte("%PDF-1.5\n"), domain.MediaTypePDF},
		{"sniff tiff", "upload", "", []byte("II*\x00rest"), domain.MediaTypeTIFF},
		{"sniff text", "upload", "", []byte("plain words"), "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.DetectMediaType(tt.file, tt.declared, tt.data))
		})
	}
}
