package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/port"
)

// Pipeline runs one processing request to an outcome.
type Pipeline interface {
	Process(ctx context.Context, req domain.ProcessingRequest) (*domain.ProcessingOutcome, error)
}

// Overrides are the per-request pipeline settings. Zero values fall back to
// the configured defaults.
type Overrides struct {
	Backends       []string
	Mode           string
	BackendTimeout time.Duration
	Deadline       time.Duration
	MinConfidence  *float64
}

// ProcessInput is the DTO for processing an uploaded document.
type ProcessInput struct {
	DocumentID uuid.UUID
	FileName   string
	MediaType  string
	Data       []byte
	Overrides
}

// ProcessStoredInput is the DTO for processing a document already in object storage.
type ProcessStoredInput struct {
	DocumentID uuid.UUID
	Bucket     string
	Key        string
	MediaType  string
	Overrides
}

// ProcessingService defines the document processing contract.
type ProcessingService interface {
	Process(ctx context.Context, input ProcessInput) (*domain.ProcessingOutcome, error)
	ProcessStored(ctx context.Context, input ProcessStoredInput) (*domain.ProcessingOutcome, error)
	GetOutcome(ctx context.Context, documentID uuid.UUID) (*domain.ProcessingOutcome, error)
	ListAttempts(ctx context.Context, documentID uuid.UUID) ([]domain.AttemptRecord, error)
}

type processingService struct {
	pipeline    Pipeline
	outcomeRepo port.OutcomeRepository
	auditRepo   port.AttemptAuditRepository
	storage     port.ObjectStorage
	pipelineCfg config.PipelineConfig
	bucket      string
	log         *slog.Logger
}

// NewProcessingService creates a new ProcessingService implementation.
// storage may be nil, in which case documents and outcomes are not archived
// and ProcessStored is unavailable.
func NewProcessingService(
	pipeline Pipeline,
	outcomeRepo port.OutcomeRepository,
	auditRepo port.AttemptAuditRepository,
	storage port.ObjectStorage,
	pipelineCfg config.PipelineConfig,
	s3Cfg *config.S3Config,
	log *slog.Logger,
) ProcessingService {
	bucket := ""
	if s3Cfg != nil {
		bucket = s3Cfg.Bucket
	}
	return &processingService{
		pipeline:    pipeline,
		outcomeRepo: outcomeRepo,
		auditRepo:   auditRepo,
		storage:     storage,
		pipelineCfg: pipelineCfg,
		bucket:      bucket,
		log:         log,
	}
}

func (s *processingService) Process(ctx context.Context, input ProcessInput) (*domain.ProcessingOutcome, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("empty document: %w", domain.ErrMalformedInput)
	}
	if limit := s.pipelineCfg.MaxUploadMB * 1024 * 1024; limit > 0 && int64(len(input.Data)) > limit {
		return nil, domain.ErrPayloadTooLarge
	}

	docID := input.DocumentID
	if docID == uuid.Nil {
		docID = uuid.New()
	}
	mediaType := DetectMediaType(input.FileName, input.MediaType, input.Data)

	s.archive(ctx, documentKey(docID, input.FileName), mediaType, input.Data)

	return s.run(ctx, domain.Document{ID: docID, MediaType: mediaType, Data: input.Data}, input.Overrides)
}

func (s *processingService) ProcessStored(ctx context.Context, input ProcessStoredInput) (*domain.ProcessingOutcome, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("object storage not configured: %w", domain.ErrDownloadFailed)
	}
	if strings.TrimSpace(input.Key) == "" {
		return nil, fmt.Errorf("missing object key: %w", domain.ErrMalformedInput)
	}
	bucket := input.Bucket
	if bucket == "" {
		bucket = s.bucket
	}

	data, err := s.storage.Download(ctx, bucket, input.Key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPayloadTooLarge) {
			return nil, err
		}
		s.log.Error("service.ProcessStored: download failed", "bucket", bucket, "key", input.Key, "error", err)
		return nil, fmt.Errorf("service.ProcessStored: %w", domain.ErrDownloadFailed)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", domain.ErrMalformedInput)
	}

	docID := input.DocumentID
	if docID == uuid.Nil {
		docID = uuid.New()
	}
	mediaType := DetectMediaType(input.Key, input.MediaType, data)
	return s.run(ctx, domain.Document{ID: docID, MediaType: mediaType, Data: data}, input.Overrides)
}

func (s *processingService) GetOutcome(ctx context.Context, documentID uuid.UUID) (*domain.ProcessingOutcome, error) {
	outcome, err := s.outcomeRepo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *processingService) ListAttempts(ctx context.Context, documentID uuid.UUID) ([]domain.AttemptRecord, error) {
	if _, err := s.outcomeRepo.GetByDocumentID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByDocument(ctx, documentID)
}

// run executes the pipeline and records the outcome. A rejected request is
// still persisted so that its attempt trail can be inspected.
func (s *processingService) run(ctx context.Context, doc domain.Document, o Overrides) (*domain.ProcessingOutcome, error) {
	req := s.request(doc, o)

	s.log.Info("service.Process: starting",
		"document_id", doc.ID,
		"media_type", doc.MediaType,
		"bytes", len(doc.Data),
		"backends", req.Backends,
		"mode", req.Mode,
	)

	outcome, procErr := s.pipeline.Process(ctx, req)
	if outcome == nil {
		if procErr == nil {
			procErr = errors.New("pipeline returned no outcome")
		}
		return nil, fmt.Errorf("service.Process: %w", procErr)
	}

	// Persistence must outlive a request whose deadline has already fired.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.outcomeRepo.Save(persistCtx, outcome); err != nil {
		return nil, fmt.Errorf("service.Process save outcome: %w", err)
	}
	if err := s.auditRepo.CreateBatch(persistCtx, outcome.DocumentID, outcome.FallbackChain); err != nil {
		s.log.Warn("service.Process: attempt audit failed", "document_id", outcome.DocumentID, "error", err)
	}
	if payload, err := json.Marshal(outcome); err == nil {
		s.archive(persistCtx, outcomeKey(outcome.DocumentID), "application/json", payload)
	}

	s.log.Info("service.Process: finished",
		"document_id", outcome.DocumentID,
		"status", outcome.Status,
		"score", outcome.Breakdown.Score,
		"accepted_backend", outcome.AcceptedBackend,
		"attempts", len(outcome.FallbackChain),
		"elapsed_ms", outcome.ElapsedMS,
	)
	return outcome, procErr
}

// request builds the immutable pipeline request from the configured
// defaults and the caller's overrides.
func (s *processingService) request(doc domain.Document, o Overrides) domain.ProcessingRequest {
	req := domain.ProcessingRequest{
		Document:       doc,
		Backends:       s.pipelineCfg.Backends,
		Mode:           domain.RecognitionMode(s.pipelineCfg.Mode),
		BackendTimeout: s.pipelineCfg.BackendTimeout,
		Deadline:       s.pipelineCfg.Deadline,
		MinConfidence:  s.pipelineCfg.MinConfidence,
	}
	if len(o.Backends) > 0 {
		req.Backends = o.Backends
	}
	if o.Mode != "" {
		req.Mode = domain.RecognitionMode(strings.ToLower(o.Mode))
	}
	if o.BackendTimeout > 0 {
		req.BackendTimeout = o.BackendTimeout
	}
	if o.Deadline > 0 {
		req.Deadline = o.Deadline
	}
	if o.MinConfidence != nil {
		req.MinConfidence = *o.MinConfidence
	}
	req.Backends = append([]string(nil), req.Backends...)
	return req
}

// archive stores a copy in object storage. Failures are logged and never
// affect the processing result.
func (s *processingService) archive(ctx context.Context, key, contentType string, data []byte) {
	if s.storage == nil || s.bucket == "" {
		return
	}
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.bucket,
		Key:         key,
		Body:        bytes.NewReader(data),
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		s.log.Warn("service.archive: upload failed", "key", key, "error", err)
	}
}

func documentKey(id uuid.UUID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return fmt.Sprintf("documents/%s/%s", id, name)
}

func outcomeKey(id uuid.UUID) string {
	return fmt.Sprintf("outcomes/%s.json", id)
}

// DetectMediaType picks the media type of a document: an explicit declared
// type wins, then the file extension, then magic-byte sniffing.
func DetectMediaType(fileName, declared string, data []byte) string {
	if declared != "" {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if mt, ok := domain.AllowedExtensions[ext]; ok {
		return mt
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	mt := http.DetectContentType(head)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if bytes.HasPrefix(head, []byte("II*\x00")) || bytes.HasPrefix(head, []byte("MM\x00*")) {
		return domain.MediaTypeTIFF
	}
	return mt
}
