package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docscan/internal/domain"
	"docscan/internal/service"
)

// ProcessingHandler handles document processing and outcome endpoints.
type ProcessingHandler struct {
	svc      service.ProcessingService
	maxBytes int64
	log      *slog.Logger
}

// NewProcessingHandler creates a new ProcessingHandler. maxBytes bounds
// uploaded documents; zero disables the limit.
func NewProcessingHandler(svc service.ProcessingService, maxBytes int64, log *slog.Logger) *ProcessingHandler {
	return &ProcessingHandler{svc: svc, maxBytes: maxBytes, log: log}
}

// processStoredRequest is the JSON body of POST /documents/process-stored.
type processStoredRequest struct {
	DocumentID       string   `json:"document_id"`
	Bucket           string   `json:"bucket"`
	BucketKey        string   `json:"bucket_key" binding:"required"`
	MediaType        string   `json:"media_type"`
	Backends         []string `json:"backends"`
	Mode             string   `json:"mode"`
	BackendTimeoutMS int64    `json:"backend_timeout_ms"`
	DeadlineMS       int64    `json:"deadline_ms"`
	MinConfidence    *float64 `json:"min_confidence"`
}

// Process handles POST /api/v1/documents/process
func (h *ProcessingHandler) Process(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleError(c, h.log, domain.ErrPayloadTooLarge, nil)
			return
		}
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		HandleError(c, h.log, domain.ErrPayloadTooLarge, nil)
		return
	}

	overrides, err := formOverrides(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	docID, err := optionalUUID(c.PostForm("document_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document_id")
		return
	}

	f, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file could not be read")
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file could not be read")
		return
	}

	outcome, err := h.svc.Process(c.Request.Context(), service.ProcessInput{
		DocumentID: docID,
		FileName:   fh.Filename,
		MediaType:  c.PostForm("media_type"),
		Data:       data,
		Overrides:  overrides,
	})
	if err != nil {
		HandleError(c, h.log, err, outcome)
		return
	}
	RespondOK(c, outcome)
}

// ProcessStored handles POST /api/v1/documents/process-stored
func (h *ProcessingHandler) ProcessStored(c *gin.Context) {
	var req processStoredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	docID, err := optionalUUID(req.DocumentID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document_id")
		return
	}
	backendTimeout, err := millis("backend_timeout_ms", req.BackendTimeoutMS)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	deadline, err := millis("deadline_ms", req.DeadlineMS)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		return
	}
	if req.MinConfidence != nil && !validConfidence(*req.MinConfidence) {
		RespondError(c, http.StatusBadRequest, "INVALID_PARAMETER", "min_confidence must be between 0 and 100")
		return
	}

	outcome, err := h.svc.ProcessStored(c.Request.Context(), service.ProcessStoredInput{
		DocumentID: docID,
		Bucket:     req.Bucket,
		Key:        req.BucketKey,
		MediaType:  req.MediaType,
		Overrides: service.Overrides{
			Backends:       trimAll(req.Backends),
			Mode:           req.Mode,
			BackendTimeout: backendTimeout,
			Deadline:       deadline,
			MinConfidence:  req.MinConfidence,
		},
	})
	if err != nil {
		HandleError(c, h.log, err, outcome)
		return
	}
	RespondOK(c, outcome)
}

// GetOutcome handles GET /api/v1/outcomes/:id
func (h *ProcessingHandler) GetOutcome(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
		return
	}
	outcome, err := h.svc.GetOutcome(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.log, err, nil)
		return
	}
	RespondOK(c, outcome)
}

// ListAttempts handles GET /api/v1/outcomes/:id/attempts
func (h *ProcessingHandler) ListAttempts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
		return
	}
	records, err := h.svc.ListAttempts(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.log, err, nil)
		return
	}
	RespondOK(c, records)
}

func formOverrides(c *gin.Context) (service.Overrides, error) {
	var o service.Overrides
	if raw := c.PostForm("backends"); raw != "" {
		o.Backends = trimAll(strings.Split(raw, ","))
	}
	o.Mode = strings.TrimSpace(c.PostForm("mode"))

	var err error
	if o.BackendTimeout, err = formMillis(c, "backend_timeout_ms"); err != nil {
		return o, err
	}
	if o.Deadline, err = formMillis(c, "deadline_ms"); err != nil {
		return o, err
	}
	if raw := c.PostForm("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !validConfidence(v) {
			return o, errors.New("min_confidence must be between 0 and 100")
		}
		o.MinConfidence = &v
	}
	return o, nil
}

func formMillis(c *gin.Context, key string) (time.Duration, error) {
	raw := c.PostForm(key)
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return millis(key, ms)
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

func millis(key string, ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	if ms > maxMillis {
		return 0, fmt.Errorf("%s must be at most %d", key, maxMillis)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func validConfidence(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

func optionalUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
