package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"docscan/internal/domain"
	"docscan/internal/middleware"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "unsupported media type; allowed: pdf, jpg, png, tiff, bmp, webp, gif"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "document exceeds maximum allowed size"
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest, "MALFORMED_INPUT", "document or request parameters are malformed"
	case errors.Is(err, domain.ErrNoBackends):
		return http.StatusBadRequest, "NO_BACKENDS", "no recognition backends requested"
	case errors.Is(err, domain.ErrUnknownBackend):
		return http.StatusBadRequest, "UNKNOWN_BACKEND", "unknown recognition backend"
	case errors.Is(err, domain.ErrDownloadFailed):
		return http.StatusBadGateway, "DOWNLOAD_FAILED", "document download from storage failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
// A non-nil outcome is attached as data so that rejected runs stay inspectable.
func HandleError(c *gin.Context, log *slog.Logger, err error, outcome *domain.ProcessingOutcome) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		log.Error("internal error", "request_id", middleware.GetRequestID(c), "error", err)
	}
	resp := APIResponse{Success: false, Error: &APIError{Code: code, Message: msg}}
	if outcome != nil {
		resp.Data = outcome
	}
	c.JSON(status, resp)
}
