package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crimson-sun/mailclass/internal/engine"
)

// Error codes returned in the error envelope.
const (
	codeEmptyInput       = "EMPTY_INPUT"
	codeInvalidRequest   = "INVALID_REQUEST"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	codeModelUnavailable = "MODEL_UNAVAILABLE"
	codeInferenceFailed  = "INFERENCE_FAILED"
	codeTimeout          = "TIMEOUT"
	codeInternal         = "INTERNAL_ERROR"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *MetaInfo  `json:"meta"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo is attached to every response.
type MetaInfo struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

func newMeta(c *gin.Context) *MetaInfo {
	requestID := c.GetString(requestIDKey)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return &MetaInfo{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
}

func respondSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
		Meta:    newMeta(c),
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
		Meta: newMeta(c),
	})
}

type errorResponse struct {
	status  int
	code    string
	message string
}

// mapError maps engine errors onto HTTP responses.
func mapError(err error) errorResponse {
	switch {
	case errors.Is(err, engine.ErrEmptyInput):
		return errorResponse{http.StatusBadRequest, codeEmptyInput, "text must not be empty"}
	case errors.Is(err, engine.ErrModelLoad):
		return errorResponse{http.StatusServiceUnavailable, codeModelUnavailable, "classification model is unavailable"}
	case errors.Is(err, engine.ErrInference):
		return errorResponse{http.StatusInternalServerError, codeInferenceFailed, "classification failed"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errorResponse{http.StatusGatewayTimeout, codeTimeout, "request timed out"}
	default:
		return errorResponse{http.StatusInternalServerError, codeInternal, "internal server error"}
	}
}

func handleError(c *gin.Context, err error) {
	_ = c.Error(err)
	r := mapError(err)
	respondError(c, r.status, r.code, r.message)
}
