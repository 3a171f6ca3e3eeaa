package server

import (
	_ "embed"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crimson-sun/mailclass/internal/model"
)

const (
	maxBodyBytes  = 1 << 20
	maxBatchTexts = 128
)

//go:embed index.html
var indexHTML []byte

// ClassifyRequest is the body of POST /api/v1/classify. Text wins over
// subject and body when both are given.
type ClassifyRequest struct {
	Text    string `json:"text"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (r ClassifyRequest) text() string {
	if r.Text != "" {
		return r.Text
	}
	return model.Email{Subject: r.Subject, Body: r.Body}.Text()
}

// BatchRequest is the body of POST /api/v1/classify/batch.
type BatchRequest struct {
	Texts []string `json:"texts"`
}

// HealthStatus is the body of /health and /ready.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

type handler struct {
	classifier Classifier
}

func (h *handler) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *handler) classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "request body must be JSON with a text field")
		return
	}
	res, err := h.classifier.Classify(c.Request.Context(), req.text())
	if err != nil {
		handleError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

func (h *handler) classifyBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "request body must be JSON with a texts array")
		return
	}
	if len(req.Texts) == 0 {
		respondError(c, http.StatusBadRequest, codeEmptyInput, "texts must not be empty")
		return
	}
	if len(req.Texts) > maxBatchTexts {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, "too many texts in one request")
		return
	}
	results, err := h.classifier.ClassifyBatch(c.Request.Context(), req.Texts)
	if err != nil {
		handleError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, results)
}

func (h *handler) labels(c *gin.Context) {
	respondSuccess(c, http.StatusOK, model.LabelNames())
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthStatus{Status: "healthy", Model: h.classifier.DefaultIdentifier()})
}

// ready reports 200 once the default model is loaded.
func (h *handler) ready(c *gin.Context) {
	if !h.classifier.Ready() {
		c.JSON(http.StatusServiceUnavailable, HealthStatus{Status: "not ready", Model: h.classifier.DefaultIdentifier()})
		return
	}
	c.JSON(http.StatusOK, HealthStatus{Status: "ready", Model: h.classifier.DefaultIdentifier()})
}

// respondBindError answers a body that failed to decode: 413 when it hit
// the size limit, 400 otherwise.
func respondBindError(c *gin.Context, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body is too large")
		return
	}
	respondError(c, http.StatusBadRequest, codeInvalidRequest, message)
}

// limitBody caps the request body at n bytes.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
