package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/mailclass/internal/engine"
	"github.com/crimson-sun/mailclass/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClassifier struct {
	ready bool
	texts []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (model.Result, error) {
	f.texts = append(f.texts, text)
	switch strings.TrimSpace(text) {
	case "":
		return model.Result{}, engine.ErrEmptyInput
	case "missing":
		return model.Result{}, &engine.ModelLoadError{Identifier: "acme/missing", Err: errors.New("not found")}
	case "boom":
		return model.Result{}, &engine.InferenceError{Identifier: "acme/mail", Err: errors.New("run failed")}
	case "slow":
		return model.Result{}, context.DeadlineExceeded
	case "panic":
		panic("classifier exploded")
	}
	return model.NewResult([]float64{0.02, 0.02, 0.02, 0.04, 0.85, 0.05})
}

func (f *fakeClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]model.Result, error) {
	out := make([]model.Result, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, engine.ErrEmptyInput
		}
		r, err := f.Classify(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (f *fakeClassifier) Ready() bool { return f.ready }

func (f *fakeClassifier) DefaultIdentifier() string { return model.DefaultIdentifier }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
	Meta    *MetaInfo       `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestClassify(t *testing.T) {
	router := NewRouter(&fakeClassifier{ready: true}, discardLogger())

	w := do(t, router, http.MethodPost, "/api/v1/classify", `{"text":"Your verification code is 482915"}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decode(t, w)
	assert.True(t, env.Success)
	require.NotNil(t, env.Meta)
	assert.NotEmpty(t, env.Meta.RequestID)
	assert.Equal(t, env.Meta.RequestID, w.Header().Get(RequestIDHeader))
	_, err := time.Parse(time.RFC3339, env.Meta.Timestamp)
	assert.NoError(t, err)

	var data struct {
		Label        string             `json:"label"`
		Confidence   float64            `json:"confidence"`
		Distribution map[string]float64 `json:"distribution"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Code Verification", data.Label)
	assert.InDelta(t, 0.85, data.Confidence, 1e-9)
	assert.Len(t, data.Distribution, model.NumLabels)
}

func TestClassify_SubjectAndBody(t *testing.T) {
	fc := &fakeClassifier{ready: true}
	router := NewRouter(fc, discardLogger())

	w := do(t, router, http.MethodPost, "/api/v1/classify", `{"subject":"Login code","body":"Use 482915"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fc.texts, 1)
	assert.Equal(t, "Login code\nUse 482915", fc.texts[0])
}

func TestClassify_Errors(t *testing.T) {
	router := NewRouter(&fakeClassifier{ready: true}, discardLogger())

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty text", `{"text":"   "}`, http.StatusBadRequest, "EMPTY_INPUT"},
		{"missing text", `{}`, http.StatusBadRequest, "EMPTY_INPUT"},
		{"invalid json", `{"text":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"model unavailable", `{"text":"missing"}`, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"},
		{"inference failure", `{"text":"boom"}`, http.StatusInternalServerError, "INFERENCE_FAILED"},
		{"deadline", `{"text":"slow"}`, http.StatusGatewayTimeout, "TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/classify", tt.body)
			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
			assert.Nil(t, env.Data)
		})
	}
}

func TestClassify_BodyTooLarge(t *testing.T) {
	router := NewRouter(&fakeClassifier{ready: true}, discardLogger())
	body := `{"text":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`

	w := do(t, router, http.MethodPost, "/api/v1/classify", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode(t, w).Error.Code)
}

func TestClassifyBatch_BodyTooLarge(t *testing.T) {
	router := NewRouter(&fakeClassifier{ready: true}, discardLogger())
	body := `{"texts":["` + strings.Repeat("a", maxBodyBytes+1) + `"]}`

	w := do(t, router, http.MethodPost, "/api/v1/classify/batch", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode(t, w).Error.Code)
}

func TestClassifyBatch(t *testing.T) {
	router := NewRouter(&fakeClassifier{ready: true}, discardLogger())

	w := do(t, router, http.MethodPost, "/api/v1/classify/batch", `{"texts":["one code","two code"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var results []struct {
		Label string `json:"label"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Code Verification", results[1].Label)

	w = do(t, router, http.MethodPost, "/api/v1/classify/batch", `{"texts":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/classify/batch", `{"texts":["ok"," "]}`)
	assert.Equal(t, "EMPTY_INPUT", decode(t, w).Error.Code)

	many, _ := json.Marshal(BatchRequest{Texts: make([]string, maxBatchTexts+1)})
	w = do(t, router, http.MethodPost, "/api/v1/classify/batch", string(many))
	assert.Equal(t, "INVALID_REQUEST", decode(t, w).Error.Code)
}

func TestLabels(t *testing.T) {
	router := NewRouter(&fakeClassifier{}, discardLogger())

	w := do(t, router, http.MethodGet, "/api/v1/labels", "")
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &names))
	assert.Equal(t, []string{
		"Promotions", "Spam", "Social Media Updates",
		"Forum Updates", "Code Verification", "Work Updates",
	}, names)
}

func TestHealthAndReady(t *testing.T) {
	fc := &fakeClassifier{}
	router := NewRouter(fc, discardLogger())

	w := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.DefaultIdentifier)

	w = do(t, router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not ready")

	fc.ready = true
	w = do(t, router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)
}

func TestIndexPage(t *testing.T) {
	router := NewRouter(&fakeClassifier{}, discardLogger())

	w := do(t, router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<title>Smart Email Classifier</title>")
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, c.GetString(requestIDKey))
		})

		w := do(t, router, http.MethodGet, "/test", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Body.String())
		assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
	})

	t.Run("uses provided request ID", func(t *testing.T) {
		router := NewRouter(&fakeClassifier{}, discardLogger())

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/labels", http.NoBody)
		req.Header.Set(RequestIDHeader, "custom-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "custom-request-id-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "custom-request-id-123", decode(t, w).Meta.RequestID)
	})
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	router := NewRouter(&fakeClassifier{ready: true}, logger)

	do(t, router, http.MethodGet, "/health", "")
	do(t, router, http.MethodPost, "/api/v1/classify", `{"text":""}`)
	do(t, router, http.MethodPost, "/api/v1/classify", `{"text":"boom"}`)

	out := buf.String()
	assert.Contains(t, out, "level=INFO msg=\"http request\"")
	assert.Contains(t, out, "level=WARN msg=\"http request\"")
	assert.Contains(t, out, "level=ERROR msg=\"http request\"")
	assert.Contains(t, out, "path=/api/v1/classify")
}

func TestRecovery(t *testing.T) {
	router := NewRouter(&fakeClassifier{ready: true}, discardLogger())

	w := do(t, router, http.MethodPost, "/api/v1/classify", `{"text":"panic"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
}

func TestServerRunShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(addr, &fakeClassifier{ready: true}, discardLogger(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerRunAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(ln.Addr().String(), &fakeClassifier{}, discardLogger(), time.Second)
	err = s.Run(context.Background())
	assert.Error(t, err)
}
