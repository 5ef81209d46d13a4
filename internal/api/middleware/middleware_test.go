package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pathorama/internal/logging"
)

type mockHTTPRecorder struct {
	mock.Mock
}

func (m *mockHTTPRecorder) IncrementHTTPRequests(method, path, status string) {
	m.Called(method, path, status)
}

func (m *mockHTTPRecorder) RecordHTTPDuration(method, path string, duration time.Duration) {
	m.Called(method, path, duration)
}

func (m *mockHTTPRecorder) IncrementHTTPErrors(method, path, errorType string) {
	m.Called(method, path, errorType)
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("client supplied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	assert.Equal(t, "unknown", GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: logging.LevelInfo, Format: logging.FormatJSON}, &buf)

	handler := RequestID()(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "HTTP request completed", entry["msg"])
	assert.Equal(t, "/api/v1/status", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status_code"])
	assert.Equal(t, float64(len("short and stout")), entry["response_size"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), entry["request_id"])
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &mockHTTPRecorder{}
	rec.On("IncrementHTTPRequests", http.MethodGet, "/items/{id}", "200").Once()
	rec.On("RecordHTTPDuration", http.MethodGet, "/items/{id}", mock.AnythingOfType("time.Duration")).Once()
	rec.On("IncrementHTTPRequests", http.MethodGet, "/items/{id}", "404").Once()
	rec.On("RecordHTTPDuration", http.MethodGet, "/items/{id}", mock.AnythingOfType("time.Duration")).Once()
	rec.On("IncrementHTTPErrors", http.MethodGet, "/items/{id}", "Not Found").Once()

	router := mux.NewRouter()
	router.Use(Metrics(rec))
	router.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] == "missing" {
			http.NotFound(w, r)
			return
		}
		okHandler(w, r)
	})

	for _, path := range []string{"/items/42", "/items/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	rec.AssertExpectations(t)

	t.Run("nil recorder", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Metrics(nil)(http.HandlerFunc(okHandler)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RequestID()(Recovery(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body["request_id"])
}

func TestContentTypeMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"get ignored", http.MethodGet, "text/plain", http.StatusOK},
		{"post json", http.MethodPost, "application/json", http.StatusOK},
		{"post json with charset", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"post without header", http.MethodPost, "", http.StatusOK},
		{"post form", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"put text", http.MethodPut, "text/plain", http.StatusUnsupportedMediaType},
	}

	handler := ContentType()(http.HandlerFunc(okHandler))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:1234", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "1.1.1.1:1234", "10.0.0.3"},
		{"remote addr", nil, "192.168.1.5:4321", "192.168.1.5"},
		{"ipv6 remote addr", nil, "[::1]:4321", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	rw.WriteHeader(http.StatusCreated)
	n, err := rw.Write([]byte("created"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, n, rw.size)
	rw.Flush()
	assert.True(t, rec.Flushed)

	_, _, err = rw.Hijack()
	assert.Error(t, err, "httptest recorder cannot be hijacked")
}
