package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_SuccessWithContentLength(t *testing.T) {
	var gotUA, gotAE string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAE = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Length", "11")
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	client := New(DefaultConfig())
	result := client.Probe(context.Background(), srv.URL+"/robots.txt")

	require.NoError(t, result.Err)
	assert.Equal(t, KindSuccess, result.Kind)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, int64(11), result.Size)
	assert.True(t, result.IsHit())
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "gzip, deflate", gotAE)
	require.NotNil(t, result.Response)
	assert.Equal(t, []byte("hello world"), result.Response.Body)
	require.NotNil(t, result.Request)
	assert.Equal(t, "/robots.txt", result.Request.URL.Path)
}

func TestProbe_SizeFromBodyWhenNoContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
		flusher.Flush() // forces chunked encoding
		_, _ = w.Write([]byte(strings.Repeat("b", 50)))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 120
	result := New(cfg).Probe(context.Background(), srv.URL)

	assert.Equal(t, int64(150), result.Size)
	assert.True(t, result.Response.Truncated)
	assert.Len(t, result.Response.Body, 120)
}

func TestProbe_SizeWithoutCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("abcdef"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.CaptureBody = false
	result := New(cfg).Probe(context.Background(), srv.URL)

	assert.Equal(t, int64(6), result.Size)
	assert.Nil(t, result.Response.Body)
}

func TestProbe_RedirectNotFollowed(t *testing.T) {
	followed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/landing" {
			followed = true
			return
		}
		http.Redirect(w, r, "/landing", http.StatusFound)
	}))
	defer srv.Close()

	result := New(DefaultConfig()).Probe(context.Background(), srv.URL+"/admin")

	assert.False(t, followed, "redirect must not be followed")
	assert.Equal(t, KindHTTPError, result.Kind)
	assert.Equal(t, http.StatusFound, result.Status)
	assert.Equal(t, "/landing", result.Response.Header.Get("Location"))
	assert.True(t, result.IsHit())
}

func TestProbe_HTTPErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		hit    bool
	}{
		{http.StatusOK, true},
		{http.StatusNoContent, false},
		{http.StatusMovedPermanently, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status >= 300 && tt.status < 400 {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := New(DefaultConfig()).Probe(context.Background(), srv.URL)
			assert.NoError(t, result.Err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.hit, result.IsHit())
			if tt.status >= 300 {
				assert.Equal(t, KindHTTPError, result.Kind)
			} else {
				assert.Equal(t, KindSuccess, result.Kind)
			}
		})
	}
}

func TestProbe_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	result := New(DefaultConfig()).Probe(context.Background(), "http://"+addr+"/admin")

	assert.Equal(t, KindNetworkError, result.Kind)
	assert.Error(t, result.Err)
	assert.Zero(t, result.Status)
	assert.False(t, result.IsHit())
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	result := New(cfg).Probe(context.Background(), srv.URL)

	assert.Equal(t, KindNetworkError, result.Kind)
}

func TestProbe_InvalidURL(t *testing.T) {
	result := New(DefaultConfig()).Probe(context.Background(), "http://[::1/bad")
	assert.Equal(t, KindUnknownError, result.Kind)
	assert.Error(t, result.Err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindSuccess, Classify(nil))
	assert.Equal(t, KindNetworkError, Classify(&net.DNSError{Err: "no such host", Name: "nowhere.invalid"}))
	assert.Equal(t, KindNetworkError, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindUnknownError, Classify(errors.New("something odd")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "success", KindSuccess.String())
	assert.Equal(t, "http_error", KindHTTPError.String())
	assert.Equal(t, "network_error", KindNetworkError.String())
	assert.Equal(t, "unknown_error", KindUnknownError.String())
}
