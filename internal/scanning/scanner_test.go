package scanning

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/probe"
)

// funcProber adapts a function to the Prober interface.
type funcProber func(ctx context.Context, rawURL string) probe.Result

func (f funcProber) Probe(ctx context.Context, rawURL string) probe.Result {
	return f(ctx, rawURL)
}

func statusProber(statuses map[string]int) funcProber {
	return func(_ context.Context, rawURL string) probe.Result {
		status, ok := statuses[rawURL]
		if !ok {
			status = http.StatusNotFound
		}
		kind := probe.KindSuccess
		if status >= 300 {
			kind = probe.KindHTTPError
		}
		return probe.Result{URL: rawURL, Kind: kind, Status: status, Size: 42}
	}
}

type hitCollector struct {
	mu   sync.Mutex
	hits []Hit
}

func (c *hitCollector) handle(h Hit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = append(c.hits, h)
}

func (c *hitCollector) all() []Hit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Hit(nil), c.hits...)
}

func quietLogger() *logging.Logger {
	return logging.Discard()
}

func TestScanner_RobotsHitSecretMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	collector := &hitCollector{}
	s, err := New(srv.URL, []string{"robots.txt", "secret.txt"}, collector.handle,
		WithThreads(2), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	s.WaitForCompletion()

	stats := s.Stats()
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, StateCompleted, s.State())
	assert.InDelta(t, 100.0, stats.Percent, 0.001)

	hits := collector.all()
	require.Len(t, hits, 1)
	assert.Equal(t, srv.URL+"/robots.txt", hits[0].URL)
	assert.Equal(t, http.StatusOK, hits[0].Status)
	assert.Equal(t, int64(len("User-agent: *\n")), hits[0].Size)
}

func TestScanner_OnlyFilteredStatusesForwarded(t *testing.T) {
	target := "http://example.test"
	statuses := map[string]int{
		target + "/ok":        200,
		target + "/created":   201,
		target + "/moved":     301,
		target + "/temp":      307,
		target + "/forbidden": 403,
		target + "/missing":   404,
		target + "/broken":    500,
	}
	paths := []string{"ok", "created", "moved", "temp", "forbidden", "missing", "broken"}

	collector := &hitCollector{}
	s, err := New(target, paths, collector.handle,
		WithThreads(3), WithProber(statusProber(statuses)), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	s.WaitForCompletion()

	hits := collector.all()
	assert.Len(t, hits, 4)
	assert.LessOrEqual(t, len(hits), len(paths))
	for _, h := range hits {
		assert.True(t, probe.IsHit(h.Status), "status %d should not be forwarded", h.Status)
	}
	assert.Equal(t, len(paths), s.Stats().Scanned)
}

func TestScanner_UnreachableTarget(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	collector := &hitCollector{}
	paths := []string{"a", "b", "c", "d", "e"}
	s, err := New("http://"+addr, paths, collector.handle, WithThreads(2), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	s.WaitForCompletion()

	stats := s.Stats()
	assert.Equal(t, len(paths), stats.Failed)
	assert.Equal(t, 0, stats.Succeeded)
	assert.Equal(t, len(paths), stats.Errors)
	assert.Empty(t, collector.all())
}

func TestScanner_ThreadClamping(t *testing.T) {
	tests := []struct {
		requested, want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{25, 25},
		{50, 50},
		{1000, 50},
	}

	for _, tt := range tests {
		s, err := New("http://example.test", nil, nil, WithThreads(tt.requested))
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Threads(), "requested %d", tt.requested)
	}
}

func TestScanner_ZeroPaths(t *testing.T) {
	s, err := New("http://example.test", nil, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	s.WaitForCompletion()

	stats := s.Stats()
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 0, stats.Total)
	assert.InDelta(t, 100.0, stats.Percent, 0.001)
}

func TestScanner_ScanTwiceReturnsFalse(t *testing.T) {
	s, err := New("http://example.test", []string{"a"}, nil,
		WithProber(statusProber(nil)), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.True(t, s.Scan())
	assert.False(t, s.Scan())
	s.WaitForCompletion()
	assert.False(t, s.Scan(), "a completed scanner cannot be restarted")
}

func TestScanner_Cancel(t *testing.T) {
	var started atomic.Int32
	blocking := funcProber(func(ctx context.Context, rawURL string) probe.Result {
		started.Add(1)
		<-ctx.Done()
		return probe.Result{URL: rawURL, Kind: probe.KindNetworkError, Err: ctx.Err()}
	})

	paths := make([]string, 200)
	for i := range paths {
		paths[i] = "p"
	}

	s, err := New("http://example.test", paths, nil,
		WithThreads(4), WithProber(blocking), WithJoinTimeout(200*time.Millisecond), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	require.Eventually(t, func() bool { return started.Load() == 4 }, time.Second, 5*time.Millisecond)

	assert.True(t, s.Cancel())
	assert.False(t, s.IsRunning())
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, s.Cancel(), "second cancel is a no-op")

	done := make(chan struct{})
	go func() {
		s.WaitForCompletion()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForCompletion should return after cancel")
	}
	assert.Equal(t, StateStopped, s.State(), "cancelled scan is never marked completed")
	assert.Less(t, s.Stats().Scanned, len(paths))

	s.Dispose()
	s.Dispose()
}

func TestScanner_CancelBeforeScan(t *testing.T) {
	s, err := New("http://example.test", []string{"a"}, nil)
	require.NoError(t, err)
	assert.False(t, s.Cancel())
	assert.Equal(t, StateIdle, s.State())
}

func TestScanner_RecoversFromHandlerPanic(t *testing.T) {
	target := "http://example.test"
	statuses := map[string]int{target + "/a": 200, target + "/b": 200, target + "/c": 200}

	var calls atomic.Int32
	handler := func(h Hit) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	}

	s, err := New(target, []string{"a", "b", "c"}, handler,
		WithThreads(1), WithProber(statusProber(statuses)), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	s.WaitForCompletion()

	assert.Equal(t, int32(3), calls.Load(), "worker keeps going after a panic")
	assert.Equal(t, 3, s.Stats().Scanned)
}

func TestScanner_RecoversFromProberPanic(t *testing.T) {
	panicky := funcProber(func(_ context.Context, rawURL string) probe.Result {
		panic("prober exploded")
	})

	s, err := New("http://example.test", []string{"a", "b"}, nil,
		WithThreads(1), WithProber(panicky), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.True(t, s.Scan())
	s.WaitForCompletion()

	stats := s.Stats()
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Failed)
}

func TestScanner_StatsRate(t *testing.T) {
	s, err := New("http://example.test", nil, nil)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Zero(t, stats.Duration)
	assert.Zero(t, stats.Rate)
	assert.Equal(t, "idle", stats.State)
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://Example.COM", "http://example.com", false},
		{"example.com", "http://example.com", false},
		{"https://example.com:443/admin/", "https://example.com", false},
		{"http://example.com:80", "http://example.com", false},
		{"http://example.com:8080/", "http://example.com:8080", false},
		{"https://example.com:80", "https://example.com:80", false},
		{"http://[::1]:8080", "http://[::1]:8080", false},
		{"ftp://example.com", "", true},
		{"", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
