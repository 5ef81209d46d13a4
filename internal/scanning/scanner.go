package scanning

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/metrics"
	"github.com/anstrom/pathorama/internal/probe"
)

// Scanner enumerates dictionary paths against a single target origin.
type Scanner struct {
	id      string
	target  string
	paths   []string
	handler HitHandler

	threads       int
	prober        Prober
	joinTimeout   time.Duration
	progressEvery int
	logger        *logging.Logger
	recorder      metrics.Recorder

	queue   chan string
	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	workers []*worker

	mu        sync.Mutex
	state     State
	scanned   int
	succeeded int
	failed    int
	errored   int
	startTime time.Time
	endTime   time.Time
}

type worker struct {
	id   int
	done chan struct{}
}

// New creates an idle Scanner for target. paths are shared read-only and
// must not be modified while the scanner runs.
func New(target string, paths []string, handler HitHandler, opts ...Option) (*Scanner, error) {
	normalized, err := NormalizeTarget(target)
	if err != nil {
		return nil, err
	}

	s := &Scanner{
		id:            uuid.NewString(),
		target:        normalized,
		paths:         paths,
		handler:       handler,
		threads:       DefaultThreads,
		joinTimeout:   DefaultJoinTimeout,
		progressEvery: DefaultProgressEvery,
		logger:        logging.Default(),
		recorder:      metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prober == nil {
		s.prober = probe.New(probe.DefaultConfig())
	}
	s.logger = s.logger.WithComponent("scanner").WithTarget(s.target).WithScanID(s.id)

	return s, nil
}

// ID returns the scanner's unique identifier.
func (s *Scanner) ID() string { return s.id }

// Target returns the normalized target origin.
func (s *Scanner) Target() string { return s.target }

// Threads returns the clamped worker count.
func (s *Scanner) Threads() int { return s.threads }

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the scanner is in the Running state.
func (s *Scanner) IsRunning() bool {
	return s.State() == StateRunning
}

// Scan starts the worker pool. It returns false if the scanner was already started.
func (s *Scanner) Scan() bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.logger.Warn("Scanner is already running or finished", "state", s.State())
		return false
	}

	s.state = StateRunning
	s.startTime = time.Now()
	s.scanned, s.succeeded, s.failed, s.errored = 0, 0, 0, 0

	s.queue = make(chan string, len(s.paths))
	for _, p := range s.paths {
		s.queue <- p
	}
	close(s.queue)
	s.pending.Add(len(s.paths))

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.workers = make([]*worker, s.threads)
	for i := range s.workers {
		w := &worker{id: i, done: make(chan struct{})}
		s.workers[i] = w
		go s.run(w)
	}
	s.mu.Unlock()

	s.recorder.ScannerStarted()
	s.logger.Info("Start scanning", "paths", len(s.paths), "threads", s.threads)
	return true
}

// WaitForCompletion blocks until every queued path has been processed or
// discarded. A scan that drained normally is marked Completed.
func (s *Scanner) WaitForCompletion() {
	s.pending.Wait()

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateCompleted
	s.endTime = time.Now()
	s.mu.Unlock()

	stats := s.Stats()
	s.recorder.ScannerFinished(StateCompleted.String(), stats.Duration)
	s.logger.Info("Scan completed",
		"scanned", stats.Scanned,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"duration", stats.Duration,
		"rate", fmt.Sprintf("%.2f/s", stats.Rate))
}

// Cancel stops a running scan. Remaining paths are discarded and each worker
// is given a bounded time to exit. It returns false if the scan was not running.
func (s *Scanner) Cancel() bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	s.state = StateCancelled
	s.cancel()
	workers := s.workers
	s.mu.Unlock()

	s.logger.Info("Cancelling scan")

	discarded := 0
	for range s.queue {
		s.pending.Done()
		discarded++
	}

	timer := time.NewTimer(s.joinTimeout)
	defer timer.Stop()
	for _, w := range workers {
		timer.Reset(s.joinTimeout)
		select {
		case <-w.done:
		case <-timer.C:
			s.logger.Warn("Worker did not exit within join timeout", "worker_id", w.id, "timeout", s.joinTimeout)
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.endTime = time.Now()
	s.mu.Unlock()

	stats := s.Stats()
	s.recorder.ScannerFinished(StateStopped.String(), stats.Duration)
	s.logger.Info("Scan stopped",
		"scanned", stats.Scanned,
		"discarded", discarded,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed)
	return true
}

// Dispose cancels the scan and releases worker handles. Safe to call repeatedly.
func (s *Scanner) Dispose() {
	s.Cancel()

	s.mu.Lock()
	s.workers = nil
	s.mu.Unlock()
}

// Stats returns a snapshot computed from the scanner's counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ID:        s.id,
		Target:    s.target,
		State:     s.state.String(),
		Threads:   s.threads,
		Total:     len(s.paths),
		Scanned:   s.scanned,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Errors:    s.errored,
		StartTime: s.startTime,
		EndTime:   s.endTime,
		Percent:   percent(s.scanned, len(s.paths)),
	}

	switch {
	case s.startTime.IsZero():
	case s.endTime.IsZero():
		stats.Duration = time.Since(s.startTime)
	default:
		stats.Duration = s.endTime.Sub(s.startTime)
	}
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.Rate = float64(s.scanned) / secs
	}
	return stats
}

func (s *Scanner) run(w *worker) {
	defer close(w.done)

	s.logger.Debug("Worker started", "worker_id", w.id)
	defer s.logger.Debug("Worker stopped", "worker_id", w.id)

	for {
		path, ok := <-s.queue
		if !ok {
			return
		}
		if s.ctx.Err() != nil {
			s.pending.Done()
			continue
		}
		s.process(w, path)
	}
}

// process probes a single path. Panics are recovered so one bad iteration
// never takes a worker down.
func (s *Scanner) process(w *worker, path string) {
	target := s.target + "/" + path
	counted := false

	defer s.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Worker iteration panicked",
				"worker_id", w.id,
				"url", target,
				"panic", r,
				"stack", string(debug.Stack()))
			if !counted {
				s.mu.Lock()
				s.scanned++
				s.failed++
				s.mu.Unlock()
			}
		}
	}()

	result := s.prober.Probe(s.ctx, target)
	if s.ctx.Err() != nil {
		// Cancelled mid-flight; the result says nothing about the target.
		return
	}
	s.recorder.RecordProbe(result.Kind.String(), result.Duration)

	if result.Kind == probe.KindNetworkError || result.Kind == probe.KindUnknownError {
		s.logger.WarnProbe("Request error", target, result.Err, "kind", result.Kind.String())
	}

	s.record(target, result, &counted)
}

func (s *Scanner) record(target string, result probe.Result, counted *bool) {
	var progress *Stats

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		if progress != nil {
			s.logger.Info("Scan progress",
				"scanned", progress.Scanned,
				"total", progress.Total,
				"percent", fmt.Sprintf("%.1f%%", progress.Percent),
				"succeeded", progress.Succeeded,
				"failed", progress.Failed)
		}
	}()

	s.scanned++
	*counted = true
	if result.Kind == probe.KindNetworkError || result.Kind == probe.KindUnknownError {
		s.errored++
	}

	if result.IsHit() {
		s.succeeded++
		s.recorder.RecordHit(result.Status)
		if s.handler != nil {
			s.handler(Hit{
				URL:    target,
				Status: result.Status,
				Size:   result.Size,
				Result: result,
			})
		}
	} else {
		s.failed++
	}

	if s.scanned%s.progressEvery == 0 {
		progress = &Stats{
			Scanned:   s.scanned,
			Total:     len(s.paths),
			Succeeded: s.succeeded,
			Failed:    s.failed,
			Percent:   percent(s.scanned, len(s.paths)),
		}
	}
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
