package scanning

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/anstrom/pathorama/internal/errors"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/metrics"
	"github.com/anstrom/pathorama/internal/probe"
)

const (
	MinThreads           = 1
	MaxThreads           = 50
	DefaultThreads       = 10
	DefaultJoinTimeout   = time.Second
	DefaultProgressEvery = 100
)

// State is the lifecycle state of a Scanner.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Prober issues a single probe. *probe.Client implements it.
type Prober interface {
	Probe(ctx context.Context, rawURL string) probe.Result
}

// Hit is a probe result that passed the status filter.
type Hit struct {
	URL    string
	Status int
	Size   int64
	Result probe.Result
}

// HitHandler receives hits. Calls for one Scanner are serialized.
type HitHandler func(Hit)

// Stats is a point-in-time snapshot of scanner progress.
type Stats struct {
	ID        string        `json:"id"`
	Target    string        `json:"target"`
	State     string        `json:"state"`
	Threads   int           `json:"threads"`
	Total     int           `json:"total"`
	Scanned   int           `json:"scanned"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    int           `json:"errors"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	Rate      float64       `json:"rate"`
	Percent   float64       `json:"percent"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithThreads sets the worker count. Values are clamped to [MinThreads, MaxThreads].
func WithThreads(n int) Option {
	return func(s *Scanner) {
		s.threads = ClampThreads(n)
	}
}

// WithProber replaces the default probe client.
func WithProber(p Prober) Option {
	return func(s *Scanner) {
		if p != nil {
			s.prober = p
		}
	}
}

// WithJoinTimeout bounds how long Cancel waits for each worker.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.joinTimeout = d
		}
	}
}

// WithProgressEvery sets how many scanned paths separate progress log lines.
func WithProgressEvery(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.progressEvery = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scanner) {
		if r != nil {
			s.recorder = r
		}
	}
}

// ClampThreads bounds n to [MinThreads, MaxThreads].
func ClampThreads(n int) int {
	switch {
	case n < MinThreads:
		return MinThreads
	case n > MaxThreads:
		return MaxThreads
	default:
		return n
	}
}

// NormalizeTarget turns a user supplied origin into "scheme://host[:port]".
// A missing scheme defaults to http; default ports and any path are dropped.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.ErrInvalidTarget(raw, fmt.Errorf("empty target"))
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.ErrInvalidTarget(raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.ErrInvalidTarget(raw, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return "", errors.ErrInvalidTarget(raw, fmt.Errorf("missing host"))
	}

	return FormatOrigin(scheme, u.Hostname(), u.Port()), nil
}

// FormatOrigin builds an origin string, omitting the port when it is the
// scheme's default.
func FormatOrigin(scheme, host, port string) string {
	scheme = strings.ToLower(scheme)
	host = strings.ToLower(host)
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	if port == "" || (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + port
}
