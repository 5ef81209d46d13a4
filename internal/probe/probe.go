// Package probe issues single non-redirecting GET requests and classifies the outcome.
package probe

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultUserAgent    = "Mozilla/5.0 (compatible; URLScanner/1.0)"
	DefaultMaxBodyBytes = 1 << 20

	acceptEncoding = "gzip, deflate"
)

// Kind classifies a probe outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindHTTPError
	KindNetworkError
	KindUnknownError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindHTTPError:
		return "http_error"
	case KindNetworkError:
		return "network_error"
	default:
		return "unknown_error"
	}
}

// IsHit reports whether status is interesting enough to be forwarded:
// 200, 403, or any redirect.
func IsHit(status int) bool {
	return status == http.StatusOK || status == http.StatusForbidden ||
		(status >= 300 && status < 400)
}

// Config controls probe behavior.
type Config struct {
	Timeout            time.Duration
	UserAgent          string
	InsecureSkipVerify bool
	// CaptureBody keeps up to MaxBodyBytes of the response body on the result.
	CaptureBody  bool
	MaxBodyBytes int64
}

// DefaultConfig returns the default probe configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		CaptureBody:  true,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Response is a detached snapshot of an HTTP response. The live body has
// already been consumed and closed.
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     http.Header
	Body       []byte
	Truncated  bool
}

// Result is the outcome of one probe.
type Result struct {
	URL      string
	Kind     Kind
	Status   int
	Size     int64
	Duration time.Duration
	Request  *http.Request
	Response *Response
	Err      error
}

// IsHit reports whether the result carries a status that passes the hit filter.
func (r Result) IsHit() bool {
	return (r.Kind == KindSuccess || r.Kind == KindHTTPError) && IsHit(r.Status)
}

// Client probes URLs. It is safe for concurrent use.
type Client struct {
	config Config
	http   *http.Client
}

// New creates a probe client. Zero fields of cfg fall back to defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // scanning hosts with self-signed certs
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
	}

	return &Client{
		config: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Probe issues a GET for rawURL. It never returns an error: failures are
// reported through Result.Kind and Result.Err.
func (c *Client) Probe(ctx context.Context, rawURL string) Result {
	start := time.Now()
	result := Result{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		result.Kind = KindUnknownError
		result.Err = err
		return result
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)
	result.Request = req

	resp, err := c.http.Do(req)
	if err != nil {
		result.Duration = time.Since(start)
		result.Kind = Classify(err)
		result.Err = err
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.Status = resp.StatusCode
	result.Kind = KindSuccess
	if resp.StatusCode >= 300 {
		result.Kind = KindHTTPError
	}

	snapshot := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Proto:      resp.Proto,
		Header:     resp.Header.Clone(),
	}
	result.Response = snapshot

	size, err := c.consumeBody(resp, snapshot)
	result.Size = size
	result.Duration = time.Since(start)
	if err != nil {
		// The status line arrived; a broken body only degrades the snapshot.
		result.Err = err
	}
	return result
}

// consumeBody determines the response size and optionally captures the body.
// An explicit Content-Length is trusted without reading the body.
func (c *Client) consumeBody(resp *http.Response, snapshot *Response) (int64, error) {
	hasLength := resp.ContentLength >= 0
	if hasLength && !c.config.CaptureBody {
		return resp.ContentLength, nil
	}

	var (
		read int64
		err  error
	)
	if c.config.CaptureBody {
		limited := io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
		snapshot.Body, err = io.ReadAll(limited)
		read = int64(len(snapshot.Body))
		if read > c.config.MaxBodyBytes {
			snapshot.Body = snapshot.Body[:c.config.MaxBodyBytes]
			snapshot.Truncated = true
			if !hasLength {
				var rest int64
				rest, err = io.Copy(io.Discard, resp.Body)
				read += rest
			}
		}
	} else {
		read, err = io.Copy(io.Discard, resp.Body)
	}

	if hasLength {
		return resp.ContentLength, err
	}
	return read, err
}

// Classify maps a transport error to a probe kind. Connection level failures
// (timeouts, refused connections, DNS and socket errors) are network errors.
func Classify(err error) Kind {
	if err == nil {
		return KindSuccess
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var (
		netErr net.Error
		opErr  *net.OpError
		dnsErr *net.DNSError
		errno  syscall.Errno
	)
	switch {
	case stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, io.EOF),
		stderrors.Is(err, io.ErrUnexpectedEOF),
		stderrors.As(err, &opErr),
		stderrors.As(err, &dnsErr),
		stderrors.As(err, &errno),
		stderrors.As(err, &netErr):
		return KindNetworkError
	}
	return KindUnknownError
}
