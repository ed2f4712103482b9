// Package httpkit builds the HTTP clients used for outbound calls:
// search providers, page fetches, sentiment endpoints and Ollama. Every
// client shares one pooled transport, sends the agentone User-Agent and
// can retry dial failures and overloaded upstreams.
package httpkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/huraaa/Agent-one/internal/buildinfo"
	"github.com/huraaa/Agent-one/internal/retry"
)

const (
	DefaultTimeout             = 30 * time.Second
	DefaultDialTimeout         = 10 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultResponseHeader      = 30 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConns        = 20
	DefaultMaxIdleConnsPerHost = 5
)

// ClientOption configures NewClient.
type ClientOption func(*options)

type options struct {
	timeout   time.Duration
	userAgent string
	retries   int
	delay     time.Duration
	logger    *slog.Logger
	base      http.RoundTripper
}

// WithTimeout sets the whole-request timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *options) { o.timeout = d }
}

// WithUserAgent replaces the default agentone/<version> User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(o *options) { o.userAgent = ua }
}

// WithRetry allows count extra attempts after a dial failure or a 429,
// 502, 503 or 504 response. Waits start at delay and double. Requests
// whose body cannot be rewound through GetBody are sent once.
func WithRetry(count int, delay time.Duration) ClientOption {
	return func(o *options) { o.retries, o.delay = count, delay }
}

// WithLogger receives a debug record per retry.
func WithLogger(l *slog.Logger) ClientOption {
	return func(o *options) { o.logger = l }
}

// NewTransport returns the pooled transport all clients start from.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeader,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient returns an *http.Client with a 30s timeout unless
// overridden.
func NewClient(opts ...ClientOption) *http.Client {
	o := options{timeout: DefaultTimeout, userAgent: buildinfo.UserAgent()}
	for _, opt := range opts {
		opt(&o)
	}
	return &http.Client{Timeout: o.timeout, Transport: newTransport(o)}
}

// transport stamps the User-Agent and applies the retry policy.
type transport struct {
	base   http.RoundTripper
	ua     string
	policy retry.Policy
	logger *slog.Logger
}

func newTransport(o options) *transport {
	base := o.base
	if base == nil {
		base = NewTransport()
	}
	return &transport{
		base: base,
		ua:   o.userAgent,
		policy: retry.Policy{
			MaxAttempts: o.retries + 1,
			BaseDelay:   o.delay,
			MaxDelay:    8 * o.delay,
			Retryable:   retryable,
		},
		logger: o.logger,
	}
}

// overloaded carries a response whose status invites another attempt.
type overloaded struct{ resp *http.Response }

func (e *overloaded) Error() string { return fmt.Sprintf("upstream status %d", e.resp.StatusCode) }

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ua != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	rewindable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	if t.policy.MaxAttempts <= 1 || !rewindable {
		return t.base.RoundTrip(req)
	}

	policy := t.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		var ov *overloaded
		if errors.As(err, &ov) {
			DrainAndClose(ov.resp.Body, 4<<10)
		}
		if t.logger != nil {
			t.logger.Debug("retrying request",
				"method", req.Method, "host", req.URL.Host,
				"attempt", attempt, "delay", delay, "error", err)
		}
	}

	attempt := 0
	resp, err := retry.Do(req.Context(), policy, func(ctx context.Context) (*http.Response, error) {
		attempt++
		r := req
		if attempt > 1 {
			r = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, retry.Permanent(fmt.Errorf("rewind body: %w", err))
				}
				r.Body = body
			}
		}
		resp, err := t.base.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, &overloaded{resp: resp}
		}
		return resp, nil
	})
	var ov *overloaded
	if errors.As(err, &ov) {
		// Out of attempts: hand the last response to the caller.
		return ov.resp, nil
	}
	return resp, err
}

// retryable accepts overloaded responses and dial errors raised before
// the request reached the server. A reset connection is not retried
// because the server may have acted on it.
func retryable(err error) bool {
	var ov *overloaded
	if errors.As(err, &ov) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// DrainAndClose discards up to limit bytes of rc and closes it so the
// connection can be reused.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	_ = rc.Close()
}

// ReadErrorBody returns up to limit bytes of an error response body for
// use in an error message, then drains and closes it.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	defer DrainAndClose(rc, 1<<10)
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return fmt.Sprintf("(unreadable body: %v)", err)
	}
	return string(body)
}
