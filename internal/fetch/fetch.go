// Package fetch downloads a web page and reduces it to readable text
// for the fetch_url tool.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/huraaa/Agent-one/internal/httpkit"
)

const (
	// DefaultTimeout bounds a single page download.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes caps how much of a response body is read.
	DefaultMaxBytes int64 = 5 << 20
	// DefaultMaxChars is the text budget when the caller gives none.
	DefaultMaxChars = 8000
)

// ErrNoURL is returned when Fetch is called without a target.
var ErrNoURL = errors.New("url is required")

// Page is the readable rendition of one fetched URL.
type Page struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	Chars       int    `json:"chars"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// Fetcher downloads pages over HTTP.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithMaxBytes caps the number of body bytes read per page.
func WithMaxBytes(n int64) Option { return func(f *Fetcher) { f.maxBytes = n } }

// New returns a Fetcher using an httpkit client with one retry.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = httpkit.NewClient(
			httpkit.WithTimeout(DefaultTimeout),
			httpkit.WithRetry(1, time.Second),
		)
	}
	return f
}

// Fetch downloads target and returns at most maxChars runes of its
// text. A bare host gets an https scheme. maxChars <= 0 means
// DefaultMaxChars.
func (f *Fetcher) Fetch(ctx context.Context, target string, maxChars int) (*Page, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrNoURL
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("get %s: status %d: %s", u.Host, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 256))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Host, err)
	}

	page := &Page{
		URL:         u.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	switch mediaType(page.ContentType) {
	case "text/html", "application/xhtml+xml":
		page.Title, page.Text = readable(bytes.NewReader(body))
	default:
		if !utf8.Valid(body) {
			page.Text = fmt.Sprintf("[binary %s, %d bytes]", page.ContentType, len(body))
			break
		}
		page.Text = strings.TrimSpace(string(body))
	}
	page.Text, page.Truncated = clip(page.Text, maxChars)
	page.Chars = utf8.RuneCountInString(page.Text)
	return page, nil
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// clip shortens s to at most n runes without splitting a character.
func clip(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i], true
		}
		seen++
	}
	return s, false
}
