package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Client wraps an http.Client with a per-host rate limiter, a shared user
// agent and a response body size cap. Every upstream fetch in the service
// goes through one of these so no single host gets hammered.
type Client struct {
	http        *http.Client
	userAgent   string
	maxBodySize int64
	minInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Options configures a Client
type Options struct {
	Timeout     time.Duration // Per-request timeout
	UserAgent   string
	MaxBodySize int64         // Response body cap in bytes; 0 = 10MB
	MinInterval time.Duration // Minimum spacing between requests to one host
}

// New creates a rate-limited upstream client
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 10 * 1024 * 1024
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}

	return &Client{
		http:        NewDefaultHTTPClient(opts.Timeout),
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		minInterval: opts.MinInterval,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the rate limiter for a host, creating it on first use
func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.minInterval), 1)
		c.limiters[host] = limiter
	}
	return limiter
}

// Get fetches a URL and returns the response body. Non-2xx statuses are
// returned as errors so adapters can surface them as expected failures.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if err := c.limiterFor(req.URL.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
