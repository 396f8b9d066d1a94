package sources

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/httpclient"
	"github.com/tradewatch/tradewatch/internal/interfaces"
)

// Client is the long-lived upstream access layer shared by all source
// adapters. It owns the rate-limited HTTP client and the configured
// endpoints; per-run memoization lives in RunCache, not here.
type Client struct {
	http           *httpclient.Client
	logger         arbor.ILogger
	worldBankURL   string
	requestTimeout time.Duration
}

// NewClient creates the shared source client from config
func NewClient(config *common.Config, logger arbor.ILogger) *Client {
	return &Client{
		http: httpclient.New(httpclient.Options{
			Timeout:     config.RequestTimeoutDuration(),
			UserAgent:   config.Sources.UserAgent,
			MaxBodySize: int64(config.Sources.MaxBodySize),
			MinInterval: config.SourceRateLimitDuration(),
		}),
		logger:         logger,
		worldBankURL:   config.Sources.WorldBankURL,
		requestTimeout: config.RequestTimeoutDuration(),
	}
}

// get fetches a URL under the configured per-request timeout
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.http.Get(reqCtx, url)
}

// RunCache memoizes fetch results within a single job run so that
// identical upstream requests are issued at most once. It is created
// per run and discarded with it; nothing persists across runs.
type RunCache struct {
	mu      sync.Mutex
	results map[string]*interfaces.FetchResult
}

// NewRunCache creates an empty per-run memo cache
func NewRunCache() *RunCache {
	return &RunCache{results: make(map[string]*interfaces.FetchResult)}
}

// GetOrFetch returns the memoized result for key, running fetch on first use
func (rc *RunCache) GetOrFetch(key string, fetch func() *interfaces.FetchResult) *interfaces.FetchResult {
	rc.mu.Lock()
	if result, ok := rc.results[key]; ok {
		rc.mu.Unlock()
		return result
	}
	rc.mu.Unlock()

	result := fetch()

	rc.mu.Lock()
	rc.results[key] = result
	rc.mu.Unlock()
	return result
}
