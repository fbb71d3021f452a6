package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Result mirrors the proxy-channel contract: a fetch never fails with a Go
// error, it resolves to success-with-body or failure-with-message.
type Result struct {
	Success bool
	Data    []byte
	Error   string
}

type Config struct {
	// Hard per-request timeout. The losing side of the race is abandoned:
	// context cancellation guarantees a late response is discarded, never
	// applied anywhere.
	Timeout time.Duration // default: 10s

	MaxRetries  int           // extra attempts on transient failure (default: 0)
	BaseBackoff time.Duration // initial backoff between attempts (default: 100ms)

	MaxBodySize int64 // response body read cap (default: 2MB)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 2 * 1024 * 1024
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// Client performs restricted cross-origin GETs: a fixed header set, no
// cookies, no referrer and no credentials of any kind ever attached.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.WithDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No cookie jar: requests must carry no credentials.
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("fetch"),
	}
}

// defaultTransport creates a production-ready HTTP transport
// with connection pooling and reasonable timeouts.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Fetch GETs url within the configured timeout and returns a well-formed
// Result. Transient failures are retried per config; everything else
// resolves to Success=false with a message.
func (c *Client) Fetch(parentCtx context.Context, url string) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)
	defer cancel()

	doOnce := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
		httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
		httpReq.Header.Set("Cache-Control", "no-cache")
		httpReq.Header.Set("Pragma", "no-cache")
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, doOnce)
	if err != nil {
		c.logger.Debug("fetch failed",
			zap.String("url", url),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		c.logger.Debug("fetch non-success status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return Result{Success: false, Error: fmt.Sprintf("upstream status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("read body: %v", err)}
	}

	c.logger.Debug("fetch completed",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	return Result{Success: true, Data: body}
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
