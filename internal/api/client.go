package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/taxdesk/taxdesk/internal/config"
	"github.com/taxdesk/taxdesk/internal/constants"
	"github.com/taxdesk/taxdesk/internal/http"
	"github.com/taxdesk/taxdesk/internal/logging"
	"github.com/taxdesk/taxdesk/internal/ratelimit"
	"github.com/taxdesk/taxdesk/internal/version"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	callsByPath   map[string]int64
	windowStart   time.Time
	callsInWindow int64
}

// Client represents the portal API client
type Client struct {
	httpClient   *nethttp.Client // JSON calls, wrapped with retryablehttp
	uploadClient *nethttp.Client // multipart uploads, retried per file by the caller
	config       *config.Config
	baseURL      string
	token        string
	clientID     string
	limiter      *ratelimit.RateLimiter
	metrics      *apiMetrics
	logger       *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger routes client and retry logs through l.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimiter replaces the default portal limiter.
func WithRateLimiter(rl *ratelimit.RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	c := &Client{
		config:   cfg,
		baseURL:  baseURL,
		token:    cfg.Token,
		clientID: cfg.ClientID,
		limiter:  ratelimit.NewPortalRateLimiter(),
		metrics: &apiMetrics{
			callsByPath: make(map[string]int64),
			windowStart: time.Now(),
		},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	httpClient.Transport = c.throttle(httpClient.Transport)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.APIRetryMax
	retryClient.RetryWaitMin = constants.APIRetryWaitMin
	retryClient.RetryWaitMax = constants.APIRetryWaitMax
	retryClient.Logger = &retryLogger{logger: c.logger}
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.httpClient = retryClient.StandardClient()

	c.uploadClient, err = http.CreateUploadClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure upload client: %w", err)
	}
	c.uploadClient.Transport = c.throttle(c.uploadClient.Transport)

	return c, nil
}

// checkRetry retries reads on connection errors, 429 and 5xx. Creates are
// only retried on 429, where the portal guarantees nothing was processed.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.Request != nil && resp.Request.Method != nethttp.MethodGet {
		return resp.StatusCode == nethttp.StatusTooManyRequests, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// ClientID returns the default client scope applied to listings and uploads.
func (c *Client) ClientID() string {
	return c.clientID
}

// TotalCalls returns the number of requests issued so far.
func (c *Client) TotalCalls() int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	return c.metrics.totalCalls
}

func (c *Client) resolveClientID(clientID string) string {
	if clientID != "" {
		return clientID
	}
	return c.clientID
}

// doRequest performs an HTTP request with authentication and rate limiting
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(c.httpClient, req, path)
}

// send applies auth headers. Rate limiting happens in the transport so
// every retry attempt waits for a token too.
func (c *Client) send(client *nethttp.Client, req *nethttp.Request, path string) (*nethttp.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.AppName+"/"+version.Version)

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("method", req.Method).Str("path", path).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// throttledTransport waits on the portal limiter before each attempt and
// feeds 429 answers back into it.
type throttledTransport struct {
	base   nethttp.RoundTripper
	client *Client
}

func (c *Client) throttle(base nethttp.RoundTripper) nethttp.RoundTripper {
	if base == nil {
		base = nethttp.DefaultTransport
	}
	return &throttledTransport{base: base, client: c}
}

func (t *throttledTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	c := t.client
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}
	c.trackCall(req.URL.Path)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == nethttp.StatusTooManyRequests {
		cooldown := retryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Drain()
		c.limiter.SetCooldown(cooldown)
		c.logger.Warn().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("cooldown", cooldown).
			Msg("throttled by portal")
	}
	return resp, nil
}

func (c *Client) trackCall(path string) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.callsInWindow++

	if window := time.Since(c.metrics.windowStart); window >= 30*time.Second {
		c.logger.Debug().
			Float64("req_per_sec", float64(c.metrics.callsInWindow)/window.Seconds()).
			Int64("total_calls", c.metrics.totalCalls).
			Msg("API usage")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// retryAfter parses a Retry-After header in seconds, clamped to MaxCooldown.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return ratelimit.DefaultCooldown
	}
	d := time.Duration(secs) * time.Second
	if d > ratelimit.MaxCooldown {
		return ratelimit.MaxCooldown
	}
	return d
}

// readAPIError drains resp and converts it into an *APIError.
func readAPIError(op string, resp *nethttp.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return newAPIError(op, resp.StatusCode, body)
}
