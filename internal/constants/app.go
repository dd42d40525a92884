package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the config directory and user-facing banners.
	AppName = "taxdesk"

	// DefaultAPIBaseURL - portal API base URL used when nothing is configured
	DefaultAPIBaseURL = "https://portal.taxdesk.app"
)

// Folder tree limits
const (
	// MaxFolderNameLength - longest folder title the portal accepts (255 chars)
	MaxFolderNameLength = 255

	// MaxFolderDescriptionLength - longest folder description sent on create
	MaxFolderDescriptionLength = 2000

	// PathSeparator joins ancestor names into a selection's display path
	PathSeparator = " / "

	// DefaultTreeDepth - depth used by `folders tree` when --depth is not given
	DefaultTreeDepth = 3

	// TreeCrawlConcurrency - max concurrent folder loads during a tree crawl
	TreeCrawlConcurrency = 4
)

// Upload staging
const (
	// DefaultUploadWorkers - concurrent per-file uploads in one submission
	DefaultUploadWorkers = 3

	// MaxUploadWorkers - upper bound accepted from config/flags
	MaxUploadWorkers = 16

	// DefaultUploadMaxRetries - attempts per file for transient errors
	DefaultUploadMaxRetries = 3

	// DefaultMaxFileSizeMB - largest document accepted by the staging session (50 MB)
	DefaultMaxFileSizeMB = 50

	// PreviewMaxBytes - leading bytes of a file copied into its preview handle (64 KB)
	PreviewMaxBytes = 64 * 1024

	// CopyBufferSize - pooled buffer used when streaming documents and previews (32 KB)
	CopyBufferSize = 32 * 1024

	// UploadRetryInitialDelay - first backoff step for upload retries
	UploadRetryInitialDelay = 500 * time.Millisecond

	// UploadRetryMaxDelay - backoff cap for upload retries
	UploadRetryMaxDelay = 10 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	// 1000 events is generous for tree and upload event throughput
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for API operations (30 seconds)
	APIContextTimeout = 30 * time.Second

	// UploadContextTimeout - timeout for a single document upload (10 minutes)
	UploadContextTimeout = 10 * time.Minute

	// APIRetryMax - retryablehttp attempts after the first request
	APIRetryMax = 4

	// APIRetryWaitMin / APIRetryWaitMax - retryablehttp backoff bounds
	APIRetryWaitMin = 500 * time.Millisecond
	APIRetryWaitMax = 10 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall timeout for JSON API requests (2 minutes)
	HTTPClientTimeout = 2 * time.Minute
)

// Rate Limiter
const (
	// RateLimitWarningThreshold - delay threshold to show warning (2 seconds)
	RateLimitWarningThreshold = 2 * time.Second

	// RateLimitWarnInterval - minimum time between rate limit warnings (10 seconds)
	RateLimitWarnInterval = 10 * time.Second
)
