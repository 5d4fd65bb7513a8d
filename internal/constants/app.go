package constants

import (
	"time"
)

// Retry configuration
const (
	// RetryInitialDelay - initial delay before the first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Listing behaviour
const (
	// SearchDebounce - quiet period before a typed search query is submitted
	SearchDebounce = 500 * time.Millisecond

	// ReloadDelay - delay before the fallback reload after a rename or delete
	// when optimistic updates are disabled
	ReloadDelay = 1 * time.Second

	// DefaultParallelDownloads - files downloaded at once by a batch download
	DefaultParallelDownloads = 3

	// MaxParallelDownloads - upper bound for parallel_downloads
	MaxParallelDownloads = 8

	// PreviewTextLimit - maximum bytes fetched for an inline text preview (512 KB)
	PreviewTextLimit = 512 * 1024
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for listing, search and mutation calls (30 seconds)
	APIContextTimeout = 30 * time.Second

	// DownloadTimeout - upper bound for a single file download (2 hours)
	DownloadTimeout = 2 * time.Hour
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

	// HTTPClientTimeout - overall timeout for API requests (5 minutes)
	// Downloads clear it and rely on the context instead
	HTTPClientTimeout = 300 * time.Second
)

// Rate limiting defaults
const (
	// DefaultRequestsPerSecond - sustained request rate against the worker
	DefaultRequestsPerSecond = 5.0

	// DefaultBurst - number of requests allowed back to back
	DefaultBurst = 20.0
)

// Event bus sizing
const (
	// EventBusDefaultBuffer - per-subscriber channel buffer
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - cap on the per-subscriber buffer
	EventBusMaxBuffer = 10000
)
