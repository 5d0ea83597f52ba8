package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the binary name, config directory and User-Agent.
	AppName = "tgdrive"

	// DefaultAPIBaseURL is the backend the original deployment runs on.
	DefaultAPIBaseURL = "http://127.0.0.1:8000/api"

	// RootFolderID identifies the top-level folder on the backend.
	RootFolderID int64 = 0
)

// Upload queue
const (
	// QueueYieldDelay - pause between two consecutive uploads (100ms)
	// Gives the event consumers a chance to render the terminal state of
	// the previous task before the next one starts.
	QueueYieldDelay = 100 * time.Millisecond

	// UploadDismissDelay - grace period before the upload surface is
	// dismissed once the queue has drained (2.5s)
	UploadDismissDelay = 2500 * time.Millisecond

	// CancelRequestTimeout - upper bound for the best-effort backend
	// cancel signal sent when an active upload is aborted
	CancelRequestTimeout = 5 * time.Second
)

// Progress tracking
const (
	// ProgressMinInterval - minimum time between two emitted progress
	// updates for the same task (100ms)
	ProgressMinInterval = 100 * time.Millisecond

	// SpeedWindowSize - number of instantaneous speed samples averaged
	// into the smoothed speed
	SpeedWindowSize = 5

	// ETAMinPercent / ETAMaxPercent - ETA is only shown strictly inside
	// this band; outside of it the estimate is too noisy to be useful
	ETAMinPercent = 5.0
	ETAMaxPercent = 95.0

	// ETAMaxDuration - estimates above this are suppressed (1 hour)
	ETAMaxDuration = time.Hour

	// MinDisplaySpeed - smoothed speeds at or below this (bytes/sec) are
	// treated as stalled
	MinDisplaySpeed = 1.0

	// MaxPercentBeforeComplete - displayed percentage is capped here until
	// the transport confirms completion
	MaxPercentBeforeComplete = 99.0
)

// Transfer buffers
const (
	// CopyBufferSize - size of the pooled buffers streamed through on
	// upload and download (256KB)
	CopyBufferSize = 256 * 1024
)

// Disk space safety margin
const (
	// DiskSpaceBufferPercent - additional space to require beyond file size (5%)
	DiskSpaceBufferPercent = 0.05
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressRefreshRate - terminal redraw interval for progress bars
	ProgressRefreshRate = 150 * time.Millisecond
)

// HTTP client
const (
	// HTTPDialTimeout - TCP connect timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive period
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle keep-alive connections stay pooled
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake timeout
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - wait for 100-continue before sending the body
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPRequestTimeout - overall timeout for JSON API calls. Uploads and
	// downloads use their own client without an overall timeout since
	// their duration scales with file size.
	HTTPRequestTimeout = 60 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)

// Retry configuration (idempotent GET requests only)
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 4

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (10s)
	RetryMaxDelay = 10 * time.Second
)

// Rate limiting
const (
	// APIRatePerSec - steady-state request rate towards the backend
	APIRatePerSec = 10.0

	// APIBurstCapacity - requests allowed in a burst before throttling
	APIBurstCapacity = 40.0
)
