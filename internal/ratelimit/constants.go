package ratelimit

import "time"

// Portal throttle budget
//
// The portal applies one per-token limit across all /api/ endpoints. Folder
// expansion bursts (a user opening several folders quickly, or a `folders tree`
// crawl) are the heaviest traffic, so the bucket is sized for short bursts and
// a modest sustained rate.
const (
	// PortalLimitPerMinute is the documented per-token request limit.
	PortalLimitPerMinute = 600 // 10 requests per second

	// PortalTargetPercent: use 80% of the limit
	PortalTargetPercent = 80

	// PortalRatePerSec is 80% of 10 req/sec
	PortalRatePerSec = float64(PortalLimitPerMinute) / 60.0 * PortalTargetPercent / 100.0

	// PortalBurstCapacity allows a few seconds of rapid expansion at startup
	PortalBurstCapacity = 20.0
)

// DefaultCooldown is applied after a 429 without a usable Retry-After header.
const DefaultCooldown = 5 * time.Second

// MaxCooldown caps server-provided Retry-After values.
const MaxCooldown = 2 * time.Minute
