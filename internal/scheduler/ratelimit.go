package scheduler

import (
	"github.com/timerd/scheduler/pkg/config"
	"golang.org/x/time/rate"
)

// RateLimiter bounds outbound HTTP dispatch per process with a token
// bucket. A denied acquisition means the attempt is abandoned for this
// cycle; there is no queueing.
type RateLimiter struct {
	enabled bool
	limiter *rate.Limiter
}

func NewRateLimiter(cfg config.RateLimiterConfig) *RateLimiter {
	if !cfg.Enabled {
		return &RateLimiter{}
	}
	return &RateLimiter{
		enabled: true,
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity),
	}
}

func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}
	return r.limiter.Allow()
}
