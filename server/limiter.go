package server

import (
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a source IP may stay quiet before its bucket is dropped.
const limiterIdle = time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// acceptLimiter is a per source IP token bucket consulted on accept. It is
// only touched by the event loop and needs no locking.
type acceptLimiter struct {
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
}

// newAcceptLimiter returns nil when perSecond is not positive.
func newAcceptLimiter(perSecond float64, burst int) *acceptLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &acceptLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

func (l *acceptLimiter) Allow(ip string, now time.Time) bool {
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep drops buckets not used within limiterIdle.
func (l *acceptLimiter) Sweep(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdle {
			delete(l.visitors, ip)
		}
	}
}

func (l *acceptLimiter) Len() int {
	return len(l.visitors)
}
