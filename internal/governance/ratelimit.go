package governance

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Policy is the fixed-window limit applied to one route.
type Policy struct {
	Limit  int           `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

// Normalize fills zero values with the package defaults.
func (p Policy) Normalize() Policy {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	return p
}

// Defaults used when a route has no explicit policy.
const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Decision is the outcome of a single limiter check.
type Decision struct {
	Blocked   bool
	Limit     int
	Count     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per client and route.
//
// Check always counts the request, including requests that end up blocked or
// later fail authentication.
type Limiter interface {
	Check(ctx context.Context, clientKey, routeKey string, policy Policy) Decision
}

type record struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter guarded by a mutex.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Check increments the counter for clientKey+routeKey and reports whether the
// request exceeds policy.
func (l *MemoryLimiter) Check(_ context.Context, clientKey, routeKey string, policy Policy) Decision {
	policy = policy.Normalize()
	key := limiterKey(clientKey, routeKey)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok {
		rec = &record{resetAt: now.Add(policy.Window)}
		l.records[key] = rec
	}
	if now.After(rec.resetAt) {
		rec.count = 0
		rec.resetAt = now.Add(policy.Window)
	}
	rec.count++

	return decide(rec.count, policy.Limit, rec.resetAt)
}

// Sweep drops records whose window ended before now and returns how many were removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// RunSweeper removes expired records every interval until ctx is done.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			l.Sweep(t)
		}
	}
}

func limiterKey(clientKey, routeKey string) string {
	return clientKey + ":" + routeKey
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Blocked:   count > limit,
		Limit:     limit,
		Count:     count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Policies maps route keys to policies. It can be reconfigured while serving.
type Policies struct {
	mu       sync.RWMutex
	fallback Policy
	routes   map[string]Policy
}

// NewPolicies creates a policy table with fallback applied to unknown routes.
func NewPolicies(fallback Policy, routes map[string]Policy) *Policies {
	p := &Policies{}
	p.Configure(fallback, routes)
	return p
}

// Configure replaces the policy table.
func (p *Policies) Configure(fallback Policy, routes map[string]Policy) {
	next := make(map[string]Policy, len(routes))
	for route, policy := range routes {
		next[CanonicalRoute(route)] = policy.Normalize()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = fallback.Normalize()
	p.routes = next
}

// For returns the policy for route.
func (p *Policies) For(route string) Policy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if policy, ok := p.routes[CanonicalRoute(route)]; ok {
		return policy
	}
	return p.fallback
}

// WriteRateLimitHeaders adds rate limit status headers to the response.
// X-RateLimit-Reset is the window end in Unix milliseconds.
func WriteRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
}
