package httpcache

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultLimiter is shared by callers that do not bring their own,
// so concurrent goroutines hitting one host stay under its limit together.
var defaultLimiter = NewLimiter(2, 1)

// Limiter enforces a request rate per host.
// It is safe for concurrent use from multiple goroutines.
type Limiter struct {
	overrides map[string]rate.Limit
	hosts     map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	mu        sync.Mutex
}

// NewLimiter creates a limiter allowing rps requests per second to each host.
// A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		overrides: make(map[string]rate.Limit),
		hosts:     make(map[string]*rate.Limiter),
		limit:     toLimit(rps),
		burst:     max(1, burst),
	}
}

// SetRate sets a custom rate for a specific host.
func (l *Limiter) SetRate(host string, rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[host] = toLimit(rps)
	if lim, ok := l.hosts[host]; ok {
		lim.SetLimit(toLimit(rps))
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string, logger *slog.Logger) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil //nolint:nilerr // unparseable URLs fail later in the request
	}

	start := time.Now()
	if err := l.forHost(u.Host).Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 10*time.Millisecond && logger != nil {
		logger.DebugContext(ctx, "rate limit pause", "host", u.Host, "wait", waited.Round(time.Millisecond))
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.hosts[host]; ok {
		return lim
	}
	limit := l.limit
	if override, ok := l.overrides[host]; ok {
		limit = override
	}
	lim := rate.NewLimiter(limit, l.burst)
	l.hosts[host] = lim
	return lim
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
