package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/config"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/ratelimit"
)

// Status represents the pressure a category is under.
type Status string

const (
	StatusNormal      Status = "normal"
	StatusElevated    Status = "elevated"
	StatusUnderAttack Status = "under_attack"
)

// CategoryStats summarises recent decisions of one rate limit category.
type CategoryStats struct {
	Category             ratelimit.Category `json:"endpoint_type"`
	Limit                int64              `json:"limit"`
	WindowSeconds        int64              `json:"window_seconds"`
	BlockDurationSeconds int64              `json:"block_duration"`
	RequestsAllowed      int                `json:"requests_allowed"`
	RequestsBlocked      int                `json:"requests_blocked"`
	UniqueClients        int                `json:"unique_clients"`
	AllowedRatio         float64            `json:"allowed_ratio"`
	Status               Status             `json:"status"`
}

// Stats is the rate limit activity report.
type Stats struct {
	MonitoringPeriodHours float64                  `json:"monitoring_period_hours"`
	Endpoints             map[string]CategoryStats `json:"endpoints"`
	TotalRequests         int                      `json:"total_requests"`
	TotalBlocked          int                      `json:"total_blocked"`
	Timestamp             time.Time                `json:"timestamp"`
}

// Report is the rate limiter health check.
type Report struct {
	RateLimiterActive   bool      `json:"rate_limiter_active"`
	StoreBackend        string    `json:"store_backend"`
	ConfiguredEndpoints []string  `json:"configured_endpoints"`
	FunctionalityTest   string    `json:"functionality_test"`
	Timestamp           time.Time `json:"timestamp"`
}

// Backend reports which rate limit store is serving requests.
type Backend interface {
	Backend() string
}

// event records a single rate limit decision.
type event struct {
	client    string
	allowed   bool
	timestamp time.Time
}

// Monitor tracks rate limit decisions per category using a sliding window.
type Monitor struct {
	mu             sync.RWMutex
	windows        map[ratelimit.Category]*window
	policies       map[ratelimit.Category]ratelimit.Policy
	windowSize     int
	windowDuration time.Duration
	now            func() time.Time
}

// NewMonitor creates a monitor for the given policies with default window settings.
func NewMonitor(policies map[ratelimit.Category]ratelimit.Policy) *Monitor {
	return NewMonitorWithConfig(policies, config.MonitorWindowSize, time.Duration(config.MonitorWindowDurationMinutes)*time.Minute, time.Now)
}

// NewMonitorWithConfig creates a monitor with custom window settings for testing.
func NewMonitorWithConfig(policies map[ratelimit.Category]ratelimit.Policy, windowSize int, windowDuration time.Duration, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		windows:        make(map[ratelimit.Category]*window),
		policies:       policies,
		windowSize:     windowSize,
		windowDuration: windowDuration,
		now:            now,
	}
}

// Observe records a limiter decision. It satisfies ratelimit.Observer.
func (m *Monitor) Observe(d ratelimit.Decision, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[d.Category]
	if !ok {
		w = newWindow(m.windowSize)
		m.windows[d.Category] = w
	}
	w.push(event{
		client:    d.ClientID,
		allowed:   d.Allowed,
		timestamp: at,
	})
	w.expire(m.now().Add(-m.windowDuration))
}

// CategoryStats returns recent activity for one category.
func (m *Monitor) CategoryStats(c ratelimit.Category) CategoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := m.policies[c]
	stats := CategoryStats{
		Category:             c,
		Limit:                p.Requests,
		WindowSeconds:        int64(p.Window / time.Second),
		BlockDurationSeconds: int64(p.BlockDuration / time.Second),
		AllowedRatio:         1.0, // Idle categories default to normal
		Status:               StatusNormal,
	}

	w, ok := m.windows[c]
	if !ok || w.len() == 0 {
		return stats
	}

	clients := make(map[string]struct{})
	w.each(m.now().Add(-m.windowDuration), func(e event) {
		if e.allowed {
			stats.RequestsAllowed++
		} else {
			stats.RequestsBlocked++
		}
		clients[e.client] = struct{}{}
	})
	total := stats.RequestsAllowed + stats.RequestsBlocked
	if total == 0 {
		return stats
	}
	stats.UniqueClients = len(clients)
	stats.AllowedRatio = float64(stats.RequestsAllowed) / float64(total)

	if stats.AllowedRatio < config.AttackThreshold {
		stats.Status = StatusUnderAttack
	} else if stats.AllowedRatio < config.ElevatedThreshold {
		stats.Status = StatusElevated
	}
	return stats
}

// Stats returns activity for every configured category and any other observed one.
func (m *Monitor) Stats() Stats {
	out := Stats{
		MonitoringPeriodHours: m.windowDuration.Hours(),
		Endpoints:             make(map[string]CategoryStats),
		Timestamp:             m.now().UTC(),
	}
	for _, c := range m.categories() {
		s := m.CategoryStats(c)
		out.Endpoints[string(c)] = s
		out.TotalRequests += s.RequestsAllowed + s.RequestsBlocked
		out.TotalBlocked += s.RequestsBlocked
	}
	return out
}

// Health reports the store backend and checks that the store answers.
func (m *Monitor) Health(ctx context.Context, store ratelimit.Store) Report {
	r := Report{
		RateLimiterActive: true,
		StoreBackend:      ratelimit.BackendMemory,
		Timestamp:         m.now().UTC(),
	}
	if b, ok := store.(Backend); ok {
		r.StoreBackend = b.Backend()
	}

	cats := make([]string, 0, len(m.policies))
	for c := range m.policies {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	r.ConfiguredEndpoints = cats

	r.FunctionalityTest = "passed"
	if err := store.Set(ctx, "rate_limit:health", "1", time.Second); err != nil {
		r.FunctionalityTest = "failed: " + err.Error()
	} else if _, _, err := store.Get(ctx, "rate_limit:health"); err != nil {
		r.FunctionalityTest = "failed: " + err.Error()
	}
	return r
}

func (m *Monitor) categories() []ratelimit.Category {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[ratelimit.Category]struct{}, len(m.policies))
	for c := range m.policies {
		seen[c] = struct{}{}
	}
	for c := range m.windows {
		seen[c] = struct{}{}
	}
	out := make([]ratelimit.Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
