package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// KeyFunc derives the client identity of a request.
type KeyFunc func(r *http.Request) string

// DefaultKey identifies clients by address, X-User-ID and user agent.
func DefaultKey(r *http.Request) string {
	return ClientIdentity(r, "")
}

type limitInfo struct {
	RequestsMade  int64      `json:"requests_made"`
	Limit         int64      `json:"limit"`
	WindowSeconds int64      `json:"window_seconds"`
	ResetTime     *time.Time `json:"reset_time"`
	BlockedUntil  *time.Time `json:"blocked_until"`
}

type rejection struct {
	Error             string    `json:"error"`
	Message           string    `json:"message"`
	LimitInfo         limitInfo `json:"limit_info"`
	RetryAfterSeconds int64     `json:"retry_after_seconds"`
	RetryAfter        string    `json:"retry_after"`
}

// Middleware rejects requests over the category limit with 429 and adds the
// rate limit headers to every response.
func (l *Limiter) Middleware(category Category, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = DefaultKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Check(r.Context(), category, key(r))
			for name, values := range d.Headers() {
				for _, v := range values {
					w.Header().Add(name, v)
				}
			}

			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			body := rejection{
				Error:   "Rate limit exceeded",
				Message: "Too many requests. Please try again later.",
				LimitInfo: limitInfo{
					RequestsMade:  d.Count,
					Limit:         d.Limit,
					WindowSeconds: int64(d.Window / time.Second),
					ResetTime:     timePtr(d.ResetAt),
					BlockedUntil:  timePtr(d.BlockedUntil),
				},
				RetryAfterSeconds: d.RetryAfterSeconds(),
				RetryAfter:        HumanizeWait(d.RetryAfter),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(body)
		})
	}
}

// HumanizeWait renders a wait such as "45 seconds", "15 minutes" or "2 hours", rounding up.
func HumanizeWait(d time.Duration) string {
	switch {
	case d <= 0:
		return "0 seconds"
	case d < time.Minute:
		return plural(int64((d+time.Second-1)/time.Second), "second")
	case d < time.Hour:
		return plural(int64((d+time.Minute-1)/time.Minute), "minute")
	default:
		return plural(int64((d+time.Hour-1)/time.Hour), "hour")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
