package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type window struct {
	count   int
	started time.Time
}

// CommandLimiter caps session commands per user within a fixed window.
// Requests without an authenticated user fall back to the remote address.
type CommandLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewCommandLimiter(limit int, period time.Duration) *CommandLimiter {
	cl := &CommandLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go cl.sweep()
	return cl
}

// Close stops the background sweep.
func (cl *CommandLimiter) Close() {
	cl.once.Do(func() { close(cl.stop) })
}

func (cl *CommandLimiter) sweep() {
	ticker := time.NewTicker(cl.period)
	defer ticker.Stop()
	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.mu.Lock()
			now := cl.now()
			for key, w := range cl.windows {
				if now.Sub(w.started) > cl.period {
					delete(cl.windows, key)
				}
			}
			cl.mu.Unlock()
		}
	}
}

// Allow records one request for key and reports whether it is within the limit.
func (cl *CommandLimiter) Allow(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	w, ok := cl.windows[key]
	if !ok || now.Sub(w.started) > cl.period {
		cl.windows[key] = &window{count: 1, started: now}
		return true
	}
	w.count++
	return w.count <= cl.limit
}

func (cl *CommandLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if id := GetUserID(r.Context()); id != uuid.Nil {
			key = id.String()
		}

		if !cl.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many session commands. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
