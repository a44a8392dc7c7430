// Fixed-window request limiting for the admin control plane.
package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter allows each client a fixed number of requests per window.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow

	stop     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	start time.Time
	used  int
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// Expired windows are swept in the background until Close.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientWindow),
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether ip may make another request now.
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _ := rl.take(ip, time.Now())
	return ok
}

// RetryAfter returns the whole seconds until ip's window resets, or 0 if
// the client has no open window.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[ip]
	if !ok {
		return 0
	}
	return retrySeconds(cw.start.Add(rl.window).Sub(time.Now()))
}

// Close stops the background sweep. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// take consumes one request from ip's window and, when refused, returns
// how long until the window reopens.
func (rl *RateLimiter) take(ip string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[ip]
	if !ok || now.Sub(cw.start) >= rl.window {
		cw = &clientWindow{start: now}
		rl.clients[ip] = cw
	}
	if cw.used >= rl.limit {
		return false, cw.start.Add(rl.window).Sub(now)
	}
	cw.used++
	return true, 0
}

func (rl *RateLimiter) sweepLoop() {
	every := 10 * rl.window
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-t.C:
			rl.sweep(now)
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, cw := range rl.clients {
		if now.Sub(cw.start) > 2*rl.window {
			delete(rl.clients, ip)
		}
	}
}

func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// clientIP returns the first X-Forwarded-For hop, or the remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects requests over the limit with 429 and a
// Retry-After header.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.take(clientIP(r), time.Now())
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(max(retrySeconds(wait), 1)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
