package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// RateLimit allows limit requests per client IP in each fixed window. Expired
// buckets are swept when a new window opens.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var (
		mu        sync.Mutex
		buckets   = make(map[string]*bucket)
		nextSweep time.Time
	)
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			now := time.Now()
			mu.Lock()
			if now.After(nextSweep) {
				for k, b := range buckets {
					if now.After(b.until) {
						delete(buckets, k)
					}
				}
				nextSweep = now.Add(per)
			}
			b, ok := buckets[ip]
			if !ok || now.After(b.until) {
				b = &bucket{count: 0, until: now.Add(per)}
				buckets[ip] = b
			}
			if b.count >= limit {
				retry := int(b.until.Sub(now).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			b.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}
