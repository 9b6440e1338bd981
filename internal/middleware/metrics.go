package middleware

import (
	"net/http"
	"strconv"
	"time"

	"imagechain/internal/metrics"
)

// Metrics records request counts and latency per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)
		metrics.RecordRequest(r.Method, routePattern(r), strconv.Itoa(rw.status), time.Since(start).Seconds())
	})
}
