package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// rateLimitDetail is part of the wire contract: clients match on it.
const rateLimitDetail = "Rate limit exceeded. Try again later."

// corsMiddleware allows browser clients from any origin. The gateway is an
// API surface fronted by its own auth story; CORS here only unblocks the
// demo frontend and local tooling.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware admits requests to the pipeline endpoints through the
// sliding-window limiter, keyed by client IP. Other paths are never limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Limiter == nil || !isLimitedPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		allowed, retryAfter := s.deps.Limiter.IsAllowed(ip)
		if !allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimited.Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeDetail(w, http.StatusTooManyRequests, rateLimitDetail)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		// Only served requests consume quota: a 4xx never pushes the client
		// closer to its limit.
		if rec.status == http.StatusOK {
			s.deps.Limiter.Record(ip)
		}
	})
}

// statusRecorder captures the status code the downstream handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func isLimitedPath(path string) bool {
	return path == "/gateway" || path == "/mcp/gateway"
}

// clientIP extracts the caller's address, honoring the first entry of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
