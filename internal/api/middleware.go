package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "darpm/internal/metrics"
)

// statusRecorder captures the response code for logs and metrics.
type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, errors.New("hijack not supported")
    }
    r.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument records request counts and latencies under the route pattern.
func instrument(pattern string, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        start := time.Now()
        next.ServeHTTP(rec, r)
        code := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, pattern, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, pattern, code).Observe(time.Since(start).Seconds())
    })
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        start := time.Now()
        next.ServeHTTP(rec, r)
        s.Log.Info().Str("remote", r.RemoteAddr).Str("method", r.Method).Str("path", r.URL.Path).
            Int("status", rec.status).Dur("duration", time.Since(start)).Msg("request")
    })
}

// rateLimit applies the process-wide token bucket to API calls. Probes and
// scrapes are never limited.
func (s *Server) rateLimit(next http.Handler) http.Handler {
    if s.limiter == nil {
        return next
    }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/healthz", "/readyz", "/metrics":
            next.ServeHTTP(w, r)
            return
        }
        if !s.limiter.Allow() {
            metrics.HTTPRateLimited.Inc()
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func metricsHandler() http.Handler {
    metrics.RegisterDefault()
    return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}
