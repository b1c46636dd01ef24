package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )
    // HTTPRateLimited counts requests rejected by the rate limiter
    HTTPRateLimited = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
    )

    // Runs counts finished solver runs by status
    Runs = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "darpm_runs_total", Help: "Solver runs by final status."},
        []string{"status"},
    )
    // RunsInFlight is the number of runs currently solving
    RunsInFlight = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "darpm_runs_in_flight", Help: "Solver runs in progress."},
    )
    // RunDuration records wall-clock solve time in seconds
    RunDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "darpm_run_duration_seconds", Help: "Solver run duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}},
        []string{"status"},
    )
    // GRASPIterations counts completed GRASP iterations across runs
    GRASPIterations = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "darpm_grasp_iterations_total", Help: "Completed GRASP iterations."},
    )
    // InsertAttempts and Inserts count feasibility checks and accepted insertions
    InsertAttempts = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "darpm_insert_attempts_total", Help: "Insertion feasibility checks."},
    )
    Inserts = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "darpm_inserts_total", Help: "Accepted insertions."},
    )
    // Objective is the number of routes in the last reported solution
    Objective = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "darpm_last_objective_routes", Help: "Route count of the last completed run."},
    )
    // PoolingPercent is the share of requests served on shared routes in the last run
    PoolingPercent = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "darpm_last_pooling_percent", Help: "Pooling percentage of the last completed run."},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration, HTTPRateLimited)
        Registry.MustRegister(Runs, RunsInFlight, RunDuration, GRASPIterations, InsertAttempts, Inserts, Objective, PoolingPercent)
        Registry.MustRegister(WebhookDeliveries, WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
