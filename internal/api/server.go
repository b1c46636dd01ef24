// Package api implements the HTTP service around the ride-sharing optimizer.
package api

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "sync"

    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    "darpm/internal/auth"
    "darpm/internal/config"
    "darpm/internal/geo"
    "darpm/internal/opt"
    "darpm/internal/store"
    "darpm/internal/webhooks"
)

type Server struct {
    Cfg    config.Config
    Store  store.Store
    Pub    *webhooks.Publisher
    Auth   *auth.Verifier
    Broker EventBroker
    Metric opt.Metric
    Log    zerolog.Logger

    limiter *rate.Limiter
    // runs in flight; cancelled by Shutdown
    runCtx    context.Context
    cancelRun context.CancelFunc
    wg        sync.WaitGroup
}

// NewServer wires the store and broker from cfg. Without a database URL the
// in-memory store is used; without a Redis URL the in-process broker is.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.Database.URL) == "" {
        s = store.NewMemory()
        log.Warn().Msg("DATABASE_URL not set; using in-memory store")
    } else {
        sp, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            return nil, err
        }
        if cfg.Database.Migrate {
            if err := sp.Migrate(context.Background()); err != nil {
                return nil, err
            }
        }
        s = sp
    }
    var broker EventBroker
    if cfg.Redis.URL != "" {
        rb, err := NewRedisBroker(cfg.Redis)
        if err != nil {
            return nil, err
        }
        broker = rb
    } else {
        broker = NewBroker()
    }
    return newServer(cfg, s, broker, log), nil
}

func newServer(cfg config.Config, s store.Store, broker EventBroker, log zerolog.Logger) *Server {
    srv := &Server{
        Cfg:    cfg,
        Store:  s,
        Pub:    webhooks.NewPublisher(s, log.With().Str("component", "webhooks").Logger()),
        Auth:   auth.NewVerifier(cfg.Auth),
        Broker: broker,
        Metric: geo.NewHaversine(cfg.Solver.SpeedKph),
        Log:    log,
    }
    if cfg.Server.RateRPS > 0 {
        srv.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), max(cfg.Server.RateBurst, 1))
    }
    srv.runCtx, srv.cancelRun = context.WithCancel(context.Background())
    return srv
}

// Routes builds the HTTP handler with every endpoint and the middleware chain.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()
    handle := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, instrument(pattern, h)) }

    // Request sets
    handle("POST /v1/request-sets", s.CreateRequestSetHandler)
    handle("GET /v1/request-sets/{id}", s.GetRequestSetHandler)

    // Runs
    handle("POST /v1/runs", s.CreateRunHandler)
    handle("GET /v1/runs", s.ListRunsHandler)
    handle("GET /v1/runs/{id}", s.GetRunHandler)
    handle("GET /v1/runs/{id}/report", s.RunReportHandler)
    handle("GET /v1/runs/{id}/events", s.RunEventsHandler)
    handle("GET /v1/solver/config", s.SolverConfigHandler)

    // Subscriptions
    handle("POST /v1/subscriptions", s.CreateSubscriptionHandler)
    handle("GET /v1/subscriptions", s.ListSubscriptionsHandler)
    handle("DELETE /v1/subscriptions/{id}", s.DeleteSubscriptionHandler)

    // Admin
    handle("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    handle("POST /v1/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)

    // Health, docs and debug
    handle("GET /healthz", s.HealthHandler)
    handle("GET /readyz", s.ReadyHandler)
    handle("GET /debug/info", s.DebugJSON)
    handle("GET /openapi.yaml", s.OpenAPIHandler)
    handle("GET /openapi.json", s.OpenAPIJSONHandler)
    handle("GET /docs", s.DocsHandler)
    mux.Handle("GET /metrics", metricsHandler())

    return s.logMiddleware(s.rateLimit(mux))
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Cfg.Webhooks, s.Log.With().Str("component", "webhook-worker").Logger())
}

// Shutdown cancels runs in flight and waits for them to record their outcome.
func (s *Server) Shutdown(ctx context.Context) error {
    s.cancelRun()
    done := make(chan struct{})
    go func() { s.wg.Wait(); close(done) }()
    select {
    case <-done:
    case <-ctx.Done():
        return ctx.Err()
    }
    var err error
    if c, ok := s.Broker.(interface{ Close() error }); ok {
        err = c.Close()
    }
    if c, ok := s.Store.(interface{ Close() error }); ok {
        err = errors.Join(err, c.Close())
    }
    return err
}
