package api

import (
    "context"
    "net/http"
    "net/url"
    "time"

    "darpm/internal/model"
    "darpm/internal/webhooks"
)

// CreateRequestSetHandler handles POST /v1/request-sets: checkpoints a batch
// of requests so that later runs can reproduce it.
func (s *Server) CreateRequestSetHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok { return }
    var in model.RequestSet
    if err := decodeJSON(w, r, &in); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateRequests(in.Requests); err != nil {
        writeError(w, r, "Invalid requests", err)
        return
    }
    set, err := s.Store.CreateRequestSet(r.Context(), model.RequestSet{Name: in.Name, Requests: in.Requests})
    if err != nil {
        writeError(w, r, "Create request set failed", err)
        return
    }
    w.Header().Set("Location", "/v1/request-sets/"+set.ID)
    writeJSON(w, http.StatusCreated, set)
}

func (s *Server) GetRequestSetHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok { return }
    set, err := s.Store.GetRequestSet(r.Context(), r.PathValue("id"))
    if err != nil {
        writeError(w, r, "Get request set failed", err)
        return
    }
    writeJSON(w, http.StatusOK, set)
}

var knownEvents = map[string]bool{webhooks.EventRunCompleted: true, webhooks.EventRunFailed: true}

// CreateSubscriptionHandler handles POST /v1/subscriptions (admin)
func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, true); !ok { return }
    var req model.SubscriptionRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url must be an absolute http(s) URL", r.URL.Path)
        return
    }
    if len(req.Events) == 0 {
        writeProblem(w, http.StatusBadRequest, "Invalid subscription", "events must not be empty", r.URL.Path)
        return
    }
    for _, e := range req.Events {
        if !knownEvents[e] {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "unknown event type "+e, r.URL.Path)
            return
        }
    }
    sub, err := s.Store.CreateSubscription(r.Context(), req)
    if err != nil {
        writeError(w, r, "Create subscription failed", err)
        return
    }
    writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, true); !ok { return }
    cursor, limit := pageParams(r)
    items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
    if err != nil {
        writeError(w, r, "List subscriptions failed", err)
        return
    }
    if items == nil { items = []model.Subscription{} }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, true); !ok { return }
    if err := s.Store.DeleteSubscription(r.Context(), r.PathValue("id")); err != nil {
        writeError(w, r, "Delete subscription failed", err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, true); !ok { return }
    cursor, limit := pageParams(r)
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), cursor, limit)
    if err != nil {
        writeError(w, r, "List deliveries failed", err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, true); !ok { return }
    if err := s.Store.RetryWebhookDelivery(r.Context(), r.PathValue("id")); err != nil {
        writeError(w, r, "Retry delivery failed", err)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler checks the store and, when configured, the Redis broker.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "store: "+err.Error(), r.URL.Path)
        return
    }
    type pinger interface{ Ping(ctx context.Context) error }
    if p, ok := s.Broker.(pinger); ok {
        if err := p.Ping(ctx); err != nil {
            writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "broker: "+err.Error(), r.URL.Path)
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
