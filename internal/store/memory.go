package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "darpm/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu      sync.Mutex
    sets    map[string]model.RequestSet
    runs    map[string]model.Run
    runIDs  []string // creation order
    subs    []model.Subscription
    // Webhooks queue state
    deliveries map[string]*WebhookDelivery
    order      []string                   // delivery ids in enqueue order
    dedup      map[string]string          // eventType|url|key -> delivery id
    dlq        []WebhookDelivery          // dead-lettered deliveries
    now        func() time.Time
}

func NewMemory() *Memory {
    return &Memory{
        sets: map[string]model.RequestSet{},
        runs: map[string]model.Run{},
        deliveries: map[string]*WebhookDelivery{},
        dedup: map[string]string{},
        now: time.Now,
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateRequestSet(ctx context.Context, set model.RequestSet) (model.RequestSet, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    set.ID = uuid.New().String()
    set.CreatedAt = m.now().UTC().Format(time.RFC3339)
    set.Requests = append([]model.Request(nil), set.Requests...)
    m.sets[set.ID] = set
    return set, nil
}

func (m *Memory) GetRequestSet(ctx context.Context, id string) (model.RequestSet, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    set, ok := m.sets[id]
    if !ok { return model.RequestSet{}, ErrNotFound }
    set.Requests = append([]model.Request(nil), set.Requests...)
    return set, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if run.RequestSetID != "" {
        if _, ok := m.sets[run.RequestSetID]; !ok { return model.Run{}, ErrNotFound }
    }
    run.ID = uuid.New().String()
    if run.Status == "" { run.Status = model.RunPending }
    run.CreatedAt = m.now().UTC().Format(time.RFC3339)
    m.runs[run.ID] = run
    m.runIDs = append(m.runIDs, run.ID)
    return run, nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    old, ok := m.runs[run.ID]
    if !ok { return ErrNotFound }
    run.CreatedAt = old.CreatedAt
    run.RequestSetID = old.RequestSetID
    if (run.Status == model.RunCompleted || run.Status == model.RunFailed) && run.FinishedAt == "" {
        run.FinishedAt = m.now().UTC().Format(time.RFC3339)
    }
    m.runs[run.ID] = run
    return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    run, ok := m.runs[id]
    if !ok { return model.Run{}, ErrNotFound }
    return run, nil
}

func (m *Memory) ListRuns(ctx context.Context, statuses []string, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var list []model.Run
    for _, id := range m.runIDs {
        r := m.runs[id]
        if len(statuses) == 0 || contains(statuses, r.Status) { list = append(list, r) }
    }
    return page(list, func(r model.Run) string { return r.ID }, cursor, limit)
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: append([]string(nil), req.Events...), Secret: req.Secret}
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs {
        if contains(s.Events, eventType) { out = append(out, s) }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return page(m.subs, func(s model.Subscription) string { return s.ID }, cursor, limit)
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Subscription, 0, len(m.subs))
    for _, s := range m.subs { if s.ID != id { out = append(out, s) } }
    if len(out) == len(m.subs) { return ErrNotFound }
    m.subs = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := eventType + "|" + url + "|" + computeDedupKey(payload)
    if _, dup := m.dedup[key]; dup { return "", nil }
    id := uuid.New().String()
    next := m.now()
    m.deliveries[id] = &WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, NextAttemptAt: &next}
    m.order = append(m.order, id)
    m.dedup[key] = id
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    if success {
        d.Status = DeliveryDelivered
        d.NextAttemptAt = nil
        return nil
    }
    d.Status = DeliveryRetry
    d.LastError = lastError
    next := m.now().Add(time.Minute)
    if nextAttemptAt != nil { next = *nextAttemptAt }
    d.NextAttemptAt = &next
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.NextAttemptAt = nil
    m.dlq = append(m.dlq, *d)
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var list []WebhookDelivery
    for _, id := range m.order {
        d := m.deliveries[id]
        if status == "" || d.Status == status { list = append(list, *d) }
    }
    return page(list, func(d WebhookDelivery) string { return d.ID }, cursor, limit)
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    next := m.now()
    d.Status = DeliveryPending
    d.NextAttemptAt = &next
    return nil
}

// page returns up to limit items following the one whose id is cursor,
// plus the cursor of the next page ("" on the last page).
func page[T any](list []T, id func(T) string, cursor string, limit int) ([]T, string, error) {
    limit = pageSize(limit)
    start := 0
    if cursor != "" {
        for i := range list { if id(list[i]) == cursor { start = i + 1; break } }
    }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]T(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = id(list[end-1]) }
    return items, next, nil
}

func contains(xs []string, x string) bool {
    for _, v := range xs { if v == x { return true } }
    return false
}
