package store

import (
    "context"
    "errors"
    "time"

    "darpm/internal/model"
)

// Store is the persistence interface used by the API server and the CLI.
type Store interface {
    // Request sets
    CreateRequestSet(ctx context.Context, set model.RequestSet) (model.RequestSet, error)
    GetRequestSet(ctx context.Context, id string) (model.RequestSet, error)

    // Runs
    CreateRun(ctx context.Context, run model.Run) (model.Run, error)
    UpdateRun(ctx context.Context, run model.Run) error
    GetRun(ctx context.Context, id string) (model.Run, error)
    ListRuns(ctx context.Context, statuses []string, cursor string, limit int) ([]model.Run, string, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)
    RetryWebhookDelivery(ctx context.Context, id string) error

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const defaultPageSize = 100

func pageSize(limit int) int {
    if limit <= 0 || limit > 500 { return defaultPageSize }
    return limit
}

var (
    _ Store = (*Memory)(nil)
    _ Store = (*Postgres)(nil)
)
