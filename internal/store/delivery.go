package store

import (
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "time"
)

// Delivery states.
const (
    DeliveryPending   = "pending"
    DeliveryRetry     = "retry"
    DeliveryDelivered = "delivered"
    DeliveryFailed    = "failed"
)

type WebhookDelivery struct {
    ID             string     `json:"id"`
    SubscriptionID string     `json:"subscriptionId,omitempty"`
    EventType      string     `json:"eventType"`
    URL            string     `json:"url"`
    Secret         string     `json:"-"`
    Payload        []byte     `json:"-"`
    Status         string     `json:"status"`
    Attempts       int        `json:"attempts"`
    NextAttemptAt  *time.Time `json:"nextAttemptAt,omitempty"`
    LastError      string     `json:"lastError,omitempty"`
    ResponseCode   int        `json:"responseCode,omitempty"`
}

// computeDedupKey identifies a payload for at-most-once enqueueing per
// (event type, url): the event id when present, else a content hash.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}
