package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"darpm/internal/store"
)

// Event types emitted for runs.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

type Publisher struct {
	Store store.Store
	Log   zerolog.Logger
}

func NewPublisher(s store.Store, log zerolog.Logger) *Publisher {
	return &Publisher{Store: s, Log: log}
}

// Emit enqueues an event for every subscription to eventType. It returns
// the number of deliveries enqueued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		p.Log.Error().Err(err).Str("event", eventType).Msg("load subscriptions")
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	payload := map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.Log.Error().Err(err).Str("event", eventType).Msg("encode event")
		return 0
	}
	n := 0
	for _, s := range subs {
		id, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
		if err != nil {
			p.Log.Error().Err(err).Str("subscription", s.ID).Msg("enqueue webhook")
			continue
		}
		if id != "" {
			n++
		}
	}
	return n
}
