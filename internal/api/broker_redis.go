package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "darpm/internal/config"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that any API
// instance can stream the events of a run solved by another.
type RedisBroker struct {
    rdb    *redis.Client
    prefix string
    mu     sync.Mutex
    subs   map[chan Event]*redis.PubSub
}

func NewRedisBroker(cfg config.RedisConfig) (*RedisBroker, error) {
    opt, err := redis.ParseURL(cfg.URL)
    if err != nil { return nil, err }
    prefix := cfg.Channel
    if prefix == "" { prefix = "darpm:run-events" }
    return &RedisBroker{rdb: redis.NewClient(opt), prefix: prefix, subs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(runID string) chan Event {
    ch := make(chan Event, 32)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(runID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub connection; the forwarding goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(runID string, ch chan Event) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(runID string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(runID), data).Err()
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(runID string) string { return b.prefix + ":" + runID }
