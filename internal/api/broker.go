package api

import (
    "sync"
)

// Event is one progress message for a run.
type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data,omitempty"`
}

// Run event types.
const (
    EventRunning   = "running"
    EventIteration = "iteration"
    EventElite     = "elite"
    EventCompleted = "completed"
    EventFailed    = "failed"
)

// terminal reports whether no further events follow.
func (e Event) terminal() bool { return e.Type == EventCompleted || e.Type == EventFailed }

type EventBroker interface {
    Subscribe(runID string) chan Event
    Unsubscribe(runID string, ch chan Event)
    Publish(runID string, evt Event)
}

// Broker fans events out to subscribers in this process.
type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan Event]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan Event {
    ch := make(chan Event, 32)
    b.mu.Lock()
    if b.subs[runID] == nil { b.subs[runID] = map[chan Event]struct{}{} }
    b.subs[runID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[runID]
    if _, ok := m[ch]; !ok {
        return
    }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, runID) }
    close(ch)
}

// Publish never blocks: a slow subscriber misses progress events. Terminal
// events displace the oldest buffered one so every subscriber sees the end.
func (b *Broker) Publish(runID string, evt Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[runID] {
        select {
        case ch <- evt:
        default:
            if evt.terminal() {
                select { case <-ch: default: }
                select { case ch <- evt: default: }
            }
        }
    }
}
