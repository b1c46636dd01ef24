package api

import (
    "net/http"
    "time"

    "github.com/gorilla/websocket"

    "darpm/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
    writeWait  = 10 * time.Second
    pingPeriod = 20 * time.Second
)

func completedEvent(res *model.RunResult) Event {
    return Event{Type: EventCompleted, Data: map[string]any{
        "objective": res.Objective, "routes": len(res.Routes), "poolingPercent": res.PoolingPercent, "iterations": res.Iterations,
    }}
}

func failedEvent(msg string) Event {
    return Event{Type: EventFailed, Data: map[string]any{"error": msg}}
}

// finalEvent is the terminal event of a run that has already finished.
func finalEvent(run model.Run) (Event, bool) {
    switch {
    case run.Status == model.RunCompleted && run.Result != nil:
        return completedEvent(run.Result), true
    case run.Status == model.RunFailed:
        return failedEvent(run.Error), true
    }
    return Event{}, false
}

// RunEventsHandler streams the progress of a run over a websocket:
// one JSON Event per message, closed after the completed or failed event.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, false); !ok {
        return
    }
    id := r.PathValue("id")
    // subscribe before reading the run so that a finish in between is not lost
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    run, err := s.Store.GetRun(r.Context(), id)
    if err != nil {
        writeError(w, r, "Get run failed", err)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    if evt, done := finalEvent(run); done {
        _ = conn.WriteJSON(evt)
        closeNormal(conn)
        return
    }

    gone := make(chan struct{})
    go func() {
        defer close(gone)
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()
    ping := time.NewTicker(pingPeriod)
    defer ping.Stop()
    for {
        select {
        case evt, ok := <-ch:
            if !ok {
                return
            }
            _ = conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := conn.WriteJSON(evt); err != nil {
                return
            }
            if evt.terminal() {
                closeNormal(conn)
                return
            }
        case <-ping.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
                return
            }
        case <-gone:
            return
        }
    }
}

func closeNormal(conn *websocket.Conn) {
    msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
    _ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
