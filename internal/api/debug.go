package api

import (
    "net/http"
    "time"

    "darpm/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.authorize(w, r, true); !ok { return }
    c := s.Cfg
    writeJSON(w, http.StatusOK, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":                c.Server.Port,
            "authMode":            c.Auth.Mode,
            "rateRPS":             c.Server.RateRPS,
            "rateBurst":           c.Server.RateBurst,
            "webhookMaxAttempts":  c.Webhooks.MaxAttempts,
            "insertionMethod":     c.Solver.InsertionMethod,
            "timeLimit":           c.Solver.TimeLimit.String(),
            "hasDatabaseURL":      c.Database.URL != "",
            "hasRedisURL":         c.Redis.URL != "",
        },
    })
}
