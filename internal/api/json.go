package api

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"

    "darpm/internal/opt"
    "darpm/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
    Type     string `json:"type"`
    Title    string `json:"title"`
    Status   int    `json:"status"`
    Detail   string `json:"detail,omitempty"`
    Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    w.Header().Set("Content-Type", "application/problem+json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(Problem{
        Type:     "about:blank",
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    })
}

// writeError maps store and engine errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, store.ErrNotFound):
        status = http.StatusNotFound
    case errors.Is(err, opt.ErrInvalidParams), errors.Is(err, opt.ErrMalformedRequest),
        errors.Is(err, opt.ErrDuplicateRequest), errors.Is(err, opt.ErrNoRequests):
        status = http.StatusBadRequest
    }
    writeProblem(w, status, title, err.Error(), r.URL.Path)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
    dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20))
    dec.DisallowUnknownFields()
    return dec.Decode(v)
}

// pageParams reads cursor and limit query parameters.
func pageParams(r *http.Request) (string, int) {
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil {
            limit = n
        }
    }
    return r.URL.Query().Get("cursor"), limit
}
