package model

// Core domain types shared by the engine, the store and the API.

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// TimeWindow bounds are absolute times in seconds.
type TimeWindow struct {
    Earliest float64 `json:"earliest"`
    Latest   float64 `json:"latest"`
}

// Contains reports whether t lies inside the window, bounds included.
func (w TimeWindow) Contains(t float64) bool {
    return t >= w.Earliest && t <= w.Latest
}

// Request is one trip. It is created once by ingestion and never mutated.
type Request struct {
    ID          int        `json:"id"`
    Pickup      TimeWindow `json:"pickup"`
    Dropoff     TimeWindow `json:"dropoff"`
    Origin      GeoPoint   `json:"origin"`
    Destination GeoPoint   `json:"destination"`
}

// RequestSet is a checkpointed batch of requests, kept for reproducible runs.
type RequestSet struct {
    ID        string    `json:"id"`
    Name      string    `json:"name,omitempty"`
    CreatedAt string    `json:"createdAt,omitempty"`
    Requests  []Request `json:"requests"`
}

// SolverOverrides are optional per-run parameter overrides. Zero values keep the defaults.
type SolverOverrides struct {
    Capacity              int     `json:"capacity,omitempty"`
    Alpha                 float64 `json:"alpha,omitempty"`
    Beta                  float64 `json:"beta,omitempty"`
    LimitRCL              float64 `json:"limitRCL,omitempty"`
    GRASPIterations       int     `json:"graspIterations,omitempty"`
    LocalSearchIterations int     `json:"localSearchIterations,omitempty"`
    InsertAttempts        int     `json:"insertAttempts,omitempty"`
    SwapAttempts          int     `json:"swapAttempts,omitempty"`
    SwapFraction          float64 `json:"swapFraction,omitempty"`
    InsertionMethod       string  `json:"insertionMethod,omitempty"`
    Seed                  int64   `json:"seed,omitempty"`
}

type RunRequest struct {
    RequestSetID string           `json:"requestSetId,omitempty"`
    Requests     []Request        `json:"requests,omitempty"`
    TimeLimitMs  int              `json:"timeLimitMs,omitempty"`
    Solver       *SolverOverrides `json:"solver,omitempty"`
}

const (
    RunPending   = "pending"
    RunRunning   = "running"
    RunCompleted = "completed"
    RunFailed    = "failed"
)

type Run struct {
    ID           string     `json:"id"`
    RequestSetID string     `json:"requestSetId,omitempty"`
    Status       string     `json:"status"`
    CreatedAt    string     `json:"createdAt,omitempty"`
    FinishedAt   string     `json:"finishedAt,omitempty"`
    Error        string     `json:"error,omitempty"`
    Result       *RunResult `json:"result,omitempty"`
}

// RunResult is the reported elite solution plus run statistics.
type RunResult struct {
    Requests       int           `json:"requests"`
    Objective      int           `json:"objective"`
    PoolingPercent float64       `json:"poolingPercent"`
    Iterations     int           `json:"iterations"`
    ElapsedMs      int64         `json:"elapsedMs"`
    Routes         []RouteOut    `json:"routes"`
    Shared         []RequestStat `json:"shared,omitempty"`
}

type RouteOut struct {
    Seq   int       `json:"seq"`
    Delay float64   `json:"delay"`
    Stops []StopOut `json:"stops"`
}

type StopOut struct {
    RequestID int      `json:"requestId"`
    Kind      string   `json:"kind"`
    Time      float64  `json:"time"`
    Location  GeoPoint `json:"location"`
}

// RequestStat describes how one shared request fared compared to a private ride.
type RequestStat struct {
    RequestID            int     `json:"requestId"`
    DelaySec             float64 `json:"delaySec"`
    DelayPercent         float64 `json:"delayPercent"`
    SavingPercent        float64 `json:"savingPercent"`
    PickupAdvanceSec     float64 `json:"pickupAdvanceSec"`
    PickupAdvancePercent float64 `json:"pickupAdvancePercent"`
}

type SubscriptionRequest struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}

type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}
