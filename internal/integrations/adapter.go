package integrations

import (
    "context"

    "darpm/internal/model"
)

// RequestSource defines the minimal interface for trip request integrations.
// A source yields one static instance: requests sorted by pickup window
// opening and numbered from 1.
type RequestSource interface {
    Name() string
    Load(ctx context.Context) ([]model.Request, error)
}
