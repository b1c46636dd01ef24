package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "darpm/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent, so running it on each start is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
    names, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        b, err := migrations.ReadFile(name)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

// Request sets
func (p *Postgres) CreateRequestSet(ctx context.Context, set model.RequestSet) (model.RequestSet, error) {
    set.ID = uuid.New().String()
    reqs, err := json.Marshal(set.Requests)
    if err != nil { return model.RequestSet{}, err }
    var created time.Time
    err = p.db.QueryRowContext(ctx, `INSERT INTO request_sets (id, name, requests) VALUES ($1,$2,$3) RETURNING created_at`,
        set.ID, nullIfEmpty(set.Name), reqs).Scan(&created)
    if err != nil { return model.RequestSet{}, err }
    set.CreatedAt = created.UTC().Format(time.RFC3339)
    return set, nil
}

func (p *Postgres) GetRequestSet(ctx context.Context, id string) (model.RequestSet, error) {
    if _, err := uuid.Parse(id); err != nil { return model.RequestSet{}, ErrNotFound }
    var set model.RequestSet
    var reqs []byte
    var created time.Time
    err := p.db.QueryRowContext(ctx, `SELECT id::text, COALESCE(name,''), requests, created_at FROM request_sets WHERE id=$1`, id).
        Scan(&set.ID, &set.Name, &reqs, &created)
    if errors.Is(err, sql.ErrNoRows) { return model.RequestSet{}, ErrNotFound }
    if err != nil { return model.RequestSet{}, err }
    if err := json.Unmarshal(reqs, &set.Requests); err != nil { return model.RequestSet{}, fmt.Errorf("request set %s: %w", id, err) }
    set.CreatedAt = created.UTC().Format(time.RFC3339)
    return set, nil
}

// Runs
func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    if run.RequestSetID != "" {
        if _, err := uuid.Parse(run.RequestSetID); err != nil { return model.Run{}, ErrNotFound }
        var exists bool
        if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM request_sets WHERE id=$1)`, run.RequestSetID).Scan(&exists); err != nil {
            return model.Run{}, err
        }
        if !exists { return model.Run{}, ErrNotFound }
    }
    run.ID = uuid.New().String()
    if run.Status == "" { run.Status = model.RunPending }
    var created time.Time
    err := p.db.QueryRowContext(ctx, `INSERT INTO runs (id, request_set_id, status) VALUES ($1,$2,$3) RETURNING created_at`,
        run.ID, nullIfEmpty(run.RequestSetID), run.Status).Scan(&created)
    if err != nil { return model.Run{}, err }
    run.CreatedAt = created.UTC().Format(time.RFC3339)
    return run, nil
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
    var result any
    if run.Result != nil {
        b, err := json.Marshal(run.Result)
        if err != nil { return err }
        result = b
    }
    finished := run.Status == model.RunCompleted || run.Status == model.RunFailed
    res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$2, error=$3, result=$4,
        finished_at=CASE WHEN $5 THEN COALESCE(finished_at, now()) ELSE finished_at END WHERE id=$1`,
        run.ID, run.Status, nullIfEmpty(run.Error), result, finished)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

const runColumns = `id::text, COALESCE(request_set_id::text,''), status, COALESCE(error,''), result, created_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (model.Run, error) {
    var r model.Run
    var result []byte
    var created time.Time
    var finished sql.NullTime
    if err := row.Scan(&r.ID, &r.RequestSetID, &r.Status, &r.Error, &result, &created, &finished); err != nil {
        return model.Run{}, err
    }
    r.CreatedAt = created.UTC().Format(time.RFC3339)
    if finished.Valid { r.FinishedAt = finished.Time.UTC().Format(time.RFC3339) }
    if len(result) > 0 {
        r.Result = &model.RunResult{}
        if err := json.Unmarshal(result, r.Result); err != nil { return model.Run{}, fmt.Errorf("run %s: %w", r.ID, err) }
    }
    return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Run{}, ErrNotFound }
    r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

// ListRuns pages through runs by id. Results are omitted from the listing.
func (p *Postgres) ListRuns(ctx context.Context, statuses []string, cursor string, limit int) ([]model.Run, string, error) {
    limit = pageSize(limit)
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(request_set_id::text,''), status, COALESCE(error,''), NULL::jsonb, created_at, finished_at
        FROM runs WHERE ($1::text[] IS NULL OR status = ANY($1)) AND ($2 = '' OR id::text > $2) ORDER BY id LIMIT $3`,
        pqStringArray(statuses), cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    var last string
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
        last = r.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Subscriptions
func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    filter, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE events @> $1::jsonb ORDER BY id`, string(filter))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    limit = pageSize(limit)
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE ($1 = '' OR id::text > $1) ORDER BY id LIMIT $2`, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    var got string
    err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING RETURNING id::text`,
        id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk).Scan(&got)
    if errors.Is(err, sql.ErrNoRows) { return "", nil }
    if err != nil { return "", err }
    return got, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', next_attempt_at=NULL, delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
        return err
    }
    if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
        id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
    return err
}

// FailWebhookDelivery marks the delivery failed and copies it to the dead-letter table.
func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    if _, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', next_attempt_at=NULL, last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
        id, nullIfEmpty(lastError), responseCode, latencyMs); err != nil {
        return err
    }
    if _, err := tx.ExecContext(ctx, `INSERT INTO webhook_dlq (delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT id, event_type, url, secret, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError)); err != nil {
        return err
    }
    return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    limit = pageSize(limit)
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0)
        FROM webhook_deliveries WHERE ($1 = '' OR status=$1) AND ($2 = '' OR id::text > $2) ORDER BY id LIMIT $3`, status, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []WebhookDelivery{}
    var last string
    for rows.Next() {
        var d WebhookDelivery
        var nextAt sql.NullTime
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &nextAt, &d.LastError, &d.ResponseCode); err != nil { return nil, "", err }
        if nextAt.Valid { t := nextAt.Time; d.NextAttemptAt = &t }
        out = append(out, d)
        last = d.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

// pqStringArray passes nil for an empty filter so `$1::text[] IS NULL` matches everything.
func pqStringArray(v []string) any {
    if len(v) == 0 { return nil }
    return v
}
