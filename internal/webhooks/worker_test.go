package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"darpm/internal/model"
	"darpm/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
	Next          time.Time
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError, Next: *nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func newWorker(rs *recordStore, c *http.Client, max int) *Worker {
	return &Worker{Store: rs, HTTP: c, MaxAttempts: max, PollInterval: 10 * time.Millisecond, Log: zerolog.Nop()}
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newWorker(rs, srv.Client(), 3)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", EventRunCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w.processOnce(context.Background())

	require.Equal(t, EventRunCompleted, gotType)
	require.True(t, VerifyHMAC("secret", gotBody, gotSig))
	require.Len(t, rs.marks, 1)
	require.True(t, rs.marks[0].Success)
	require.Equal(t, 200, rs.marks[0].Code)
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newWorker(rs, srv.Client(), 2)
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "", EventRunFailed, srv.URL, "", []byte(`{"id":"evt2"}`))

	before := time.Now()
	w.processOnce(context.Background())
	require.Len(t, rs.marks, 1)
	require.False(t, rs.marks[0].Success)
	require.Equal(t, 500, rs.marks[0].Code)
	require.Contains(t, rs.marks[0].LastErr, "500")
	require.WithinDuration(t, before.Add(time.Second), rs.marks[0].Next, time.Second)

	// make it due again and exhaust the attempts
	require.NoError(t, rs.Memory.RetryWebhookDelivery(context.Background(), id))
	w.processOnce(context.Background())
	require.Len(t, rs.fails, 1)
	require.Equal(t, id, rs.fails[0].ID)

	failed, _, err := rs.ListWebhookDeliveries(context.Background(), store.DeliveryFailed, "", 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestWorkerRunStopsWithContext(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "", EventRunCompleted, srv.URL, "", []byte(`{"id":"evt3"}`))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newWorker(rs, srv.Client(), 3).Run(ctx) }()
	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not attempted")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(-1))
	require.Equal(t, time.Second, nextBackoff(0))
	require.Equal(t, 8*time.Second, nextBackoff(3))
	require.Equal(t, time.Hour, nextBackoff(50))
}

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{EventRunCompleted}, Secret: "s"})
	require.NoError(t, err)
	_, err = mem.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{EventRunFailed}})
	require.NoError(t, err)

	p := NewPublisher(mem, zerolog.Nop())
	require.Equal(t, 1, p.Emit(ctx, EventRunCompleted, map[string]any{"runId": "r1"}))
	require.Zero(t, p.Emit(ctx, "run.unknown", nil))

	due, err := mem.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "http://a", due[0].URL)
	require.Equal(t, "s", due[0].Secret)

	var body struct {
		ID   string         `json:"id"`
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(due[0].Payload, &body))
	require.Equal(t, EventRunCompleted, body.Type)
	require.Equal(t, "r1", body.Data["runId"])
	require.NotEmpty(t, body.ID)
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("k", body)
	require.True(t, strings.HasPrefix(sig, "sha256="))
	require.True(t, VerifyHMAC("k", body, sig))
	require.True(t, VerifyHMAC("k", body, strings.TrimPrefix(sig, "sha256=")))
	require.False(t, VerifyHMAC("other", body, sig))
	require.False(t, VerifyHMAC("k", body, "zz"))
}
