package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"darpm/internal/config"
	"darpm/internal/metrics"
	"darpm/internal/store"
)

const batchSize = 50

type Worker struct {
	Store        store.Store
	HTTP         *http.Client
	MaxAttempts  int
	PollInterval time.Duration
	Log          zerolog.Logger
}

func NewWorker(s store.Store, cfg config.WebhookConfig, log zerolog.Logger) *Worker {
	return &Worker{
		Store:        s,
		HTTP:         &http.Client{Timeout: cfg.Timeout},
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: cfg.PollInterval,
		Log:          log,
	}
}

// Run polls for due deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	w.Log.Info().Dur("interval", w.PollInterval).Int("maxAttempts", w.MaxAttempts).Msg("webhook worker started")
	for {
		select {
		case <-ctx.Done():
			w.Log.Info().Msg("webhook worker stopped")
			return nil
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, batchSize)
	if err != nil {
		w.Log.Error().Err(err).Msg("fetch due deliveries")
		return
	}
	for _, it := range items {
		code, latency, err := w.deliver(ctx, it)
		success := err == nil
		status := "success"
		lastErr := ""
		if !success {
			status = "error"
			lastErr = err.Error()
		}
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
		metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
		l := w.Log.With().Str("delivery", it.ID).Str("event", it.EventType).Int("attempt", it.Attempts+1).Int("code", code).Logger()
		if !success && it.Attempts+1 >= w.MaxAttempts {
			l.Warn().Str("error", lastErr).Msg("webhook delivery dead-lettered")
			if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); err != nil {
				l.Error().Err(err).Msg("fail delivery")
			}
			continue
		}
		next := time.Now().Add(nextBackoff(it.Attempts))
		if success {
			l.Debug().Int("latencyMs", latency).Msg("webhook delivered")
		} else {
			l.Info().Str("error", lastErr).Time("next", next).Msg("webhook delivery will retry")
		}
		if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); err != nil {
			l.Error().Err(err).Msg("mark delivery")
		}
	}
}

// deliver posts the payload once. A non-2xx answer is an error.
func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) (code, latencyMs int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	req.Header.Set("X-Delivery-Attempt", strconv.Itoa(it.Attempts+1))
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latencyMs, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latencyMs, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, latencyMs, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 { attempts = 0 }
	if attempts > 12 { attempts = 12 }
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour { base = time.Hour }
	return base
}
