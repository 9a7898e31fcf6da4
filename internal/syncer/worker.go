// Package syncer pushes finalized routes to the server and marks the accepted
// ones as synced. Delivery is at-least-once: a batch is resent until the server
// acknowledges it, and the server is expected to upsert by route id.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
)

// Queue is the source of unsynced routes; history.History satisfies it.
type Queue interface {
	Unsynced() []model.RouteHistoryEntry
	MarkSynced(ctx context.Context, ids []string) (int, error)
}

type pushRequest struct {
	Routes []model.RouteHistoryEntry `json:"routes"`
}

type pushResponse struct {
	Accepted []string `json:"accepted"`
}

type Worker struct {
	Queue     Queue
	URL       string
	Secret    string
	HTTP      *http.Client
	Interval  time.Duration
	BatchSize int
	Limiter   *rate.Limiter
	// OnSynced is called with the ids accepted by each successful push.
	OnSynced func(ids []string)
	Stop     chan struct{}
	Logger   *log.Logger

	mu          sync.Mutex
	failures    int
	nextAttempt time.Time
	now         func() time.Time
}

func NewWorker(q Queue, url, secret string) *Worker {
	return &Worker{
		Queue:     q,
		URL:       url,
		Secret:    secret,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Interval:  30 * time.Second,
		BatchSize: 20,
		Limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		Stop:      make(chan struct{}),
		Logger:    log.Default(),
		now:       time.Now,
	}
}

// Run pushes on every Interval until ctx ends or Stop is closed.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Stop:
			return
		case <-ticker.C:
			if _, err := w.processOnce(ctx); err != nil {
				w.Logger.Printf("[sync] %v", err)
			}
		}
	}
}

// SyncNow pushes one batch immediately, ignoring any pending backoff.
func (w *Worker) SyncNow(ctx context.Context) (int, error) {
	w.mu.Lock()
	w.nextAttempt = time.Time{}
	w.mu.Unlock()
	return w.processOnce(ctx)
}

// processOnce pushes up to BatchSize unsynced routes and returns how many were marked synced.
func (w *Worker) processOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.now().Before(w.nextAttempt) {
		return 0, nil
	}
	items := w.Queue.Unsynced()
	if len(items) == 0 {
		return 0, nil
	}
	if w.BatchSize > 0 && len(items) > w.BatchSize {
		items = items[:w.BatchSize]
	}
	if w.Limiter != nil {
		if err := w.Limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}
	ids := make([]string, len(items))
	for i, e := range items {
		ids[i] = e.ID
	}

	start := w.now()
	accepted, err := w.push(ctx, items, ids)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SyncPushes.WithLabelValues(status).Inc()
	metrics.SyncLatency.WithLabelValues(status).Observe(float64(w.now().Sub(start).Milliseconds()))
	if err != nil {
		backoff := nextBackoff(w.failures)
		w.failures++
		w.nextAttempt = w.now().Add(backoff)
		return 0, fmt.Errorf("push %d route(s) failed, retrying in %v: %w", len(ids), backoff, err)
	}
	w.failures = 0
	w.nextAttempt = time.Time{}

	n, err := w.Queue.MarkSynced(ctx, accepted)
	if n > 0 {
		w.Logger.Printf("[sync] %d route(s) accepted", n)
		if w.OnSynced != nil {
			w.OnSynced(accepted)
		}
	}
	return n, err
}

func (w *Worker) push(ctx context.Context, items []model.RouteHistoryEntry, ids []string) ([]string, error) {
	body, err := json.Marshal(pushRequest{Routes: items})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey(ids))
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return ids, nil
	}
	var pr pushResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return pr.Accepted, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
