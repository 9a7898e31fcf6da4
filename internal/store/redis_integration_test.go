//go:build redis_integration

package store

import (
	"os"
	"testing"
)

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping integration test")
	}
	kv, err := NewRedis(url, "fieldtrack_test:")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	r := New(kv)
	defer r.Close()
	if err := r.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := r.SaveHistory(t.Context(), nil); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	h, err := r.LoadHistory(t.Context())
	if err != nil || len(h) != 0 {
		t.Fatalf("LoadHistory: %v, %v", h, err)
	}
	if err := r.ClearActive(t.Context()); err != nil {
		t.Fatalf("ClearActive: %v", err)
	}
}
