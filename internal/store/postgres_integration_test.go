//go:build postgres_integration

package store

import (
	"os"
	"testing"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	r, err := Open(t.Context(), DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if err := r.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := r.SaveActive(t.Context(), sampleEntry("route_it", false)); err != nil {
		t.Fatalf("SaveActive: %v", err)
	}
	a, err := r.LoadActive(t.Context())
	if err != nil || a == nil || a.ID != "route_it" {
		t.Fatalf("LoadActive: %v, %v", a, err)
	}
	if err := r.ClearActive(t.Context()); err != nil {
		t.Fatalf("ClearActive: %v", err)
	}
}
