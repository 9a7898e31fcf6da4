package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fieldtrack.yml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

var envKeys = []string{"PORT", "DATABASE_URL", "REDIS_URL", "AMQP_URL", "MQTT_BROKER", "SYNC_URL", "SYNC_SECRET", "STORE_DRIVER", "STORE_DIR"}

// chdir moves into an empty directory and blanks the override variables so the
// host environment does not leak in.
func chdir(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaults(t *testing.T) {
	chdir(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Store.Driver != "memory" {
		t.Fatalf("defaults %+v", cfg)
	}
	if cfg.Tracking.MinDistanceMeters != 50 || cfg.Tracking.Interval != 30*time.Second {
		t.Fatalf("tracking defaults %+v", cfg.Tracking)
	}
	if !cfg.Arrival.Enabled || cfg.Arrival.RadiusMeters != 50 || cfg.Arrival.ApproachingMeters != 200 {
		t.Fatalf("arrival defaults %+v", cfg.Arrival)
	}
	if cfg.Simulator.Enabled() {
		t.Fatalf("simulator should be off by default")
	}
}

func TestLoadFile(t *testing.T) {
	chdir(t)
	p := writeFile(t, `
server:
  port: 9090
store:
  driver: file
  target: /var/lib/fieldtrack
tracking:
  min_distance_meters: 25
  interval: 10s
arrival:
  radius_meters: 30
  approaching_meters: 150
sync:
  url: https://sync.example.com/v1/routes
  batch_size: 5
simulator:
  polyline: "_p~iF~ps|U_ulLnnqC"
  loop: true
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Store.Target != "/var/lib/fieldtrack" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Tracking.MinDistanceMeters != 25 || cfg.Tracking.Interval != 10*time.Second {
		t.Fatalf("tracking %+v", cfg.Tracking)
	}
	if cfg.Sync.BatchSize != 5 || cfg.Sync.Interval != 30*time.Second {
		t.Fatalf("sync %+v", cfg.Sync)
	}
	if !cfg.Simulator.Enabled() || !cfg.Simulator.Loop {
		t.Fatalf("simulator %+v", cfg.Simulator)
	}
}

func TestEnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/fieldtrack")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SYNC_URL", "http://localhost:9000/sync")
	t.Setenv("SYNC_SECRET", "shh")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("port %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" || !strings.HasPrefix(cfg.Store.Target, "postgres://") {
		t.Fatalf("DATABASE_URL should select postgres: %+v", cfg.Store)
	}
	if cfg.Redis.URL == "" || cfg.Sync.URL == "" || cfg.Sync.Secret != "shh" {
		t.Fatalf("env not applied: %+v %+v", cfg.Redis, cfg.Sync)
	}
}

func TestExplicitDriverWins(t *testing.T) {
	chdir(t)
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORE_DIR", "/tmp/ft")
	t.Setenv("DATABASE_URL", "postgres://localhost/x")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "file" || cfg.Store.Target != "/tmp/ft" {
		t.Fatalf("store %+v", cfg.Store)
	}
}

func TestDotEnv(t *testing.T) {
	chdir(t)
	if err := os.WriteFile(".env", []byte("SYNC_SECRET=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides a variable that is present, even if empty
	os.Unsetenv("SYNC_SECRET")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.Secret != "from-dotenv" {
		t.Fatalf("secret %q", cfg.Sync.Secret)
	}
}

func TestValidation(t *testing.T) {
	chdir(t)
	cases := map[string]string{
		"unknown driver":    "store:\n  driver: sqlite\n",
		"missing target":    "store:\n  driver: file\n",
		"approach < radius": "arrival:\n  radius_meters: 100\n  approaching_meters: 50\n",
		"bad sync url":      "sync:\n  url: not a url\n",
		"two sim sources":   "simulator:\n  polyline: abc\n  gpx_file: r.gpx\n",
		"mqtt no device":    "mqtt:\n  broker: tcp://localhost:1883\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestBadPort(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric PORT")
	}
}
