// Package config loads the tracker configuration from an optional YAML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/tracking"
)

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory file postgres redis"`
	// Target is the directory for file, a DSN for postgres and a URL for redis.
	Target string `yaml:"target" validate:"required_unless=Driver memory"`
}

type ArrivalConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RadiusMeters      float64 `yaml:"radius_meters" validate:"gt=0"`
	ApproachingMeters float64 `yaml:"approaching_meters" validate:"gtefield=RadiusMeters"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	DeviceID string `yaml:"device_id" validate:"required_with=Broker"`
}

type AMQPConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	// URL enables the Redis pub/sub event broker; empty keeps events in-process.
	URL string `yaml:"url"`
}

type SyncConfig struct {
	URL           string        `yaml:"url" validate:"omitempty,url"`
	Secret        string        `yaml:"secret"`
	Interval      time.Duration `yaml:"interval" validate:"gte=0"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=0"`
	RatePerSecond float64       `yaml:"rate_per_second" validate:"gte=0"`
}

type SimulatorConfig struct {
	Polyline string        `yaml:"polyline"`
	GPXFile  string        `yaml:"gpx_file" validate:"excluded_with=Polyline"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	Accuracy float64       `yaml:"accuracy" validate:"gte=0"`
	Loop     bool          `yaml:"loop"`
}

func (s SimulatorConfig) Enabled() bool { return s.Polyline != "" || s.GPXFile != "" }

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Tracking  tracking.Config `yaml:"tracking"`
	Arrival   ArrivalConfig   `yaml:"arrival"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Redis     RedisConfig     `yaml:"redis"`
	Sync      SyncConfig      `yaml:"sync"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Store:    StoreConfig{Driver: "memory"},
		Tracking: tracking.Config{MinDistanceMeters: tracking.DefaultMinDistanceMeters, Interval: tracking.DefaultInterval},
		Arrival: ArrivalConfig{
			Enabled:           true,
			RadiusMeters:      geo.ArrivalThreshold,
			ApproachingMeters: geo.NearbyThreshold,
		},
		MQTT:      MQTTConfig{ClientID: "fieldtrack"},
		Sync:      SyncConfig{Interval: 30 * time.Second, BatchSize: 20, RatePerSecond: 1},
		Simulator: SimulatorConfig{Interval: time.Second, Accuracy: 5},
	}
}

// Load reads path (if non-empty), then .env (if present), then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("STORE_DIR"); v != "" && cfg.Store.Driver == "file" {
		cfg.Store.Target = v
	}
	// DATABASE_URL selects postgres unless a driver was chosen explicitly.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if os.Getenv("STORE_DRIVER") == "" && cfg.Store.Driver == "memory" {
			cfg.Store.Driver = "postgres"
		}
		if cfg.Store.Driver == "postgres" {
			cfg.Store.Target = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		if cfg.Store.Driver == "redis" && cfg.Store.Target == "" {
			cfg.Store.Target = v
		}
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("SYNC_URL"); v != "" {
		cfg.Sync.URL = v
	}
	if v := os.Getenv("SYNC_SECRET"); v != "" {
		cfg.Sync.Secret = v
	}
	return nil
}
