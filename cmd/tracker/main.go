package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"fieldtrack/internal/api"
	"fieldtrack/internal/arrival"
	"fieldtrack/internal/buildinfo"
	"fieldtrack/internal/config"
	"fieldtrack/internal/events"
	"fieldtrack/internal/export"
	"fieldtrack/internal/history"
	"fieldtrack/internal/location"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
	"fieldtrack/internal/store"
	"fieldtrack/internal/syncer"
	"fieldtrack/internal/tracking"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("FIELDTRACK_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("fieldtrack: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	metrics.RegisterDefault()
	log.Printf("fieldtrack %s starting (store=%s)", buildinfo.Version, cfg.Store.Driver)

	checks := map[string]api.Check{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Storage
	repo, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Target)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	closers = append(closers, func() { _ = repo.Close() })
	checks["store"] = repo.Ping
	hist := history.Open(ctx, repo)

	// Events
	var broker events.Broker
	if cfg.Redis.URL != "" {
		rb, err := events.NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis broker: %w", err)
		}
		closers = append(closers, func() { _ = rb.Close() })
		checks["redis"] = rb.Ping
		broker = rb
	} else {
		broker = events.NewBroker()
	}
	fan := events.NewFanout().Add("broker", events.BrokerSink{Broker: broker})
	if cfg.AMQP.URL != "" {
		conn, err := events.DialAMQP(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		pub, err := events.NewAMQPPublisher(conn)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("amqp publisher: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		checks["amqp"] = func(context.Context) error {
			if !pub.Healthy() {
				return errors.New("connection closed")
			}
			return nil
		}
		fan.Add("amqp", pub)
	}

	// Location sources all publish into one feed
	feed := location.NewFeed()
	closers = append(closers, feed.Close)
	var wg sync.WaitGroup
	forward := func(sub *location.Subscription) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Unsubscribe()
			for u := range sub.C {
				feed.Publish(u)
			}
		}()
	}
	if cfg.MQTT.Broker != "" {
		client, err := location.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		provider := location.NewMQTTProvider(client, cfg.MQTT.DeviceID)
		sub, err := provider.Subscribe(ctx)
		if err != nil {
			client.Disconnect(250)
			return fmt.Errorf("mqtt subscribe: %w", err)
		}
		closers = append(closers, func() {
			provider.Close()
			client.Disconnect(250)
		})
		checks["mqtt"] = func(context.Context) error {
			if !client.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
		forward(sub)
		log.Printf("mqtt: listening on %s", location.TopicFor(cfg.MQTT.DeviceID))
	}
	if cfg.Simulator.Enabled() {
		sim, err := newSimulator(cfg.Simulator)
		if err != nil {
			return fmt.Errorf("simulator: %w", err)
		}
		sub, _ := sim.Subscribe(ctx)
		forward(sub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulator: %v", err)
			}
		}()
	}

	// Engines
	detector := arrival.New("", model.Coordinates{}, append([]arrival.Option{
		arrival.WithArrivalRadius(cfg.Arrival.RadiusMeters),
		arrival.WithApproachingRadius(cfg.Arrival.ApproachingMeters),
		arrival.WithEnabled(cfg.Arrival.Enabled),
	}, arrivalEvents(fan)...)...)
	tracker := tracking.New(hist, cfg.Tracking,
		tracking.OnRouteStarted(func(e model.RouteHistoryEntry) {
			fan.Emit(events.RouteStarted, e.JobID, map[string]any{"routeId": e.ID, "propertyId": e.PropertyID})
		}),
		tracking.OnRouteComplete(func(e model.RouteHistoryEntry) {
			fan.Emit(events.RouteCompleted, e.JobID, map[string]any{
				"routeId":                 e.ID,
				"propertyId":              e.PropertyID,
				"totalDistanceMeters":     e.TotalDistanceMeters,
				"estimatedDistanceMeters": e.EstimatedDistanceMeters,
				"breadcrumbs":             len(e.RoutePoints),
			})
		}),
		tracking.OnRouteCancelled(func(routeID, jobID string) {
			fan.Emit(events.RouteCancelled, jobID, map[string]any{"routeId": routeID})
		}),
	)
	engines := []func(context.Context, *location.Subscription){tracker.Run, detector.Run}
	for _, runEngine := range engines {
		sub, err := feed.Subscribe(ctx)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(runEngine func(context.Context, *location.Subscription)) {
			defer wg.Done()
			runEngine(ctx, sub)
		}(runEngine)
	}

	// Sync
	if cfg.Sync.URL != "" {
		w := syncer.NewWorker(hist, cfg.Sync.URL, cfg.Sync.Secret)
		w.Interval = cfg.Sync.Interval
		w.BatchSize = cfg.Sync.BatchSize
		if cfg.Sync.RatePerSecond > 0 {
			w.Limiter = rate.NewLimiter(rate.Limit(cfg.Sync.RatePerSecond), 1)
		}
		w.OnSynced = func(ids []string) {
			fan.Emit(events.RouteSynced, "", map[string]any{"routeIds": ids, "count": len(ids)})
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
		log.Printf("sync: pushing to %s every %v", cfg.Sync.URL, w.Interval)
	}

	// HTTP
	srvDeps := &api.Server{
		History:  hist,
		Tracker:  tracker,
		Detector: detector,
		Feed:     feed,
		Broker:   broker,
		Events:   fan,
		Checks:   checks,
	}
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           srvDeps.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// the tracker finalizes an active route on its way out
	wg.Wait()
	return nil
}

// arrivalEvents publishes detector transitions under the detector's own job.
func arrivalEvents(fan *events.Fanout) []arrival.Option {
	return []arrival.Option{
		arrival.OnApproaching(func(jobID string, d float64) {
			fan.Emit(events.ArrivalApproaching, jobID, map[string]any{"distanceMeters": d})
		}),
		arrival.OnArrival(func(ev model.ArrivalEvent) {
			fan.Emit(events.ArrivalArrived, ev.JobID, map[string]any{
				"arrivalTime":          ev.ArrivalTime,
				"distanceFromProperty": ev.DistanceFromProperty,
				"arrivalLocation":      ev.ArrivalLocation,
				"propertyLocation":     ev.PropertyLocation,
			})
		}),
	}
}

func newSimulator(c config.SimulatorConfig) (*location.Simulator, error) {
	if c.Polyline != "" {
		return location.NewSimulatorFromPolyline(c.Polyline, c.Interval, c.Accuracy, c.Loop)
	}
	data, err := os.ReadFile(c.GPXFile)
	if err != nil {
		return nil, err
	}
	points, err := export.PointsFromGPX(data)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s has no track points", c.GPXFile)
	}
	return location.NewSimulator(points, c.Interval, c.Accuracy, c.Loop), nil
}
