package location

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
	"fieldtrack/internal/polyline"
)

// Simulator replays a route as a stream of fixes, one point per interval.
type Simulator struct {
	feed     *Feed
	points   []model.Coordinates
	interval time.Duration
	accuracy float64
	loop     bool
	logger   *log.Logger
}

// NewSimulator replays points. accuracy (meters) is attached to every fix when > 0.
func NewSimulator(points []model.Coordinates, interval time.Duration, accuracy float64, loop bool) *Simulator {
	return &Simulator{
		feed:     NewFeed(),
		points:   points,
		interval: interval,
		accuracy: accuracy,
		loop:     loop,
		logger:   log.Default(),
	}
}

// NewSimulatorFromPolyline decodes an encoded route at the default precision.
func NewSimulatorFromPolyline(encoded string, interval time.Duration, accuracy float64, loop bool) (*Simulator, error) {
	pts, err := polyline.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("simulator route: %w", err)
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("simulator route is empty")
	}
	return NewSimulator(pts, interval, accuracy, loop), nil
}

func (s *Simulator) Subscribe(ctx context.Context) (*Subscription, error) {
	return s.feed.Subscribe(ctx)
}

// Run publishes the route until it is exhausted (or forever when looping) or ctx ends.
// All subscriptions are closed when Run returns.
func (s *Simulator) Run(ctx context.Context) error {
	defer s.feed.Close()
	if len(s.points) == 0 {
		return nil
	}
	s.logger.Printf("[simulator] replaying %d points every %v", len(s.points), s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	i := 0
	for {
		s.emit(s.points[i])
		i++
		if i == len(s.points) {
			if !s.loop {
				s.logger.Printf("[simulator] route completed")
				return nil
			}
			i = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Simulator) emit(p model.Coordinates) {
	c := p.Clone()
	if s.accuracy > 0 {
		acc := s.accuracy
		c.Accuracy = &acc
	}
	metrics.Fixes.WithLabelValues("simulator", "accepted").Inc()
	s.feed.Publish(Update{Coords: c, Timestamp: time.Now()})
}
