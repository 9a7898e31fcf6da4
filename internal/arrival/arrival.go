// Package arrival detects when a field worker reaches a job site.
//
// A Detector runs a two-radius state machine per job:
//
//	Idle -> Tracking -> Approaching (re-entrant) -> Arrived (latched)
//
// The approach zone pre-notifies without being terminal. Arrived fires the arrival
// callback exactly once and then ignores further fixes until Reset.
package arrival

import (
	"context"
	"log"
	"sync"
	"time"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/location"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
)

type State string

const (
	Idle        State = "idle"
	Tracking    State = "tracking"
	Approaching State = "approaching"
	Arrived     State = "arrived"
)

// Status is a read-only view of a Detector.
type Status struct {
	State             State               `json:"state"`
	JobID             string              `json:"jobId"`
	Property          model.Coordinates   `json:"property"`
	ArrivalRadius     float64             `json:"arrivalRadiusMeters"`
	ApproachingRadius float64             `json:"approachingRadiusMeters"`
	DistanceMeters    *float64            `json:"distanceMeters,omitempty"`
	Proximity         string              `json:"proximity,omitempty"`
	IsApproaching     bool                `json:"isApproaching"`
	HasArrived        bool                `json:"hasArrived"`
	ArrivalEvent      *model.ArrivalEvent `json:"arrivalEvent,omitempty"`
	LastFix           *model.Coordinates  `json:"lastFix,omitempty"`
}

type Detector struct {
	mu                sync.Mutex
	jobID             string
	property          model.Coordinates
	arrivalRadius     float64
	approachingRadius float64
	enabled           bool
	onArrival         func(model.ArrivalEvent)
	onApproaching     func(jobID string, distance float64)
	now               func() time.Time
	logger            *log.Logger

	lastFix     *model.Coordinates
	distance    float64
	approaching bool
	arrived     bool
	event       *model.ArrivalEvent
}

type Option func(*Detector)

// WithArrivalRadius sets the terminal radius in meters (default geo.ArrivalThreshold).
func WithArrivalRadius(m float64) Option { return func(d *Detector) { d.arrivalRadius = m } }

// WithApproachingRadius sets the pre-notification radius in meters (default geo.NearbyThreshold).
func WithApproachingRadius(m float64) Option { return func(d *Detector) { d.approachingRadius = m } }

func WithEnabled(on bool) Option { return func(d *Detector) { d.enabled = on } }

// OnArrival is called once per job when the arrival radius is first entered.
func OnArrival(fn func(model.ArrivalEvent)) Option { return func(d *Detector) { d.onArrival = fn } }

// OnApproaching is called with the detector's job each time the approach zone is entered.
func OnApproaching(fn func(jobID string, distance float64)) Option {
	return func(d *Detector) { d.onApproaching = fn }
}

func WithClock(now func() time.Time) Option { return func(d *Detector) { d.now = now } }

func WithLogger(l *log.Logger) Option { return func(d *Detector) { d.logger = l } }

func New(jobID string, property model.Coordinates, opts ...Option) *Detector {
	d := &Detector{
		jobID:             jobID,
		property:          property.Clone(),
		arrivalRadius:     geo.ArrivalThreshold,
		approachingRadius: geo.NearbyThreshold,
		enabled:           true,
		now:               time.Now,
		logger:            log.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Update feeds one fix. Invalid fixes or an invalid target are logged and skipped.
func (d *Detector) Update(fix model.Coordinates) {
	if err := geo.ValidateCoordinates(fix); err != nil {
		d.logger.Printf("[arrival] skipping fix for job %s: %v", d.JobID(), err)
		return
	}
	d.mu.Lock()
	// no job means no target yet
	if !d.enabled || d.jobID == "" {
		d.mu.Unlock()
		return
	}
	if err := geo.ValidateCoordinates(d.property); err != nil {
		d.mu.Unlock()
		d.logger.Printf("[arrival] skipping fix, invalid property location: %v", err)
		return
	}
	dist := geo.Distance(fix, d.property)
	c := fix.Clone()
	d.lastFix = &c
	d.distance = dist
	if d.arrived {
		d.mu.Unlock()
		return
	}

	var enteredApproach bool
	if dist <= d.approachingRadius {
		if !d.approaching {
			d.approaching = true
			enteredApproach = true
		}
	} else {
		d.approaching = false
	}
	var ev *model.ArrivalEvent
	if dist <= d.arrivalRadius {
		ev = d.markArrived()
	}
	onApproaching, onArrival := d.onApproaching, d.onArrival
	jobID := d.jobID
	d.mu.Unlock()

	if enteredApproach {
		metrics.ArrivalEvents.WithLabelValues("approaching").Inc()
		d.logger.Printf("[arrival] job %s approaching: %s", jobID, geo.FormatDistance(dist))
		if onApproaching != nil {
			onApproaching(jobID, dist)
		}
	}
	if ev != nil {
		d.fireArrival(onArrival, *ev)
	}
}

// markArrived latches Arrived and builds the event from the last fix. Caller holds mu.
func (d *Detector) markArrived() *model.ArrivalEvent {
	d.arrived = true
	ev := model.ArrivalEvent{
		JobID:                d.jobID,
		ArrivalTime:          d.now(),
		DistanceFromProperty: d.distance,
		ArrivalLocation:      d.lastFix.Clone(),
		PropertyLocation:     d.property.Clone(),
	}
	d.event = &ev
	return &ev
}

func (d *Detector) fireArrival(fn func(model.ArrivalEvent), ev model.ArrivalEvent) {
	metrics.ArrivalEvents.WithLabelValues("arrived").Inc()
	d.logger.Printf("[arrival] job %s arrived, %s from property", ev.JobID, geo.FormatDistance(ev.DistanceFromProperty))
	if fn != nil {
		fn(ev)
	}
}

// TriggerArrival forces the Arrived state using the last known distance. It is a
// no-op when already arrived or when no fix has been received.
func (d *Detector) TriggerArrival() bool {
	d.mu.Lock()
	if d.arrived || d.lastFix == nil {
		d.mu.Unlock()
		return false
	}
	ev := d.markArrived()
	fn := d.onArrival
	d.mu.Unlock()
	d.logger.Printf("[arrival] job %s arrival triggered manually", ev.JobID)
	d.fireArrival(fn, *ev)
	return true
}

// Reset returns to Idle for a new job.
func (d *Detector) Reset(jobID string, property model.Coordinates) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobID = jobID
	d.property = property.Clone()
	d.lastFix = nil
	d.distance = 0
	d.approaching = false
	d.arrived = false
	d.event = nil
}

// SetEnabled toggles processing. A disabled detector ignores fixes and reports Idle.
func (d *Detector) SetEnabled(on bool) {
	d.mu.Lock()
	d.enabled = on
	d.mu.Unlock()
}

func (d *Detector) JobID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jobID
}

func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		State:             d.state(),
		JobID:             d.jobID,
		Property:          d.property.Clone(),
		ArrivalRadius:     d.arrivalRadius,
		ApproachingRadius: d.approachingRadius,
		IsApproaching:     d.approaching,
		HasArrived:        d.arrived,
	}
	if d.lastFix != nil {
		dist := d.distance
		fix := d.lastFix.Clone()
		s.DistanceMeters = &dist
		s.Proximity = geo.ProximityDescription(dist)
		s.LastFix = &fix
	}
	if d.event != nil {
		ev := *d.event
		s.ArrivalEvent = &ev
	}
	return s
}

func (d *Detector) state() State {
	switch {
	case !d.enabled || d.lastFix == nil && !d.arrived:
		return Idle
	case d.arrived:
		return Arrived
	case d.approaching:
		return Approaching
	default:
		return Tracking
	}
}

// Run feeds updates from sub until ctx ends or the stream closes. The subscription
// is always released on return.
func (d *Detector) Run(ctx context.Context, sub *location.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if u.Err != nil {
				d.logger.Printf("[arrival] location error: %v", u.Err)
				continue
			}
			d.Update(u.Coords)
		}
	}
}
