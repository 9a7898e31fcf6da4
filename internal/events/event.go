// Package events fans tracking and arrival notifications out to interested parties:
// in-process subscribers, Redis pub/sub and a RabbitMQ exchange.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ArrivalApproaching = "arrival.approaching"
	ArrivalArrived     = "arrival.arrived"
	RouteStarted       = "route.started"
	RouteCompleted     = "route.completed"
	RouteCancelled     = "route.cancelled"
	RouteSynced        = "route.synced"
)

// TopicAll receives every event regardless of the topic it was published on.
const TopicAll = "all"

// JobTopic is the topic for events about one job.
func JobTopic(jobID string) string { return "job:" + jobID }

type Event struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	JobID string         `json:"jobId,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	TS    time.Time      `json:"ts"`
}

func New(typ, jobID string, data map[string]any) Event {
	return Event{ID: "evt_" + uuid.NewString(), Type: typ, JobID: jobID, Data: data, TS: time.Now().UTC()}
}

// Sink is anything an event can be delivered to.
type Sink interface {
	Send(ctx context.Context, evt Event) error
}
