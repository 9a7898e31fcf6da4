package events

import (
	"context"
	"log"
	"time"

	"fieldtrack/internal/metrics"
)

// Fanout delivers each event to every named sink. A failing sink is logged and
// does not stop delivery to the others.
type Fanout struct {
	sinks   map[string]Sink
	order   []string
	timeout time.Duration
	logger  *log.Logger
}

func NewFanout() *Fanout {
	return &Fanout{sinks: map[string]Sink{}, timeout: 5 * time.Second, logger: log.Default()}
}

// Add registers a sink under name; names label the published-events metric.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	if _, ok := f.sinks[name]; !ok {
		f.order = append(f.order, name)
	}
	f.sinks[name] = s
	return f
}

func (f *Fanout) Send(ctx context.Context, evt Event) error {
	for _, name := range f.order {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := f.sinks[name].Send(sctx, evt)
		cancel()
		if err != nil {
			metrics.EventsPublished.WithLabelValues(name, "error").Inc()
			f.logger.Printf("[events] %s: %s %s failed: %v", name, evt.Type, evt.ID, err)
			continue
		}
		metrics.EventsPublished.WithLabelValues(name, "ok").Inc()
	}
	return nil
}

// Emit builds and sends an event in one call, detached from any request context.
func (f *Fanout) Emit(typ, jobID string, data map[string]any) Event {
	evt := New(typ, jobID, data)
	_ = f.Send(context.Background(), evt)
	return evt
}
