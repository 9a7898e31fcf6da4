package events

import (
	"context"
	"sync"
)

type Broker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// MemoryBroker is the in-process Broker. Slow subscribers drop events.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *MemoryBroker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *MemoryBroker) Publish(topic string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver(topic, evt)
	if topic != TopicAll {
		b.deliver(TopicAll, evt)
	}
}

func (b *MemoryBroker) deliver(topic string, evt Event) {
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// BrokerSink publishes events on their job topic of a Broker.
type BrokerSink struct{ Broker Broker }

func (s BrokerSink) Send(_ context.Context, evt Event) error {
	topic := TopicAll
	if evt.JobID != "" {
		topic = JobTopic(evt.JobID)
	}
	s.Broker.Publish(topic, evt)
	return nil
}
