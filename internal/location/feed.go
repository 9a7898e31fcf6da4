package location

import (
	"context"
	"log"
	"sync"

	"fieldtrack/internal/metrics"
)

// DefaultQueueSize bounds the updates held for one subscriber that is not keeping up.
const DefaultQueueSize = 4096

// Feed is an in-process fan-out provider. Publishers push updates; every live
// subscription receives them in publish order. Publish never blocks: each
// subscription has its own queue drained by a goroutine, and once a queue holds
// QueueSize updates the oldest one is dropped and counted.
type Feed struct {
	mu        sync.Mutex
	subs      map[*queue]struct{}
	last      *Update
	closed    bool
	queueSize int
}

func NewFeed() *Feed {
	return &Feed{subs: map[*queue]struct{}{}, queueSize: DefaultQueueSize}
}

// WithQueueSize sets the per-subscription bound for subscriptions made afterwards.
func (f *Feed) WithQueueSize(n int) *Feed {
	if n > 0 {
		f.queueSize = n
	}
	return f
}

// queue holds updates for one subscriber until its pump hands them over.
type queue struct {
	ch      chan Update
	wake    chan struct{}
	stop    chan struct{}
	mu      sync.Mutex
	pending []Update
	limit   int
	eof     bool
	dropped int
}

func (q *queue) push(u Update) {
	q.mu.Lock()
	if len(q.pending) >= q.limit {
		q.pending = q.pending[1:]
		q.dropped++
		if q.dropped == 1 {
			log.Printf("[location] subscriber queue full at %d updates, dropping oldest", q.limit)
		}
		metrics.Fixes.WithLabelValues("feed", "dropped").Inc()
	}
	q.pending = append(q.pending, u)
	q.mu.Unlock()
	q.signal()
}

// finish lets the pump deliver what is queued, then close the channel.
func (q *queue) finish() {
	q.mu.Lock()
	q.eof = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pump owns ch and closes it on exit.
func (q *queue) pump() {
	defer close(q.ch)
	for {
		q.mu.Lock()
		batch, eof := q.pending, q.eof
		q.pending = nil
		q.mu.Unlock()
		for _, u := range batch {
			select {
			case q.ch <- u:
			case <-q.stop:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if eof {
			return
		}
		select {
		case <-q.wake:
		case <-q.stop:
			return
		}
	}
}

func (f *Feed) Subscribe(ctx context.Context) (*Subscription, error) {
	q := &queue{
		ch:    make(chan Update),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		limit: f.queueSize,
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(q.ch)
		return NewSubscription(q.ch, nil), nil
	}
	f.subs[q] = struct{}{}
	f.mu.Unlock()
	go q.pump()

	sub := NewSubscription(q.ch, func() { f.remove(q) })
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-q.stop:
		}
	}()
	return sub, nil
}

// remove drops q without delivering what it still holds.
func (f *Feed) remove(q *queue) {
	f.mu.Lock()
	delete(f.subs, q)
	f.mu.Unlock()
	close(q.stop)
}

// Publish queues u for every subscriber.
func (f *Feed) Publish(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if u.Err == nil {
		c := u
		c.Coords = u.Coords.Clone()
		f.last = &c
	}
	for q := range f.subs {
		q.push(u)
	}
}

// Last returns the most recent fix published, ignoring errors.
func (f *Feed) Last() (Update, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Update{}, false
	}
	return *f.last, true
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription once its queued updates are delivered; later
// publishes are dropped.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for q := range f.subs {
		delete(f.subs, q)
		q.finish()
	}
}
