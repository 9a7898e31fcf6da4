// Package location abstracts device location sources behind cancellable subscriptions.
package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fieldtrack/internal/model"
)

// ErrorCode classifies platform location failures.
type ErrorCode string

const (
	PermissionDenied    ErrorCode = "PERMISSION_DENIED"
	PositionUnavailable ErrorCode = "POSITION_UNAVAILABLE"
	Timeout             ErrorCode = "TIMEOUT"
	Unsupported         ErrorCode = "UNSUPPORTED"
)

// Valid reports whether c is one of the known codes.
func (c ErrorCode) Valid() bool {
	switch c {
	case PermissionDenied, PositionUnavailable, Timeout, Unsupported:
		return true
	}
	return false
}

// Error is a structured platform error delivered in place of a fix.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Update is one delivery from a provider: either a fix or an error.
type Update struct {
	Coords    model.Coordinates `json:"coords"`
	Timestamp time.Time         `json:"timestamp"`
	Err       *Error            `json:"error,omitempty"`
}

// Provider hands out location subscriptions. A subscription ends when the
// caller unsubscribes or ctx is done.
type Provider interface {
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Subscription is a stream of updates. C is closed after Unsubscribe.
type Subscription struct {
	C      <-chan Update
	once   sync.Once
	cancel func()
}

func NewSubscription(c <-chan Update, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
