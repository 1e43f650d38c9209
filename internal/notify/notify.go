package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/satomon/sato/internal/database"
	"github.com/satomon/sato/internal/metrics"
)

// EventType distinguishes the notification triggers
type EventType string

const (
	EventGroupOpened    EventType = "group-opened"
	EventGroupEscalated EventType = "group-escalated"
	EventGroupClosed    EventType = "group-closed"
	EventRateLimited    EventType = "rate-limited"
)

// Event is one outbound notification. Group is set for group events;
// ServiceID for rate-limit episodes.
type Event struct {
	Type      EventType            `json:"type"`
	ServiceID string               `json:"service_id,omitempty"`
	Group     *database.AlertGroup `json:"group,omitempty"`
	Message   string               `json:"message"`
	At        time.Time            `json:"at"`
}

// Summary renders a one-line human-readable form of the event
func (e Event) Summary() string {
	switch e.Type {
	case EventGroupOpened:
		return fmt.Sprintf("ALERT %s: %s", e.rootName(), e.Message)
	case EventGroupEscalated:
		return fmt.Sprintf("ESCALATION %s: %s", e.rootName(), e.Message)
	case EventGroupClosed:
		return fmt.Sprintf("RESOLVED %s: %s", e.rootName(), e.Message)
	case EventRateLimited:
		return fmt.Sprintf("RATE LIMIT %s: %s", e.ServiceID, e.Message)
	}
	return e.Message
}

func (e Event) rootName() string {
	if e.Group == nil {
		return e.ServiceID
	}
	name := e.Group.RootServiceID
	if len(e.Group.Members) > 1 {
		name += fmt.Sprintf(" (+%d dependent)", len(e.Group.Members)-1)
	}
	return name
}

// Notifier delivers one event. Delivery is best effort; the caller never
// retries.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the process log. Always present so that a
// deployment without any webhook still records alerts somewhere.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	log.Printf("Notify: %s", event.Summary())
	return nil
}

// Dispatcher fans an event out to every configured notifier in parallel,
// fire and forget. Errors are logged, never surfaced.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
}

// NewDispatcher builds a dispatcher over the given notifiers
func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, timeout: timeout}
}

// Notify delivers asynchronously and returns immediately
func (d *Dispatcher) Notify(_ context.Context, event Event) error {
	metrics.NotificationsTotal.WithLabelValues(string(event.Type)).Inc()
	for _, n := range d.notifiers {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := n.Notify(ctx, event); err != nil {
				log.Printf("Notification delivery failed (%T): %v", n, err)
			}
		}(n)
	}
	return nil
}

// Gated wraps a notifier behind a runtime switch (operator setting). Events
// arriving while disabled are dropped, not queued.
type Gated struct {
	inner   Notifier
	enabled func() bool
}

// NewGated builds a gated notifier
func NewGated(inner Notifier, enabled func() bool) *Gated {
	return &Gated{inner: inner, enabled: enabled}
}

// Notify implements Notifier
func (g *Gated) Notify(ctx context.Context, event Event) error {
	if !g.enabled() {
		return nil
	}
	return g.inner.Notify(ctx, event)
}

func memberList(g *database.AlertGroup) string {
	if g == nil || len(g.Members) == 0 {
		return ""
	}
	return strings.Join(g.Members, ", ")
}
