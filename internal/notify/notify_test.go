package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/satomon/sato/internal/database"
	"github.com/satomon/sato/internal/metrics"
)

func TestEvent_Summary(t *testing.T) {
	group := &database.AlertGroup{
		RootServiceID: "db",
		Members:       database.StringList{"db", "api", "web"},
	}

	tests := []struct {
		event Event
		want  string
	}{
		{Event{Type: EventGroupOpened, Group: group, Message: "db is down"}, "ALERT db (+2 dependent): db is down"},
		{Event{Type: EventGroupEscalated, Group: group, Message: "manual intervention required"}, "ESCALATION db (+2 dependent): manual intervention required"},
		{Event{Type: EventGroupClosed, Group: group, Message: "recovered"}, "RESOLVED db (+2 dependent): recovered"},
		{Event{Type: EventRateLimited, ServiceID: "api", Message: "restart cap reached"}, "RATE LIMIT api: restart cap reached"},
	}
	for _, tt := range tests {
		if got := tt.event.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var (
		mu       sync.Mutex
		received Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		json.Unmarshal(body, &received)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), Event{
		Type:      EventRateLimited,
		ServiceID: "api",
		Message:   "restart cap reached",
		At:        time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received.Type != EventRateLimited || received.ServiceID != "api" {
		t.Errorf("webhook body mismatch: %+v", received)
	}
}

func TestWebhookNotifier_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Notify(context.Background(), Event{Type: EventGroupOpened}); err == nil {
		t.Error("expected error for 500 response")
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func TestDispatcher_FansOut(t *testing.T) {
	a := &recordingNotifier{done: make(chan struct{}, 1)}
	b := &recordingNotifier{done: make(chan struct{}, 1)}
	d := NewDispatcher(time.Second, a, b)

	if err := d.Notify(context.Background(), Event{Type: EventGroupOpened, Message: "x"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	for _, n := range []*recordingNotifier{a, b} {
		select {
		case <-n.done:
		case <-time.After(time.Second):
			t.Fatal("notifier never received the event")
		}
		n.mu.Lock()
		if len(n.events) != 1 || n.events[0].Message != "x" {
			t.Errorf("expected one delivered event, got %+v", n.events)
		}
		n.mu.Unlock()
	}
}

func TestDispatcher_CountsNotifications(t *testing.T) {
	counter := metrics.NotificationsTotal.WithLabelValues(string(EventGroupClosed))
	before := testutil.ToFloat64(counter)

	d := NewDispatcher(time.Second, &recordingNotifier{done: make(chan struct{}, 1)})
	if err := d.Notify(context.Background(), Event{Type: EventGroupClosed, Message: "x"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("notifications counter moved by %v, want 1", got)
	}
}
