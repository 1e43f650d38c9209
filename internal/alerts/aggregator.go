package alerts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/satomon/sato/internal/database"
	"github.com/satomon/sato/internal/notify"
)

// Aggregator turns incidents into deduplicated, acknowledgeable alert
// groups. One open group per root service; dependent failures attributed to
// that root merge into the group's member set instead of opening their own.
//
// The aggregator is not safe for concurrent use; the monitor serializes all
// calls under its mutex.
type Aggregator struct {
	store    *database.Store
	notifier notify.Notifier

	open map[string]*database.AlertGroup // root service id -> open group
}

// NewAggregator restores open groups from the store
func NewAggregator(store *database.Store, notifier notify.Notifier) (*Aggregator, error) {
	groups, err := store.GetOpenAlertGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to load open alert groups: %w", err)
	}
	open := make(map[string]*database.AlertGroup, len(groups))
	for i := range groups {
		g := groups[i]
		open[g.RootServiceID] = &g
	}
	if len(open) > 0 {
		log.Printf("Alerts: restored %d open group(s)", len(open))
	}
	return &Aggregator{store: store, notifier: notifier, open: open}, nil
}

// OpenGroup returns the open group rooted at a service, if any
func (a *Aggregator) OpenGroup(rootID string) *database.AlertGroup {
	return a.open[rootID]
}

// OpenGroups returns every open group, sorted by root id
func (a *Aggregator) OpenGroups() []*database.AlertGroup {
	roots := make([]string, 0, len(a.open))
	for root := range a.open {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	out := make([]*database.AlertGroup, 0, len(roots))
	for _, root := range roots {
		out = append(out, a.open[root])
	}
	return out
}

// OpenGroupFor returns the open group that has a service as a member
func (a *Aggregator) OpenGroupFor(serviceID string) *database.AlertGroup {
	for _, g := range a.open {
		if g.HasMember(serviceID) {
			return g
		}
	}
	return nil
}

// RaiseRoot opens a group for a root incident, or refreshes the existing
// one. Notifies exactly once, when the group is newly formed; suppress skips
// the notification (flapping service) but still records the group.
func (a *Aggregator) RaiseRoot(rootID, reason string, suppress bool, now time.Time) (*database.AlertGroup, error) {
	if g, ok := a.open[rootID]; ok {
		g.LastSeen = now
		if err := a.store.SaveAlertGroup(g); err != nil {
			return nil, err
		}
		return g, nil
	}

	g := &database.AlertGroup{
		UUID:          uuid.New().String(),
		RootServiceID: rootID,
		Members:       database.StringList{rootID},
		Status:        database.AlertGroupStatusOpen,
		Reason:        reason,
		FirstSeen:     now,
		LastSeen:      now,
	}
	if err := a.store.SaveAlertGroup(g); err != nil {
		return nil, err
	}
	a.open[rootID] = g
	log.Printf("Alerts: opened group %s for %s (%s)", g.UUID, rootID, reason)

	if !suppress {
		a.notifier.Notify(context.Background(), notify.Event{
			Type:    notify.EventGroupOpened,
			Group:   snapshot(g),
			Message: reason,
			At:      now,
		})
	} else {
		log.Printf("Alerts: notification for %s suppressed (flapping)", rootID)
	}
	return g, nil
}

// AddMember merges an attributed dependent into the root's open group. No
// notification: the group already announced itself.
func (a *Aggregator) AddMember(rootID, memberID string, now time.Time) error {
	g, ok := a.open[rootID]
	if !ok {
		return fmt.Errorf("no open group for root %s", rootID)
	}
	g.LastSeen = now
	if !g.HasMember(memberID) {
		g.Members = append(g.Members, memberID)
		sort.Strings(g.Members)
		log.Printf("Alerts: %s attributed to %s (group %s)", memberID, rootID, g.UUID)
	}
	return a.store.SaveAlertGroup(g)
}

// Escalate marks the group as needing manual intervention. Acknowledged
// groups stay silent; the operator already knows.
func (a *Aggregator) Escalate(rootID, reason string, now time.Time) error {
	g, ok := a.open[rootID]
	if !ok {
		return fmt.Errorf("no open group for root %s", rootID)
	}
	if g.Escalated {
		return nil
	}
	g.Escalated = true
	g.LastSeen = now
	if err := a.store.SaveAlertGroup(g); err != nil {
		return err
	}
	log.Printf("Alerts: group %s escalated: %s", g.UUID, reason)

	if !g.Acknowledged() {
		a.notifier.Notify(context.Background(), notify.Event{
			Type:    notify.EventGroupEscalated,
			Group:   snapshot(g),
			Message: reason,
			At:      now,
		})
	}
	return nil
}

// RateLimited emits the one-per-episode rate-limit notification. The
// governor guarantees the once-per-episode property; this just delivers.
func (a *Aggregator) RateLimited(serviceID string, now time.Time) {
	log.Printf("Alerts: restart rate cap reached for %s", serviceID)
	a.notifier.Notify(context.Background(), notify.Event{
		Type:      notify.EventRateLimited,
		ServiceID: serviceID,
		Message:   "restart rate cap reached, automated recovery suspended",
		At:        now,
	})
}

// MaybeClose archives the group rooted at a service once the root is back
// and every member passes the stable check. Returns the closed group or nil.
func (a *Aggregator) MaybeClose(rootID string, stable func(serviceID string) bool, now time.Time) (*database.AlertGroup, error) {
	g, ok := a.open[rootID]
	if !ok {
		return nil, nil
	}
	for _, m := range g.Members {
		if !stable(m) {
			return nil, nil
		}
	}

	g.Status = database.AlertGroupStatusArchived
	g.ClosedAt = &now
	g.LastSeen = now
	if err := a.store.SaveAlertGroup(g); err != nil {
		return nil, err
	}
	delete(a.open, rootID)
	log.Printf("Alerts: group %s closed, all members stable", g.UUID)

	if !g.Acknowledged() {
		a.notifier.Notify(context.Background(), notify.Event{
			Type:    notify.EventGroupClosed,
			Group:   snapshot(g),
			Message: "all affected services recovered",
			At:      now,
		})
	}
	return g, nil
}

// Acknowledge records an operator acknowledgment on an open or archived
// group. Subsequent escalation and close notifications for the group are
// suppressed.
func (a *Aggregator) Acknowledge(groupUUID, actor string, now time.Time) (*database.AlertGroup, error) {
	g, err := a.store.AcknowledgeAlertGroup(groupUUID, actor, now)
	if err != nil {
		return nil, err
	}
	if cached, ok := a.open[g.RootServiceID]; ok && cached.UUID == groupUUID {
		cached.AckedBy = g.AckedBy
		cached.AckedAt = g.AckedAt
	}
	log.Printf("Alerts: group %s acknowledged by %s", groupUUID, actor)
	return g, nil
}

// snapshot copies a group so async notifiers never observe later mutations
func snapshot(g *database.AlertGroup) *database.AlertGroup {
	cp := *g
	cp.Members = append(database.StringList{}, g.Members...)
	return &cp
}
