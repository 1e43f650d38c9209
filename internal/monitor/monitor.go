// Package monitor drives the probe/classify/recover loop. It owns the single
// mutex all state mutation goes through: tick batches, fired backoff timers,
// inventory reloads, and operator actions are serialized here so each service
// has exactly one writer.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satomon/sato/internal/alerts"
	"github.com/satomon/sato/internal/config"
	"github.com/satomon/sato/internal/database"
	"github.com/satomon/sato/internal/governor"
	"github.com/satomon/sato/internal/graph"
	"github.com/satomon/sato/internal/inventory"
	"github.com/satomon/sato/internal/maintenance"
	"github.com/satomon/sato/internal/metrics"
	"github.com/satomon/sato/internal/probe"
	"github.com/satomon/sato/internal/recovery"
	"github.com/satomon/sato/internal/status"
)

// minBoostedInterval floors the accelerated probe cadence for Down roots
const minBoostedInterval = 2 * time.Second

// incident tracks one recovery episode for a service. A new incident starts
// when the service goes Down with no prior incident, or after the previous
// one ended and the recovery cooldown elapsed.
type incident struct {
	uuid            string
	attempts        int
	escalated       bool
	lastRecoveredAt time.Time
}

// Monitor coordinates all components around the tick loop
type Monitor struct {
	cfg        *config.Config
	engine     *probe.Engine
	classifier *status.Classifier
	governor   *governor.Governor
	recoverer  *recovery.Controller
	aggregator *alerts.Aggregator
	maint      *maintenance.Manager
	store      *database.Store

	mu              sync.Mutex
	services        []inventory.Service
	byID            map[string]inventory.Service
	graph           *graph.Graph
	incidents       map[string]*incident
	downSince       map[string]time.Time
	transitionTimes map[string][]time.Time // flap detection history
	rateAlerted     map[string]bool
	due             map[string]time.Time

	subMu       sync.Mutex
	subscribers map[int]chan Snapshot
	nextSubID   int

	stopOnce sync.Once
	stopped  chan struct{}
}

// New wires a monitor over already-constructed components, builds its own
// classifier, governor, and recovery controller, and restores persisted
// state.
func New(cfg *config.Config, engine *probe.Engine, aggregator *alerts.Aggregator, maint *maintenance.Manager, store *database.Store) (*Monitor, error) {
	m := &Monitor{
		cfg:             cfg,
		engine:          engine,
		classifier:      status.NewClassifier(cfg.DownAfterFailures, cfg.RecoverAfterSuccesses, cfg.DegradedLatencyThreshold),
		governor:        governor.New(cfg.RestartRateWindow, cfg.RestartRateCap),
		aggregator:      aggregator,
		maint:           maint,
		store:           store,
		byID:            make(map[string]inventory.Service),
		graph:           graph.Build(nil),
		incidents:       make(map[string]*incident),
		downSince:       make(map[string]time.Time),
		transitionTimes: make(map[string][]time.Time),
		rateAlerted:     make(map[string]bool),
		due:             make(map[string]time.Time),
		subscribers:     make(map[int]chan Snapshot),
		stopped:         make(chan struct{}),
	}
	m.recoverer = recovery.NewController(engine, cfg.BackoffStages, cfg.CommandTimeout, m.HandleOutcome)
	// Timers armed before a maintenance window opened must not fire into it.
	m.recoverer.SetGate(func(svc inventory.Service, at time.Time) bool {
		return !m.maint.Active(svc.ID, at)
	})

	if err := m.restore(); err != nil {
		return nil, err
	}
	return m, nil
}

// Recoverer exposes the controller for test configuration
func (m *Monitor) Recoverer() *recovery.Controller {
	return m.recoverer
}

// restore loads persisted service records back into the classifier, the
// governor, and the incident table.
func (m *Monitor) restore() error {
	states, err := m.store.GetServiceStates()
	if err != nil {
		return fmt.Errorf("failed to load persisted service states: %w", err)
	}
	for _, s := range states {
		rec := &status.Record{
			ServiceID:            s.ServiceID,
			State:                status.State(s.State),
			ConsecutiveFailures:  s.ConsecutiveFailures,
			ConsecutiveSuccesses: s.ConsecutiveSuccesses,
			LastDetail:           s.LastDetail,
		}
		if s.LastTransition != nil {
			rec.LastTransition = *s.LastTransition
		}
		for _, ms := range s.LatenciesMs {
			rec.PushLatency(time.Duration(ms) * time.Millisecond)
		}
		m.classifier.Restore(rec)
		m.governor.Restore(s.ServiceID, s.RestartWindow)
		m.governor.RestoreEpisode(s.ServiceID, s.RateLimitAlerted)
		m.rateAlerted[s.ServiceID] = s.RateLimitAlerted

		if rec.State == status.StateDown {
			m.downSince[s.ServiceID] = rec.LastTransition
		}
		if s.IncidentUUID != "" {
			inc := &incident{
				uuid:      s.IncidentUUID,
				attempts:  s.IncidentAttempts,
				escalated: s.IncidentEscalated,
			}
			if s.LastRecoveredAt != nil {
				inc.lastRecoveredAt = *s.LastRecoveredAt
			}
			m.incidents[s.ServiceID] = inc
		}
	}
	if len(states) > 0 {
		log.Printf("Monitor: restored %d service record(s)", len(states))
	}
	return nil
}

// SetServices installs the current inventory, used at startup and on hot
// reload. State for services dropped from the inventory is forgotten.
func (m *Monitor) SetServices(services []inventory.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(services))
	byID := make(map[string]inventory.Service, len(services))
	for _, s := range services {
		keep[s.ID] = true
		byID[s.ID] = s
	}

	for id := range m.byID {
		if keep[id] {
			continue
		}
		m.recoverer.Cancel(id)
		m.classifier.Forget(id)
		m.governor.Forget(id)
		metrics.ForgetService(id)
		delete(m.incidents, id)
		delete(m.downSince, id)
		delete(m.transitionTimes, id)
		delete(m.rateAlerted, id)
		delete(m.due, id)
		if err := m.store.DeleteServiceState(id); err != nil {
			log.Printf("Monitor: failed to drop state for removed service %s: %v", id, err)
		}
		log.Printf("Monitor: service %s removed from inventory", id)
	}

	m.services = services
	m.byID = byID
	m.graph = graph.Build(services)
	for _, s := range services {
		m.classifier.Record(s.ID) // new services start Checking
	}
}

// Run drives the tick loop until the context is cancelled, then drains
func (m *Monitor) Run(ctx context.Context) {
	granularity := m.cfg.ProbeInterval / 4
	if granularity < time.Second {
		granularity = time.Second
	}
	if granularity > m.cfg.ProbeInterval {
		granularity = m.cfg.ProbeInterval
	}

	ticker := time.NewTicker(granularity)
	defer ticker.Stop()

	m.tick(ctx, time.Now()) // first pass immediately, everything is due

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

func (m *Monitor) shutdown() {
	m.stopOnce.Do(func() {
		log.Println("Monitor: draining pending recovery attempts")
		if !m.recoverer.Drain(m.cfg.DrainTimeout) {
			log.Println("Monitor: drain timeout expired with attempts still running")
		}
		m.mu.Lock()
		for id := range m.byID {
			m.checkpoint(id, time.Now())
		}
		m.mu.Unlock()
		close(m.stopped)
	})
}

// Stopped is closed once shutdown completes
func (m *Monitor) Stopped() <-chan struct{} {
	return m.stopped
}

// tick probes every due service, classifies the whole batch, and reacts to
// the transitions it produced.
func (m *Monitor) tick(ctx context.Context, now time.Time) {
	m.mu.Lock()
	var batch []inventory.Service
	for _, svc := range m.services {
		if due, ok := m.due[svc.ID]; ok && now.Before(due) {
			continue
		}
		batch = append(batch, svc)
		m.due[svc.ID] = now.Add(m.interval(svc.ID))
	}
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	results := m.engine.RunTick(ctx, batch)

	m.mu.Lock()
	m.processResults(results, now)
	m.mu.Unlock()

	m.publish(m.Snapshot())
}

// interval is the probe cadence for one service. Down roots are probed at
// half the fleet interval: their recovery unblocks dependents.
// Callers hold m.mu.
func (m *Monitor) interval(serviceID string) time.Duration {
	base := m.cfg.ProbeInterval
	rec := m.classifier.Record(serviceID)
	if rec.State == status.StateDown && len(m.graph.Dependents(serviceID)) > 0 {
		boosted := base / 2
		if boosted < minBoostedInterval {
			boosted = minBoostedInterval
		}
		return boosted
	}
	return base
}

// processResults classifies a batch and handles every transition it caused.
// Callers hold m.mu. The batch is classified in full before any transition
// is acted on, so cascade attribution sees sibling failures from the same
// tick.
func (m *Monitor) processResults(results []probe.Result, now time.Time) {
	var transitions []status.Transition
	for _, res := range results {
		metrics.ObserveProbe(res.ServiceID, res.Success, res.Latency)
		tr, changed := m.classifier.Observe(res)
		metrics.ObserveState(res.ServiceID, string(m.classifier.Record(res.ServiceID).State))
		if !changed {
			continue
		}
		transitions = append(transitions, tr)
		metrics.ObserveTransition(tr.ServiceID, string(tr.To))
		m.recordTransitionTime(tr.ServiceID, tr.At)
		log.Printf("Monitor: %s %s -> %s (%s)", tr.ServiceID, tr.From, tr.To, res.Detail)
	}
	if len(transitions) == 0 {
		return
	}

	// Mark Down instants first so same-batch dependents can attribute to
	// their root regardless of batch order.
	for _, tr := range transitions {
		if tr.To == status.StateDown {
			m.downSince[tr.ServiceID] = tr.At
		}
	}

	for _, tr := range transitions {
		switch tr.To {
		case status.StateDown:
			m.handleDown(tr, now)
		case status.StateDegraded:
			m.handleDegraded(tr, now)
		case status.StateOperational:
			m.handleOperational(tr, now)
		}
		m.checkpoint(tr.ServiceID, now)
	}

	m.closeStableGroups(now)
}

func (m *Monitor) recordTransitionTime(serviceID string, at time.Time) {
	cutoff := at.Add(-m.cfg.FlapWindow)
	times := m.transitionTimes[serviceID]
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	m.transitionTimes[serviceID] = append(times[i:], at)
}

// isFlapping reports whether the service changed state too often recently.
// Flapping suppresses alert notifications, nothing else.
func (m *Monitor) isFlapping(serviceID string, now time.Time) bool {
	cutoff := now.Add(-m.cfg.FlapWindow)
	count := 0
	for _, at := range m.transitionTimes[serviceID] {
		if at.After(cutoff) {
			count++
		}
	}
	return count > m.cfg.FlapThreshold
}

func (m *Monitor) handleDown(tr status.Transition, now time.Time) {
	id := tr.ServiceID
	svc, known := m.byID[id]
	if !known {
		return
	}

	underMaintenance := m.maint.Active(id, now)
	if !underMaintenance {
		reason := fmt.Sprintf("%s is down: %s", svc.DisplayName(), tr.Result.Detail)
		m.raiseOrMerge(tr, reason, now)
	}

	// Recovery. Services without a remediation command (external targets)
	// are observed only.
	if !svc.HasRemediation() {
		return
	}
	if underMaintenance {
		m.recordSkip(svc, now, database.AttemptOutcomeSkippedMaintenance, "maintenance window active")
		return
	}

	settings, err := database.GetOrCreateMonitorSettings(m.store.DB())
	if err != nil {
		log.Printf("Monitor: failed to read settings: %v", err)
	} else if !settings.AutoRestartEnabled {
		log.Printf("Monitor: auto-restart disabled, not recovering %s", id)
		return
	}

	inc := m.incidents[id]
	if inc != nil && !inc.lastRecoveredAt.IsZero() && tr.At.Sub(inc.lastRecoveredAt) >= m.cfg.RecoveryCooldown {
		// Stayed healthy through the cooldown: this Down is a new incident.
		inc = nil
	}
	if inc == nil {
		inc = &incident{uuid: uuid.New().String()}
		m.incidents[id] = inc
		log.Printf("Monitor: incident %s opened for %s", inc.uuid, id)
	}
	if inc.escalated {
		return // manual intervention pending, no auto-retry
	}
	if inc.attempts >= recovery.MaxAttempts(svc, m.cfg.MaxRestartsDefault) {
		return
	}
	m.scheduleRecovery(svc, inc, now)
}

// handleDegraded alerts on a Degraded transition the same way handleDown
// does, minus the recovery half: degradation is observed, never remediated.
func (m *Monitor) handleDegraded(tr status.Transition, now time.Time) {
	id := tr.ServiceID
	svc, known := m.byID[id]
	if !known {
		return
	}
	if m.maint.Active(id, now) {
		return
	}
	reason := fmt.Sprintf("%s is degraded: %s", svc.DisplayName(), tr.Result.Detail)
	m.raiseOrMerge(tr, reason, now)
}

// raiseOrMerge routes an unhealthy transition into the aggregator. Attributed
// to a Down root within the correlation window, it merges into that root's
// group; otherwise it opens a group rooted at the service itself. Callers
// hold m.mu and have ruled out maintenance.
func (m *Monitor) raiseOrMerge(tr status.Transition, reason string, now time.Time) {
	id := tr.ServiceID
	rootID, attributed := m.graph.AttributeRoot(id, func(candidate string) bool {
		if m.classifier.Record(candidate).State != status.StateDown {
			return false
		}
		ds, ok := m.downSince[candidate]
		if !ok {
			return false
		}
		gap := tr.At.Sub(ds)
		if gap < 0 {
			gap = -gap
		}
		return gap <= m.cfg.CorrelationWindow
	})

	if attributed {
		// Transition order within a batch is arbitrary; the root's own
		// transition may not have opened the group yet.
		if m.aggregator.OpenGroup(rootID) == nil {
			root := m.byID[rootID]
			rootReason := fmt.Sprintf("%s is down", root.DisplayName())
			if _, err := m.aggregator.RaiseRoot(rootID, rootReason, m.isFlapping(rootID, now), now); err != nil {
				log.Printf("Monitor: failed to open alert group for root %s: %v", rootID, err)
			}
		}
		if err := m.aggregator.AddMember(rootID, id, now); err != nil {
			log.Printf("Monitor: failed to merge %s into group for %s: %v", id, rootID, err)
		}
		return
	}

	if _, err := m.aggregator.RaiseRoot(id, reason, m.isFlapping(id, now), now); err != nil {
		log.Printf("Monitor: failed to open alert group for %s: %v", id, err)
	}
}

func (m *Monitor) handleOperational(tr status.Transition, now time.Time) {
	id := tr.ServiceID
	m.recoverer.Cancel(id)
	delete(m.downSince, id)
	if inc := m.incidents[id]; inc != nil {
		inc.lastRecoveredAt = tr.At
	}
}

// scheduleRecovery re-checks maintenance, consults the governor, and queues
// the next backoff attempt. Callers hold m.mu and have verified the incident
// is live and under budget.
func (m *Monitor) scheduleRecovery(svc inventory.Service, inc *incident, now time.Time) {
	if m.maint.Active(svc.ID, now) {
		m.recordSkip(svc, now, database.AttemptOutcomeSkippedMaintenance, "maintenance window active")
		return
	}
	decision := m.governor.Consult(svc.ID, now)
	if !decision.Allowed {
		m.recordSkip(svc, now, database.AttemptOutcomeSkippedRateLimited, "restart rate cap reached")
		if decision.Alert {
			m.rateAlerted[svc.ID] = true
			m.aggregator.RateLimited(svc.ID, now)
		}
		return
	}
	m.rateAlerted[svc.ID] = false
	m.recoverer.Schedule(svc, inc.uuid, inc.attempts+1, now)
}

func (m *Monitor) recordSkip(svc inventory.Service, now time.Time, outcome database.AttemptOutcome, detail string) {
	inc := m.incidents[svc.ID]
	attemptIndex := 0
	incidentUUID := ""
	if inc != nil {
		attemptIndex = inc.attempts + 1
		incidentUUID = inc.uuid
	}
	err := m.store.RecordRestartAttempt(&database.RestartAttempt{
		ServiceID:    svc.ID,
		IncidentUUID: incidentUUID,
		AttemptIndex: attemptIndex,
		ScheduledAt:  now,
		Outcome:      outcome,
		Detail:       detail,
	})
	if err != nil {
		log.Printf("Monitor: failed to record skipped attempt for %s: %v", svc.ID, err)
	}
	metrics.RestartAttemptsTotal.WithLabelValues(svc.ID, string(outcome)).Inc()
}

// HandleOutcome is the recovery controller's callback: one fired backoff
// attempt has completed (or was skipped after a healthy pre-probe).
func (m *Monitor) HandleOutcome(o recovery.Outcome) {
	m.mu.Lock()
	id := o.Service.ID
	now := o.PostProbe.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	inc := m.incidents[id]
	if inc == nil || inc.uuid != o.IncidentUUID {
		m.mu.Unlock()
		return // stale timer from a previous incident
	}

	if o.Blocked {
		// A maintenance window opened after the timer was armed.
		m.recordSkip(o.Service, now, database.AttemptOutcomeSkippedMaintenance, "maintenance window active")
		m.checkpoint(id, now)
		m.mu.Unlock()
		m.publish(m.Snapshot())
		return
	}

	if !o.Skipped {
		m.governor.RecordAttempt(id, o.ExecutedAt)
		inc.attempts++

		outcome := database.AttemptOutcomeSuccess
		detail := o.CommandOutput
		if o.CommandErr != nil || !o.PostProbe.Success {
			outcome = database.AttemptOutcomeFailure
			if o.CommandErr != nil {
				detail = fmt.Sprintf("%v: %s", o.CommandErr, o.CommandOutput)
			}
		}
		executed := o.ExecutedAt
		err := m.store.RecordRestartAttempt(&database.RestartAttempt{
			ServiceID:    id,
			IncidentUUID: inc.uuid,
			AttemptIndex: inc.attempts,
			ScheduledAt:  o.ScheduledAt,
			ExecutedAt:   &executed,
			Outcome:      outcome,
			Detail:       detail,
		})
		if err != nil {
			log.Printf("Monitor: failed to record attempt for %s: %v", id, err)
		}
		metrics.RestartAttemptsTotal.WithLabelValues(id, string(outcome)).Inc()
	}

	// The out-of-band post-attempt probe is a real observation.
	m.processResults([]probe.Result{o.PostProbe}, now)

	if !o.PostProbe.Success {
		svc, known := m.byID[id]
		if known {
			max := recovery.MaxAttempts(svc, m.cfg.MaxRestartsDefault)
			if inc.attempts >= max {
				// Escalation is an alert; maintenance silences it too.
				if !inc.escalated && !m.maint.Active(id, now) {
					inc.escalated = true
					m.escalate(id, now)
				}
			} else if !inc.escalated {
				m.scheduleRecovery(svc, inc, now)
			}
		}
	}

	m.checkpoint(id, now)
	m.mu.Unlock()

	m.publish(m.Snapshot())
}

// AcknowledgeAlert records an operator acknowledgment. It goes through the
// monitor's mutex so it cannot race tick processing.
func (m *Monitor) AcknowledgeAlert(groupUUID, actor string) (*database.AlertGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregator.Acknowledge(groupUUID, actor, time.Now())
}

// escalate marks the group covering a service as needing manual attention.
// Callers hold m.mu.
func (m *Monitor) escalate(serviceID string, now time.Time) {
	reason := fmt.Sprintf("%s: automated recovery exhausted, manual intervention required", serviceID)
	rootID := serviceID
	if m.aggregator.OpenGroup(serviceID) == nil {
		if g := m.aggregator.OpenGroupFor(serviceID); g != nil {
			rootID = g.RootServiceID
		} else {
			if _, err := m.aggregator.RaiseRoot(serviceID, reason, m.isFlapping(serviceID, now), now); err != nil {
				log.Printf("Monitor: failed to open group for escalation of %s: %v", serviceID, err)
				return
			}
		}
	}
	if err := m.aggregator.Escalate(rootID, reason, now); err != nil {
		log.Printf("Monitor: failed to escalate %s: %v", serviceID, err)
	}
}

// closeStableGroups archives groups whose root recovered and whose members
// all re-stabilized. Callers hold m.mu.
func (m *Monitor) closeStableGroups(now time.Time) {
	stable := func(serviceID string) bool {
		return m.classifier.Record(serviceID).State == status.StateOperational
	}
	for _, g := range m.aggregator.OpenGroups() {
		if !stable(g.RootServiceID) {
			continue
		}
		// The incident is not cleared here: its attempt counter only resets
		// once the service holds Operational through the recovery cooldown.
		if _, err := m.aggregator.MaybeClose(g.RootServiceID, stable, now); err != nil {
			log.Printf("Monitor: failed to close group %s: %v", g.UUID, err)
		}
	}
	metrics.OpenAlertGroups.Set(float64(len(m.aggregator.OpenGroups())))
}

// checkpoint persists the durable record for one service. Callers hold m.mu.
func (m *Monitor) checkpoint(serviceID string, now time.Time) {
	rec := m.classifier.Record(serviceID)

	state := &database.ServiceState{
		ServiceID:            serviceID,
		State:                string(rec.State),
		ConsecutiveFailures:  rec.ConsecutiveFailures,
		ConsecutiveSuccesses: rec.ConsecutiveSuccesses,
		LastDetail:           rec.LastDetail,
		RestartWindow:        database.TimeList(m.governor.Window(serviceID, now)),
		RateLimitAlerted:     m.rateAlerted[serviceID],
	}
	if !rec.LastTransition.IsZero() {
		t := rec.LastTransition
		state.LastTransition = &t
	}
	for _, d := range rec.Latencies() {
		state.LatenciesMs = append(state.LatenciesMs, d.Milliseconds())
	}
	if inc := m.incidents[serviceID]; inc != nil {
		state.IncidentUUID = inc.uuid
		state.IncidentAttempts = inc.attempts
		state.IncidentEscalated = inc.escalated
		if !inc.lastRecoveredAt.IsZero() {
			t := inc.lastRecoveredAt
			state.LastRecoveredAt = &t
		}
	}
	if err := m.store.SaveServiceState(state); err != nil {
		log.Printf("Monitor: failed to checkpoint %s: %v", serviceID, err)
	}
}
