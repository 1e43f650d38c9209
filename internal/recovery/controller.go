package recovery

import (
	"context"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/satomon/sato/internal/inventory"
	"github.com/satomon/sato/internal/probe"
)

// Prober re-checks a single service out of band, between ticks
type Prober interface {
	CheckOne(ctx context.Context, svc inventory.Service) probe.Result
}

// Runner invokes a remediation command and returns its combined output.
// Injectable so tests never shell out.
type Runner func(ctx context.Context, command string) (string, error)

// Gate is consulted when a timer fires, before anything runs. It reports
// whether the attempt may still proceed; the monitor uses it to honor
// maintenance windows that opened after the timer was armed.
type Gate func(svc inventory.Service, at time.Time) bool

func execRunner(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	return string(out), err
}

// Attempt identifies one scheduled remediation try within an incident
type Attempt struct {
	Service      inventory.Service
	IncidentUUID string
	Index        int // 1-based within the incident
	ScheduledAt  time.Time
}

// Outcome is what a fired attempt reports back. Skipped means the pre-command
// probe already found the service healthy, so no command was issued. Blocked
// means the gate vetoed the fired attempt; neither command nor probe ran.
type Outcome struct {
	Attempt
	ExecutedAt    time.Time
	Skipped       bool
	Blocked       bool
	CommandOutput string
	CommandErr    error
	PostProbe     probe.Result
}

// Succeeded reports whether the service answered its post-attempt probe
func (o Outcome) Succeeded() bool {
	return o.Skipped || o.PostProbe.Success
}

type pendingAttempt struct {
	cancel chan struct{}
}

// Controller owns the backoff timers. Each scheduled attempt is a goroutine
// waiting on its stage delay; firing re-probes the service first and only
// issues the command if the service is still failing. An Operational
// observation between ticks cancels the pending timer via Cancel.
//
// The controller decides nothing about budgets, rate limits, or maintenance;
// the monitor consults those before calling Schedule and reacts to Outcomes.
type Controller struct {
	prober         Prober
	run            Runner
	gate           Gate
	backoffStages  []time.Duration
	commandTimeout time.Duration
	onOutcome      func(Outcome)

	mu      sync.Mutex
	pending map[string]*pendingAttempt
	wg      sync.WaitGroup
}

// NewController builds a controller. onOutcome is invoked from the attempt
// goroutine once per fired attempt; it must be safe to call concurrently.
func NewController(prober Prober, backoffStages []time.Duration, commandTimeout time.Duration, onOutcome func(Outcome)) *Controller {
	return &Controller{
		prober:         prober,
		run:            execRunner,
		backoffStages:  backoffStages,
		commandTimeout: commandTimeout,
		onOutcome:      onOutcome,
		pending:        make(map[string]*pendingAttempt),
	}
}

// SetRunner replaces the command runner (tests)
func (c *Controller) SetRunner(run Runner) {
	c.run = run
}

// SetGate installs the fire-time veto
func (c *Controller) SetGate(gate Gate) {
	c.gate = gate
}

// Delay returns the backoff stage for a 1-based attempt index, clamped to the
// last configured stage.
func (c *Controller) Delay(index int) time.Duration {
	if len(c.backoffStages) == 0 {
		return 0
	}
	if index < 1 {
		index = 1
	}
	if index > len(c.backoffStages) {
		index = len(c.backoffStages)
	}
	return c.backoffStages[index-1]
}

// MaxAttempts resolves the per-incident attempt budget for a service
func MaxAttempts(svc inventory.Service, defaultMax int) int {
	if svc.MaxRestartAttempts > 0 {
		return svc.MaxRestartAttempts
	}
	return defaultMax
}

// Schedule queues attempt number index for the service after its backoff
// stage. A pending attempt for the same service is replaced.
func (c *Controller) Schedule(svc inventory.Service, incidentUUID string, index int, now time.Time) {
	c.mu.Lock()
	if prev, ok := c.pending[svc.ID]; ok {
		close(prev.cancel)
	}
	p := &pendingAttempt{cancel: make(chan struct{})}
	c.pending[svc.ID] = p
	c.mu.Unlock()

	delay := c.Delay(index)
	attempt := Attempt{Service: svc, IncidentUUID: incidentUUID, Index: index, ScheduledAt: now}
	log.Printf("Recovery: scheduling attempt %d for %s in %s (incident %s)", index, svc.ID, delay, incidentUUID)

	c.wg.Add(1)
	go c.waitAndFire(attempt, delay, p)
}

// Cancel drops any pending attempt for a service. Called when the service is
// observed healthy again before its timer fires.
func (c *Controller) Cancel(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[serviceID]; ok {
		close(p.cancel)
		delete(c.pending, serviceID)
		log.Printf("Recovery: cancelled pending attempt for %s", serviceID)
	}
}

// Pending reports whether the service has a queued attempt
func (c *Controller) Pending(serviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[serviceID]
	return ok
}

// Drain cancels queued timers and waits for in-flight attempts to finish.
// An attempt past its timer runs to completion so no command is left
// half-issued. Returns false if the timeout expired first.
func (c *Controller) Drain(timeout time.Duration) bool {
	c.mu.Lock()
	for id, p := range c.pending {
		close(p.cancel)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (c *Controller) waitAndFire(attempt Attempt, delay time.Duration, p *pendingAttempt) {
	defer c.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-p.cancel:
		return
	case <-timer.C:
	}

	// Claim the slot. A concurrent Cancel or replacement Schedule wins.
	c.mu.Lock()
	if c.pending[attempt.Service.ID] != p {
		c.mu.Unlock()
		return
	}
	delete(c.pending, attempt.Service.ID)
	c.mu.Unlock()

	c.onOutcome(c.fire(attempt))
}

func (c *Controller) fire(attempt Attempt) Outcome {
	svc := attempt.Service
	out := Outcome{Attempt: attempt, ExecutedAt: time.Now()}

	if c.gate != nil && !c.gate(svc, out.ExecutedAt) {
		out.Blocked = true
		log.Printf("Recovery: attempt %d for %s vetoed at fire time, command not issued", attempt.Index, svc.ID)
		return out
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.commandTimeout)
	defer cancel()

	// Re-probe before issuing the command; the service may have recovered
	// on its own since the transition.
	pre := c.prober.CheckOne(ctx, svc)
	if pre.Success {
		out.Skipped = true
		out.PostProbe = pre
		log.Printf("Recovery: %s healthy on pre-attempt probe, skipping attempt %d", svc.ID, attempt.Index)
		return out
	}

	log.Printf("Recovery: attempt %d for %s: %s", attempt.Index, svc.ID, svc.RestartCommand)
	output, err := c.run(ctx, svc.RestartCommand)
	out.CommandOutput = output
	out.CommandErr = err
	if err != nil {
		log.Printf("Recovery: command for %s failed: %v", svc.ID, err)
	}

	// A slow command can exhaust the whole budget; the verification probe
	// gets its own timeout so it never inherits an expired context.
	postCtx, postCancel := context.WithTimeout(context.Background(), c.commandTimeout)
	defer postCancel()
	out.PostProbe = c.prober.CheckOne(postCtx, svc)
	return out
}
