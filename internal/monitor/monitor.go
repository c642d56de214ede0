// Package monitor drives the periodic scan-diff-save cycle.
package monitor

import (
	"context"
	"time"

	"fsentry/internal/logging"
	"fsentry/internal/notify"
	"fsentry/internal/snapshot"
	"fsentry/internal/state"
)

var logger = logging.GetLogger().WithPrefix("monitor")

// State identifies where the monitor is in its lifecycle
type State int

const (
	// StateInitializing covers state load and baseline establishment
	StateInitializing State = iota
	// StateIdle is the wait between scan cycles
	StateIdle
	// StateScanning is an in-flight build+diff+save cycle
	StateScanning
	// StateStopped is terminal, reached on cancellation
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleStats summarizes one completed scan cycle for observers
type CycleStats struct {
	State        string    `json:"state"`
	LastScan     time.Time `json:"last_scan"`
	FilesTracked int       `json:"files_tracked"`
	LastEvents   int       `json:"last_events"`
	Degraded     bool      `json:"degraded"`
	LastError    string    `json:"last_error,omitempty"`
}

// StatusSink receives cycle stats. Implementations must not block.
type StatusSink interface {
	RecordCycle(stats CycleStats)
}

// defaultNotifyTimeout bounds how long one cycle may spend inside the
// notifier. A stuck notifier delays that cycle's save but can never
// stall monitoring indefinitely.
const defaultNotifyTimeout = 30 * time.Second

// Monitor owns the scan loop. Exactly one cycle is in flight at a time;
// each cycle builds a fresh snapshot, diffs it against the last
// persisted one, forwards events to the notifier, and saves the new
// snapshot. Cancellation is observed between cycles and during the idle
// wait; an in-flight cycle always runs to completion so the state file
// is never abandoned half-written.
type Monitor struct {
	builder       *snapshot.Builder
	store         *state.Manager
	notifier      notify.Notifier
	interval      time.Duration
	notifyTimeout time.Duration
	sink          StatusSink

	current   snapshot.Snapshot
	baselined bool
	st        State
	stats     CycleStats
}

// New creates a monitor. The sink may be nil.
func New(builder *snapshot.Builder, store *state.Manager, notifier notify.Notifier, interval time.Duration, sink StatusSink) *Monitor {
	return &Monitor{
		builder:       builder,
		store:         store,
		notifier:      notifier,
		interval:      interval,
		notifyTimeout: defaultNotifyTimeout,
		sink:          sink,
		st:            StateInitializing,
	}
}

// SetNotifyTimeout overrides the per-cycle notifier deadline
func (m *Monitor) SetNotifyTimeout(d time.Duration) {
	if d > 0 {
		m.notifyTimeout = d
	}
}

// Run executes the monitor loop until ctx is cancelled. It returns nil
// on a clean stop; per-cycle failures are reported through the notifier
// and retried on the next interval, never returned.
func (m *Monitor) Run(ctx context.Context) error {
	m.initialize(ctx)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		m.setState(StateIdle)
		select {
		case <-ctx.Done():
			m.setState(StateStopped)
			m.record(StateStopped, m.stats)
			logger.Info("Monitoring stopped")
			return nil
		case <-timer.C:
		}

		m.setState(StateScanning)
		m.scan(ctx)

		timer.Reset(m.interval)
	}
}

// initialize loads persisted state and, on first run, establishes the
// baseline snapshot without emitting events.
func (m *Monitor) initialize(ctx context.Context) {
	logger.Info("Initializing monitor")

	snap, err := m.store.LoadWithFallback()
	if err != nil {
		// LoadWithFallback absorbs corruption itself; anything else is
		// a transient read failure handled like an empty state.
		logger.Warn("State load failed, starting from empty state: %v", err)
		snap = snapshot.Snapshot{}
	}

	if len(snap) > 0 {
		m.current = snap
		m.baselined = true
		logger.Info("Resuming with persisted state (%d files)", len(snap))
		return
	}

	// First run: scan once and persist the result as the baseline.
	// Reporting every existing file as added would be noise.
	built, err := m.builder.Build()
	if err != nil {
		logger.Error("Baseline scan failed, will retry next interval: %v", err)
		m.reportDegraded(ctx, err)
		return
	}
	if err := m.store.Save(built); err != nil {
		logger.Error("Baseline save failed, will retry next interval: %v", err)
		m.reportDegraded(ctx, err)
		return
	}

	m.current = built
	m.baselined = true
	m.record(StateIdle, CycleStats{LastScan: time.Now(), FilesTracked: len(built)})
	logger.Info("Baseline established (%d files)", len(built))
}

// scan runs one build+diff+notify+save cycle
func (m *Monitor) scan(ctx context.Context) {
	built, err := m.builder.Build()
	if err != nil {
		logger.Error("Scan failed: %v", err)
		m.reportDegraded(ctx, err)
		return
	}

	if !m.baselined {
		// A degraded start recovered; this scan becomes the baseline
		if err := m.store.Save(built); err != nil {
			logger.Error("Baseline save failed: %v", err)
			m.reportDegraded(ctx, err)
			return
		}
		m.current = built
		m.baselined = true
		m.record(StateIdle, CycleStats{LastScan: time.Now(), FilesTracked: len(built)})
		logger.Info("Baseline established (%d files)", len(built))
		return
	}

	now := time.Now()
	events := snapshot.Diff(m.current, built, now)
	logger.Debug("Scan complete: %d files, %d events", len(built), len(events))

	if len(events) > 0 {
		m.dispatch(ctx, events)

		if err := m.store.Save(built); err != nil {
			// Keep the old snapshot as "last persisted" so the same
			// diff is retried next cycle rather than silently dropped.
			logger.Error("State save failed, retrying diff next cycle: %v", err)
			m.reportDegraded(ctx, err)
			return
		}
	}

	m.current = built
	m.record(StateIdle, CycleStats{
		LastScan:     now,
		FilesTracked: len(built),
		LastEvents:   len(events),
	})
}

// dispatch forwards each event to the notifier, at most once per event
// per cycle, under a deadline so a stuck notifier cannot stall the loop
// forever.
func (m *Monitor) dispatch(ctx context.Context, events []snapshot.ChangeEvent) {
	nctx, cancel := context.WithTimeout(ctx, m.notifyTimeout)
	defer cancel()

	for _, event := range events {
		logger.Info("%s", event)
		if err := notify.Dispatch(nctx, m.notifier, event); err != nil {
			logger.Warn("Notify failed for %s: %v", event.Path, err)
		}
	}

	if f, ok := m.notifier.(notify.CycleFlusher); ok {
		if err := f.FlushCycle(nctx); err != nil {
			logger.Warn("Notifier flush failed: %v", err)
		}
	}
}

// reportDegraded tells the notifier monitoring is degraded this cycle
func (m *Monitor) reportDegraded(ctx context.Context, cause error) {
	nctx, cancel := context.WithTimeout(ctx, m.notifyTimeout)
	defer cancel()

	if err := m.notifier.MonitoringDegraded(nctx, cause); err != nil {
		logger.Warn("Degraded notification failed: %v", err)
	}
	m.record(StateIdle, CycleStats{
		LastScan:     time.Now(),
		FilesTracked: len(m.current),
		Degraded:     true,
		LastError:    cause.Error(),
	})
}

func (m *Monitor) setState(s State) {
	if m.st != s {
		logger.Debug("State transition: %s -> %s", m.st, s)
		m.st = s
	}
}

// record publishes cycle stats stamped with the state the monitor
// settles into once the cycle is over, so observers never see a
// transient "scanning" frozen between cycles.
func (m *Monitor) record(settled State, stats CycleStats) {
	stats.State = settled.String()
	m.stats = stats
	if m.sink != nil {
		m.sink.RecordCycle(stats)
	}
}
