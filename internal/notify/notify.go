// Package notify delivers change events to the outside world.
//
// The monitor core only depends on the Notifier interface; console
// rendering and email transport live behind it so detection logic can
// be tested without a terminal or a network.
package notify

import (
	"context"
	"fmt"

	"fsentry/internal/logging"
	"fsentry/internal/snapshot"
)

var logger = logging.GetLogger().WithPrefix("notify")

// Notifier receives one call per detected change plus a degraded signal
// when a whole scan cycle fails. Implementations must tolerate being
// called with an already-expired context.
type Notifier interface {
	FileAdded(ctx context.Context, event snapshot.ChangeEvent) error
	FileModified(ctx context.Context, event snapshot.ChangeEvent) error
	FileDeleted(ctx context.Context, event snapshot.ChangeEvent) error
	MonitoringDegraded(ctx context.Context, cause error) error
}

// CycleFlusher is implemented by notifiers that batch events per scan
// cycle. The monitor calls FlushCycle once after dispatching a cycle's
// events.
type CycleFlusher interface {
	FlushCycle(ctx context.Context) error
}

// Dispatch routes an event to the method matching its operation
func Dispatch(ctx context.Context, n Notifier, event snapshot.ChangeEvent) error {
	switch event.Op {
	case snapshot.OpAdded:
		return n.FileAdded(ctx, event)
	case snapshot.OpModified:
		return n.FileModified(ctx, event)
	case snapshot.OpDeleted:
		return n.FileDeleted(ctx, event)
	default:
		return fmt.Errorf("unknown change op %v for %s", event.Op, event.Path)
	}
}

// Multi fans events out to several notifiers. One collaborator failing
// does not stop delivery to the others; the last error is returned.
type Multi []Notifier

// FileAdded implements Notifier
func (m Multi) FileAdded(ctx context.Context, event snapshot.ChangeEvent) error {
	return m.each(func(n Notifier) error { return n.FileAdded(ctx, event) })
}

// FileModified implements Notifier
func (m Multi) FileModified(ctx context.Context, event snapshot.ChangeEvent) error {
	return m.each(func(n Notifier) error { return n.FileModified(ctx, event) })
}

// FileDeleted implements Notifier
func (m Multi) FileDeleted(ctx context.Context, event snapshot.ChangeEvent) error {
	return m.each(func(n Notifier) error { return n.FileDeleted(ctx, event) })
}

// MonitoringDegraded implements Notifier
func (m Multi) MonitoringDegraded(ctx context.Context, cause error) error {
	return m.each(func(n Notifier) error { return n.MonitoringDegraded(ctx, cause) })
}

// FlushCycle flushes every member that batches per cycle
func (m Multi) FlushCycle(ctx context.Context) error {
	return m.each(func(n Notifier) error {
		if f, ok := n.(CycleFlusher); ok {
			return f.FlushCycle(ctx)
		}
		return nil
	})
}

func (m Multi) each(fn func(Notifier) error) error {
	var last error
	for _, n := range m {
		if err := fn(n); err != nil {
			logger.Warn("Notifier %T failed: %v", n, err)
			last = err
		}
	}
	return last
}
