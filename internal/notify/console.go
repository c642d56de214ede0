package notify

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"

	"fsentry/internal/snapshot"
)

// Console renders change events to a terminal with one color per event
// kind: green for added, yellow for modified, red for deleted.
type Console struct {
	w        io.Writer
	added    *color.Color
	modified *color.Color
	deleted  *color.Color
	degraded *color.Color
}

// NewConsole creates a console notifier writing to w. A nil writer
// defaults to stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{
		w:        w,
		added:    color.New(color.FgGreen),
		modified: color.New(color.FgYellow),
		deleted:  color.New(color.FgRed),
		degraded: color.New(color.FgRed, color.Bold),
	}
}

// FileAdded implements Notifier
func (c *Console) FileAdded(_ context.Context, event snapshot.ChangeEvent) error {
	_, err := c.added.Fprintf(c.w, "New file detected: %s\n", event.Path)
	return err
}

// FileModified implements Notifier
func (c *Console) FileModified(_ context.Context, event snapshot.ChangeEvent) error {
	_, err := c.modified.Fprintf(c.w, "File changed: %s (%s -> %s)\n",
		event.Path, event.OldDigest, event.NewDigest)
	return err
}

// FileDeleted implements Notifier
func (c *Console) FileDeleted(_ context.Context, event snapshot.ChangeEvent) error {
	_, err := c.deleted.Fprintf(c.w, "File deleted: %s\n", event.Path)
	return err
}

// MonitoringDegraded implements Notifier
func (c *Console) MonitoringDegraded(_ context.Context, cause error) error {
	_, err := c.degraded.Fprintf(c.w, "Monitoring degraded: %v\n", cause)
	return err
}
