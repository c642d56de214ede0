package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fsentry/internal/snapshot"
)

// EmailPolicy selects how change events map onto messages
type EmailPolicy string

const (
	// PolicyBatch sends one message per scan cycle covering all of that
	// cycle's events. This is the default.
	PolicyBatch EmailPolicy = "batch"
	// PolicyPerEvent sends one message per change event
	PolicyPerEvent EmailPolicy = "per-event"
)

// EmailConfig carries the SMTP settings for alert delivery
type EmailConfig struct {
	Sender   string
	Password string
	Receiver string
	Host     string
	Port     int
	Policy   EmailPolicy
}

// Addr returns the host:port dial address
func (c EmailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends alert messages over SMTP. Sends are rate limited so a
// burst of changes cannot flood the mail server, and batched per cycle
// under the default policy.
type Email struct {
	cfg     EmailConfig
	limiter *rate.Limiter
	send    sendFunc

	mu      sync.Mutex
	pending []snapshot.ChangeEvent
}

// NewEmail creates an email notifier. Sends are limited to one message
// per ten seconds with a small burst allowance.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.Policy == "" {
		cfg.Policy = PolicyBatch
	}
	return &Email{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 3),
		send:    smtp.SendMail,
	}
}

// FileAdded implements Notifier
func (e *Email) FileAdded(ctx context.Context, event snapshot.ChangeEvent) error {
	return e.record(ctx, event)
}

// FileModified implements Notifier
func (e *Email) FileModified(ctx context.Context, event snapshot.ChangeEvent) error {
	return e.record(ctx, event)
}

// FileDeleted implements Notifier
func (e *Email) FileDeleted(ctx context.Context, event snapshot.ChangeEvent) error {
	return e.record(ctx, event)
}

// MonitoringDegraded implements Notifier. Degradation is always sent
// immediately regardless of policy.
func (e *Email) MonitoringDegraded(ctx context.Context, cause error) error {
	subject := "File Integrity Alert: monitoring degraded"
	body := fmt.Sprintf("Monitoring is degraded and will retry next interval.\n\nCause: %v\nTime: %s\n",
		cause, time.Now().Format(time.RFC1123))
	return e.deliver(ctx, subject, body)
}

// FlushCycle implements CycleFlusher, sending the batched message for
// the cycle that just finished.
func (e *Email) FlushCycle(ctx context.Context) error {
	e.mu.Lock()
	events := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	subject := fmt.Sprintf("File Integrity Alert: %d change(s) detected", len(events))
	var b strings.Builder
	b.WriteString("File integrity events detected:\n\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "  %-8s %s  (%s)\n", strings.ToUpper(ev.Op.String()), ev.Path,
			ev.Time.Format(time.RFC1123))
	}
	return e.deliver(ctx, subject, b.String())
}

// record queues or sends one event depending on policy
func (e *Email) record(ctx context.Context, event snapshot.ChangeEvent) error {
	if e.cfg.Policy == PolicyPerEvent {
		subject := fmt.Sprintf("File Integrity Alert: %s", event.Op)
		body := fmt.Sprintf("File: %s\nChange Type: %s\nTime: %s\n",
			event.Path, event.Op, event.Time.Format(time.RFC1123))
		return e.deliver(ctx, subject, body)
	}

	e.mu.Lock()
	e.pending = append(e.pending, event)
	e.mu.Unlock()
	return nil
}

// deliver waits for rate-limit headroom and sends one message
func (e *Email) deliver(ctx context.Context, subject, body string) error {
	if e.cfg.Sender == "" || e.cfg.Password == "" || e.cfg.Receiver == "" {
		logger.Warn("Email credentials not set, skipping email alert")
		return nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.cfg.Sender, e.cfg.Receiver, subject, body)
	auth := smtp.PlainAuth("", e.cfg.Sender, e.cfg.Password, e.cfg.Host)

	if err := e.send(e.cfg.Addr(), auth, e.cfg.Sender, []string{e.cfg.Receiver}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email alert: %w", err)
	}

	logger.Info("Email alert sent: %s", subject)
	return nil
}
