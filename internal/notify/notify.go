// Package notify turns terminal booking outcomes into email notifications.
// Delivery is strictly best-effort: a lost email never alters the booking
// result already produced.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/court-scheduler/internal/booking"
)

// Mailer is the external mail collaborator.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Dispatcher struct {
	mailer Mailer
	log    *slog.Logger
}

func NewDispatcher(mailer Mailer, log *slog.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, log: log}
}

// Notify renders and delivers the outcome. An empty address is a logged
// no-op; delivery failures are logged and swallowed.
func (d *Dispatcher) Notify(ctx context.Context, address string, intent booking.Intent, outcome booking.Outcome) {
	if strings.TrimSpace(address) == "" {
		d.log.Info("no notification address on task, skipping email", "task_id", intent.ID)
		return
	}

	subject, body := Render(intent, outcome)
	if err := d.mailer.Send(ctx, address, subject, body); err != nil {
		d.log.Warn("notification delivery failed",
			"task_id", intent.ID, "address", address, "error", err)
		return
	}
	d.log.Info("notification sent", "task_id", intent.ID, "address", address, "subject", subject)
}

// Render builds the subject/body pair for a terminal outcome.
func Render(intent booking.Intent, outcome booking.Outcome) (subject, body string) {
	details := slotDetails(intent.Slots)

	switch outcome.Kind {
	case booking.OutcomeSuccess:
		subject = "Court booking succeeded"
		body = fmt.Sprintf("Your court booking for %s was confirmed.\n\n%s\nOrder number: %s\n",
			intent.TargetDate.Format("2006-01-02"), details, outcome.Confirmation)
	case booking.OutcomeFailure:
		subject = "Court booking failed"
		body = fmt.Sprintf("Your court booking for %s failed: %s (error code %d).\n\n%s",
			intent.TargetDate.Format("2006-01-02"), outcome.Message, outcome.Code, details)
	default:
		// conflicts and transport errors only surface here through the
		// aggregate timeout; report the window expiry, not a raw attempt
		subject = "Court booking failed"
		body = fmt.Sprintf("Your court booking for %s did not succeed within the time limit.\n\n%s",
			intent.TargetDate.Format("2006-01-02"), details)
	}
	return subject, body
}

func slotDetails(slots []booking.SlotSelection) string {
	var b strings.Builder
	b.WriteString("Requested slots:\n")
	for _, s := range slots {
		label := s.Label
		if label == "" {
			label = s.ResourceID
		}
		fmt.Fprintf(&b, "  - %s %s-%s (%s)\n", label, s.StartTime, s.EndTime, s.ResourceID)
	}
	return b.String()
}
