// Package executor runs the bounded retry loop for a fired booking intent.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/venue"
)

// Allocation races at a contested court resolve within seconds as competing
// clients finish, so attempts are retried inside a short fixed window rather
// than indefinitely.
const (
	DefaultWindow = 10 * time.Second
	DefaultDelay  = 3750 * time.Millisecond
)

// AllocationClient is the remote allocation call the loop retries.
type AllocationClient interface {
	Order(ctx context.Context, slots []booking.SlotSelection, dayOffset int) (venue.OrderResult, error)
}

type Executor struct {
	client AllocationClient
	log    *slog.Logger

	// Window is the wall-clock budget for the whole attempt sequence. It is a
	// soft deadline: an in-flight call may finish past it, but no new attempt
	// starts after it.
	Window time.Duration

	// NewBackOff builds the inter-attempt delay policy for one execution.
	NewBackOff func() backoff.BackOff
}

func New(client AllocationClient, log *slog.Logger) *Executor {
	return &Executor{
		client: client,
		log:    log,
		Window: DefaultWindow,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(DefaultDelay)
		},
	}
}

// Execute attempts the allocation until success, a venue-declared terminal
// failure, or window expiry. It never returns an error: every attempt-level
// failure is absorbed into the returned outcome.
func (e *Executor) Execute(ctx context.Context, intent booking.Intent) booking.Outcome {
	log := e.log.With("task_id", intent.ID, "execution_id", uuid.NewString())

	now := time.Now()
	dayOffset := booking.DayOffset(intent.TargetDate, now)
	if dayOffset < 0 {
		// the venue owns date-range validation; send it anyway
		log.Warn("target date is in the past", "day_offset", dayOffset)
	}

	windowEnd := now.Add(e.Window)
	delay := e.NewBackOff()

	var last booking.Outcome
	attempt := 0
	for time.Now().Before(windowEnd) {
		attempt++

		res, err := e.client.Order(ctx, intent.Slots, dayOffset)
		if err != nil {
			last = booking.Outcome{Kind: booking.OutcomeTransportError, Message: err.Error()}
			log.Warn("allocation call failed", "attempt", attempt, "error", err)
		} else {
			switch {
			case res.Type == venue.TypeSuccess && res.ErrorCode == 0:
				log.Info("booking confirmed", "attempt", attempt, "order_id", res.Confirmation())
				return booking.Outcome{
					Kind:         booking.OutcomeSuccess,
					Confirmation: res.Confirmation(),
					Message:      res.Message,
					Attempts:     attempt,
				}
			case res.Type == venue.TypeConflict && res.ErrorCode == 0:
				last = booking.Outcome{Kind: booking.OutcomeConflict, Message: res.Message}
				log.Warn("allocation conflict, retrying", "attempt", attempt, "message", res.Message)
			default:
				// definitive failure; retrying cannot change it
				log.Error("booking rejected", "attempt", attempt,
					"message", res.Message, "error_code", res.ErrorCode, "type", res.Type)
				return booking.Outcome{
					Kind:     booking.OutcomeFailure,
					Message:  res.Message,
					Code:     res.ErrorCode,
					Attempts: attempt,
				}
			}
		}

		d := delay.NextBackOff()
		if d == backoff.Stop {
			break
		}
		// no attempt can start once the window closes; sleeping past it
		// would only hold the worker
		if !time.Now().Add(d).Before(windowEnd) {
			break
		}
		if !sleep(ctx, d) {
			break
		}
	}

	// No single attempt's transient message represents the aggregate truth,
	// so window expiry reports the generic timeout outcome.
	log.Warn("retry window expired without success",
		"attempts", attempt, "last_kind", last.Kind.String(), "last_message", last.Message)
	return booking.Outcome{
		Kind:     booking.OutcomeTimeout,
		Message:  "the booking did not succeed within the time limit",
		Attempts: attempt,
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
