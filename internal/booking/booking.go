package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation marks an intent rejected at submission time.
var ErrValidation = errors.New("invalid booking intent")

// SlotSelection is one court/time slot the user wants, as the venue lists it.
// Times are venue-local "HH:MM" strings; Price is the venue's decimal string.
type SlotSelection struct {
	ResourceID     string `json:"resourceId"`
	ResourceTypeID string `json:"resourceTypeId"`
	Label          string `json:"resourceLabel"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	Price          string `json:"price"`
}

// Intent is a declared desire to book a set of slots for TargetDate,
// executed at TriggerAt. Slots are immutable once submitted.
type Intent struct {
	ID            string
	Name          string
	Slots         []SlotSelection
	TargetDate    time.Time // calendar date the booking is for
	TriggerAt     time.Time // wall-clock instant the first attempt fires
	NotifyAddress string    // empty means no notification
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (i Intent) Validate() error {
	if len(i.Slots) == 0 {
		return fmt.Errorf("%w: at least one slot required", ErrValidation)
	}
	for n, s := range i.Slots {
		if s.ResourceID == "" {
			return fmt.Errorf("%w: slot %d: resource id required", ErrValidation, n)
		}
		if _, err := time.Parse("15:04", s.StartTime); err != nil {
			return fmt.Errorf("%w: slot %d: start time must be HH:MM", ErrValidation, n)
		}
		if _, err := time.Parse("15:04", s.EndTime); err != nil {
			return fmt.Errorf("%w: slot %d: end time must be HH:MM", ErrValidation, n)
		}
	}
	if i.TargetDate.IsZero() {
		return fmt.Errorf("%w: target date required", ErrValidation)
	}
	if i.TriggerAt.IsZero() {
		return fmt.Errorf("%w: trigger time required", ErrValidation)
	}
	return nil
}

// DisplayName is the human label used in listings and notifications when the
// caller did not name the task.
func (i Intent) DisplayName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	return fmt.Sprintf("Court booking %s %s",
		i.TargetDate.Format("2006-01-02"), i.TriggerAt.Format("15:04"))
}

// DayOffset is the calendar-day distance from now to the target date, the
// venue API's dateadd parameter. May be negative; the remote side owns
// date-range validation.
func DayOffset(target, now time.Time) int {
	t := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(n) / (24 * time.Hour))
}
