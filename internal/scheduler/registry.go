package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/example/court-scheduler/internal/booking"
)

// TaskSummary is one row of a pending-task listing.
type TaskSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TriggerAt time.Time `json:"triggerAt"`
}

type entry struct {
	gen    uint64 // distinguishes re-arms sharing an id
	intent booking.Intent
	status booking.Status
	timer  *time.Timer // nil once fired or for immediate runs
}

// registry is the bookkeeping map behind listing and cancellation. It is
// mutated from the submit path and from workers finishing a run, so every
// access goes through its mutex. It is not the source of truth for whether a
// booking happened; the venue is.
type registry struct {
	mu      sync.Mutex
	nextGen uint64
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// replace installs a new entry for id, stopping any displaced pending arm.
// An entry already running is left untouched and reported instead, so the
// same id never has two active executions.
func (r *registry) replace(id string, intent booking.Intent, status booking.Status) (gen uint64, displaced, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[id]; ok {
		if old.status == booking.StatusRunning {
			return 0, false, true
		}
		if old.timer != nil {
			old.timer.Stop()
		}
		displaced = true
	}
	r.nextGen++
	r.entries[id] = &entry{gen: r.nextGen, intent: intent, status: status}
	return r.nextGen, displaced, false
}

// arm attaches the one-shot timer under the lock, so a concurrent Cancel
// never observes a half-written entry. A no-op if the arm was displaced or
// cancelled in the meantime.
func (r *registry) arm(id string, gen uint64, d time.Duration, fire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen || e.status != booking.StatusPending {
		return
	}
	e.timer = time.AfterFunc(d, fire)
}

// markRunning transitions a pending entry to running and detaches its timer.
// Returns false if the entry is gone or already fired, which makes firing
// idempotent against cancellation races.
func (r *registry) markRunning(id string, gen uint64) (booking.Intent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen || e.status != booking.StatusPending {
		return booking.Intent{}, false
	}
	e.status = booking.StatusRunning
	e.timer = nil
	return e.intent, true
}

// removePending removes a still-pending entry, stopping its timer. Running
// and unknown entries are left alone.
func (r *registry) removePending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.status != booking.StatusPending {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.entries, id)
	return true
}

// removeGen drops the entry only if it is still the same arm that ran.
func (r *registry) removeGen(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.gen == gen {
		delete(r.entries, id)
	}
}

// pending returns a stable snapshot ordered by trigger time, then id.
func (r *registry) pending() []TaskSummary {
	r.mu.Lock()
	out := make([]TaskSummary, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status != booking.StatusPending {
			continue
		}
		out = append(out, TaskSummary{
			ID:        e.intent.ID,
			Name:      e.intent.Name,
			TriggerAt: e.intent.TriggerAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].TriggerAt.Before(out[j].TriggerAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// stopTimers stops every pending timer without removing entries; used during
// shutdown so persisted rows stay put for the next boot.
func (r *registry) stopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}
