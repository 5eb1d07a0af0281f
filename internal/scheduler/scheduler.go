// Package scheduler maps wall-clock triggers to booking executions. One-shot
// timers post fired tasks onto a queue consumed by a fixed worker pool, so a
// firing never blocks the submit path and no goroutine is spawned per task.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/court-scheduler/internal/booking"
)

// ErrStopped is returned by Submit once Shutdown has begun.
var ErrStopped = errors.New("scheduler stopped")

// ErrNotStarted is returned by Submit before Start.
var ErrNotStarted = errors.New("scheduler not started")

// Executor runs a fired intent's attempt sequence to a terminal outcome.
type Executor interface {
	Execute(ctx context.Context, intent booking.Intent) booking.Outcome
}

// Notifier delivers the terminal outcome, best-effort.
type Notifier interface {
	Notify(ctx context.Context, address string, intent booking.Intent, outcome booking.Outcome)
}

// TaskStore persists intents across restarts. Optional: a nil store keeps
// everything in memory. Store failures never fail a submission.
type TaskStore interface {
	Save(ctx context.Context, intent booking.Intent) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]booking.Intent, error)
}

const (
	defaultWorkers   = 4
	defaultQueueSize = 16
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

type firedTask struct {
	intent booking.Intent
	gen    uint64
}

type Scheduler struct {
	log    *slog.Logger
	exec   Executor
	notify Notifier
	store  TaskStore

	workers int
	reg     *registry
	fire    chan firedTask
	done    chan struct{}
	wg      sync.WaitGroup

	mu sync.Mutex
	st state
}

type Option func(*Scheduler)

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func New(exec Executor, notify Notifier, store TaskStore, log *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		log:     log,
		exec:    exec,
		notify:  notify,
		store:   store,
		workers: defaultWorkers,
		reg:     newRegistry(),
		fire:    make(chan firedTask, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the worker pool. Idle -> Running; anything else is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.st {
	case stateRunning:
		return errors.New("scheduler already started")
	case stateStopped:
		return ErrStopped
	}
	s.st = stateRunning
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.log.Info("scheduler started", "workers", s.workers)
	return nil
}

// Submit registers an intent. A trigger already in the past is dispatched to
// a worker immediately and never appears in ListPending; otherwise a one-shot
// timer is armed. A colliding identity replaces the existing pending arm; an
// id whose execution is already in flight is left alone, keeping at most one
// active execution per id.
func (s *Scheduler) Submit(intent booking.Intent) (string, error) {
	if err := intent.Validate(); err != nil {
		return "", err
	}
	if intent.ID == "" {
		intent.ID = booking.TaskID(intent.TriggerAt, intent.Slots)
	}
	intent.Name = intent.DisplayName()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.st {
	case stateIdle:
		return "", ErrNotStarted
	case stateStopped:
		return "", ErrStopped
	}

	due := !intent.TriggerAt.After(time.Now())
	status := booking.StatusPending
	if due {
		status = booking.StatusRunning
	}
	gen, displaced, running := s.reg.replace(intent.ID, intent, status)
	if running {
		s.log.Warn("task already running, resubmission ignored", "task_id", intent.ID)
		return intent.ID, nil
	}
	if displaced {
		s.log.Info("replaced existing task arm", "task_id", intent.ID)
	}

	s.persist(intent)

	if due {
		s.log.Warn("trigger time already passed, executing immediately",
			"task_id", intent.ID, "trigger_at", intent.TriggerAt)
		s.enqueue(firedTask{intent: intent, gen: gen})
		return intent.ID, nil
	}

	id := intent.ID
	s.reg.arm(id, gen, time.Until(intent.TriggerAt), func() {
		s.fireTask(id, gen)
	})
	s.log.Info("task scheduled", "task_id", id,
		"trigger_at", intent.TriggerAt, "name", intent.Name)
	return intent.ID, nil
}

// ListPending snapshots tasks that have not fired yet, ordered by trigger
// time then id.
func (s *Scheduler) ListPending() []TaskSummary {
	return s.reg.pending()
}

// Cancel removes a pending task. Tasks already running or unknown are left
// alone and reported false; once attempts begin the loop runs to completion.
func (s *Scheduler) Cancel(id string) bool {
	if !s.reg.removePending(id) {
		return false
	}
	if s.store != nil {
		if err := s.store.Delete(context.Background(), id); err != nil {
			s.log.Warn("failed to delete persisted task", "task_id", id, "error", err)
		}
	}
	s.log.Info("task cancelled", "task_id", id)
	return true
}

// Restore replays persisted intents, typically at boot. Past-due intents run
// immediately per Submit semantics.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	intents, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, in := range intents {
		if _, err := s.Submit(in); err != nil {
			s.log.Warn("failed to restore task", "task_id", in.ID, "error", err)
		}
	}
	s.log.Info("restored persisted tasks", "count", len(intents))
	return nil
}

// Shutdown stops intake and outstanding timers. In-flight executions are
// allowed to finish but not awaited, keeping shutdown responsive. Persisted
// rows are kept for the next boot.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.st == stateStopped {
		s.mu.Unlock()
		return
	}
	s.st = stateStopped
	s.mu.Unlock()

	s.reg.stopTimers()
	close(s.done)
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fireTask(id string, gen uint64) {
	intent, ok := s.reg.markRunning(id, gen)
	if !ok {
		// cancelled or replaced between timer fire and now
		return
	}
	s.enqueue(firedTask{intent: intent, gen: gen})
}

func (s *Scheduler) enqueue(t firedTask) {
	select {
	case s.fire <- t:
	case <-s.done:
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.fire:
			s.run(t)
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) run(t firedTask) {
	// Deliberately not tied to the shutdown signal: a mutating remote call
	// cancelled mid-flight risks an inconsistent allocation.
	ctx := context.Background()
	intent := t.intent

	outcome := s.exec.Execute(ctx, intent)
	s.log.Info("task finished", "task_id", intent.ID,
		"outcome", outcome.Kind.String(), "attempts", outcome.Attempts)

	if s.notify != nil {
		s.notify.Notify(ctx, intent.NotifyAddress, intent, outcome)
	}

	// fire-and-forget cleanup; the outcome above stands regardless
	s.reg.removeGen(intent.ID, t.gen)
	if s.store != nil {
		if err := s.store.Delete(ctx, intent.ID); err != nil {
			s.log.Warn("failed to delete persisted task", "task_id", intent.ID, "error", err)
		}
	}
}

func (s *Scheduler) persist(intent booking.Intent) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(context.Background(), intent); err != nil {
		s.log.Warn("failed to persist task", "task_id", intent.ID, "error", err)
	}
}
