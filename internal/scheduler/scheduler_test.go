package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/booking"
)

type fakeExecutor struct {
	mu    sync.Mutex
	runs  []string
	block chan struct{} // non-nil: Execute waits here
	began chan string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{began: make(chan string, 16)}
}

func (f *fakeExecutor) Execute(ctx context.Context, intent booking.Intent) booking.Outcome {
	f.began <- intent.ID
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.runs = append(f.runs, intent.ID)
	f.mu.Unlock()
	return booking.Outcome{Kind: booking.OutcomeSuccess, Confirmation: "ORD-1", Attempts: 1}
}

func (f *fakeExecutor) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []booking.Outcome
}

func (f *fakeNotifier) Notify(ctx context.Context, address string, intent booking.Intent, outcome booking.Outcome) {
	f.mu.Lock()
	f.calls = append(f.calls, outcome)
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memStore struct {
	mu    sync.Mutex
	rows  map[string]booking.Intent
	seeds []booking.Intent
}

func newMemStore(seed ...booking.Intent) *memStore {
	return &memStore{rows: make(map[string]booking.Intent), seeds: seed}
}

func (m *memStore) Save(ctx context.Context, in booking.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[in.ID] = in
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memStore) LoadAll(ctx context.Context) ([]booking.Intent, error) {
	return m.seeds, nil
}

func (m *memStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIntent(trigger time.Time) booking.Intent {
	return booking.Intent{
		Slots:      []booking.SlotSelection{{ResourceID: "GYMQ001", StartTime: "17:00", EndTime: "18:00"}},
		TargetDate: time.Now().AddDate(0, 0, 2),
		TriggerAt:  trigger,
	}
}

func startScheduler(t *testing.T, exec Executor, n Notifier, store TaskStore) *Scheduler {
	t.Helper()
	s := New(exec, n, store, testLogger(), WithWorkers(2))
	require.NoError(t, s.Start())
	t.Cleanup(s.Shutdown)
	return s
}

func TestSubmitPastTriggerRunsImmediately(t *testing.T) {
	exec := newFakeExecutor()
	notifier := &fakeNotifier{}
	s := startScheduler(t, exec, notifier, nil)

	id, err := s.Submit(testIntent(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	// never visible as pending
	assert.Empty(t, s.ListPending())

	require.Eventually(t, func() bool {
		return len(exec.ran()) == 1 && notifier.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{id}, exec.ran())
	assert.Empty(t, s.ListPending())
}

func TestSubmitFutureTriggerFiresOnTime(t *testing.T) {
	exec := newFakeExecutor()
	s := startScheduler(t, exec, &fakeNotifier{}, nil)

	id, err := s.Submit(testIntent(time.Now().Add(60 * time.Millisecond)))
	require.NoError(t, err)

	pending := s.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.Eventually(t, func() bool {
		return len(exec.ran()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s.ListPending())
}

func TestResubmitReplacesInsteadOfDuplicating(t *testing.T) {
	exec := newFakeExecutor()
	s := startScheduler(t, exec, &fakeNotifier{}, nil)

	intent := testIntent(time.Now().Add(time.Hour))
	id1, err := s.Submit(intent)
	require.NoError(t, err)
	id2, err := s.Submit(intent)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, s.ListPending(), 1)
}

func TestResubmitWhileRunningKeepsSingleExecution(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	s := startScheduler(t, exec, &fakeNotifier{}, nil)

	intent := testIntent(time.Now().Add(-time.Minute))
	id1, err := s.Submit(intent)
	require.NoError(t, err)
	<-exec.began

	id2, err := s.Submit(intent)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Empty(t, s.ListPending())

	select {
	case <-exec.began:
		t.Fatal("second execution started for an id already running")
	case <-time.After(100 * time.Millisecond):
	}

	close(exec.block)
	require.Eventually(t, func() bool {
		return len(exec.ran()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentSubmitAndCancel(t *testing.T) {
	s := startScheduler(t, newFakeExecutor(), &fakeNotifier{}, nil)
	intent := testIntent(time.Now().Add(time.Hour))

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				id, err := s.Submit(intent)
				if err != nil {
					errs <- err
					return
				}
				s.Cancel(id)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(s.ListPending()), 1)
}

func TestListPendingOrderedByTrigger(t *testing.T) {
	s := startScheduler(t, newFakeExecutor(), &fakeNotifier{}, nil)

	later := testIntent(time.Now().Add(2 * time.Hour))
	sooner := testIntent(time.Now().Add(time.Hour))
	sooner.Slots[0].ResourceID = "GYMQ002"

	_, err := s.Submit(later)
	require.NoError(t, err)
	soonID, err := s.Submit(sooner)
	require.NoError(t, err)

	pending := s.ListPending()
	require.Len(t, pending, 2)
	assert.Equal(t, soonID, pending[0].ID)
}

func TestCancelPendingTask(t *testing.T) {
	exec := newFakeExecutor()
	s := startScheduler(t, exec, &fakeNotifier{}, nil)

	id, err := s.Submit(testIntent(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	assert.True(t, s.Cancel(id))
	assert.Empty(t, s.ListPending())
	assert.False(t, s.Cancel(id), "second cancel finds nothing")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, exec.ran(), "cancelled task must not fire")
}

func TestCancelRunningTaskReturnsFalse(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	s := startScheduler(t, exec, &fakeNotifier{}, nil)

	id, err := s.Submit(testIntent(time.Now().Add(-time.Minute)))
	require.NoError(t, err)

	<-exec.began // attempts have started
	assert.False(t, s.Cancel(id))
	close(exec.block)
}

func TestSubmitLifecycleErrors(t *testing.T) {
	s := New(newFakeExecutor(), &fakeNotifier{}, nil, testLogger())

	_, err := s.Submit(testIntent(time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, s.Start())
	s.Shutdown()

	_, err = s.Submit(testIntent(time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmitValidation(t *testing.T) {
	s := startScheduler(t, newFakeExecutor(), &fakeNotifier{}, nil)

	bad := testIntent(time.Now().Add(time.Hour))
	bad.Slots = nil
	_, err := s.Submit(bad)
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestStoreLifecycle(t *testing.T) {
	exec := newFakeExecutor()
	store := newMemStore()
	s := startScheduler(t, exec, &fakeNotifier{}, store)

	id, err := s.Submit(testIntent(time.Now().Add(-time.Second)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(exec.ran()) == 1 && !store.has(id)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStoreDeletedOnCancel(t *testing.T) {
	store := newMemStore()
	s := startScheduler(t, newFakeExecutor(), &fakeNotifier{}, store)

	id, err := s.Submit(testIntent(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.True(t, store.has(id))

	require.True(t, s.Cancel(id))
	assert.False(t, store.has(id))
}

func TestRestoreReplaysPersistedIntents(t *testing.T) {
	exec := newFakeExecutor()

	past := testIntent(time.Now().Add(-time.Hour))
	past.ID = booking.TaskID(past.TriggerAt, past.Slots)
	future := testIntent(time.Now().Add(time.Hour))
	future.Slots[0].ResourceID = "GYMQ003"
	future.ID = booking.TaskID(future.TriggerAt, future.Slots)

	store := newMemStore(past, future)
	s := startScheduler(t, exec, &fakeNotifier{}, store)

	require.NoError(t, s.Restore(context.Background()))

	pending := s.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, future.ID, pending[0].ID)

	require.Eventually(t, func() bool {
		return len(exec.ran()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{past.ID}, exec.ran())
}
