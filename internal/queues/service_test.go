package queues

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"medqueue/internal/users"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepository reproduces the repository contract in memory: every
// mutation is one atomic unit guarded by a per-item lock with a bounded
// wait, ledger rows are appended in the same unit, auto-advance fires on
// completion and counters are recomputed rather than incremented.
type fakeRepository struct {
	mu       sync.Mutex
	queues   map[uuid.UUID]*Queue
	items    map[uuid.UUID]*QueueItem
	ledger   []QueueItemTransition
	locks    map[uuid.UUID]chan struct{}
	lockWait time.Duration
	clock    time.Time

	// holdInTxn, when set, runs while the per-item lock is held so tests
	// can provoke lock contention deterministically.
	holdInTxn func()
}

func newFakeRepository(lockWait time.Duration) *fakeRepository {
	return &fakeRepository{
		queues:   make(map[uuid.UUID]*Queue),
		items:    make(map[uuid.UUID]*QueueItem),
		locks:    make(map[uuid.UUID]chan struct{}),
		lockWait: lockWait,
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepository) addQueue(departmentID uuid.UUID, status string) *Queue {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := &Queue{
		ID:           uuid.New(),
		Name:         "triage",
		DepartmentID: departmentID,
		Status:       status,
		CreatedAt:    f.clock,
	}
	f.queues[q.ID] = q
	return q
}

// tick returns a strictly increasing timestamp so created_at ordering in
// tests never depends on wall-clock resolution.
func (f *fakeRepository) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRepository) acquire(itemID uuid.UUID) error {
	f.mu.Lock()
	ch, ok := f.locks[itemID]
	if !ok {
		ch = make(chan struct{}, 1)
		f.locks[itemID] = ch
	}
	f.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return nil
	case <-time.After(f.lockWait):
		return ErrBusy
	}
}

func (f *fakeRepository) release(itemID uuid.UUID) {
	f.mu.Lock()
	ch := f.locks[itemID]
	f.mu.Unlock()
	<-ch
}

func copyItem(item *QueueItem) *QueueItem {
	c := *item
	return &c
}

func copyQueue(q *Queue) *Queue {
	c := *q
	return &c
}

func (f *fakeRepository) GetQueueByID(_ context.Context, id uuid.UUID) (*Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyQueue(q), nil
}

func (f *fakeRepository) ListQueues(_ context.Context, departmentID *uuid.UUID) ([]QueueSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summaries := []QueueSummary{}
	for _, q := range f.queues {
		if departmentID != nil && q.DepartmentID != *departmentID {
			continue
		}
		s := QueueSummary{Queue: *q}
		for _, item := range f.items {
			if item.QueueID != q.ID {
				continue
			}
			s.ItemCount++
			if item.Status.IsActive() {
				s.ActiveItems++
			}
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

func (f *fakeRepository) GetItemByID(_ context.Context, id uuid.UUID) (*QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyItem(item)
	if q, ok := f.queues[item.QueueID]; ok {
		c.Queue = copyQueue(q)
	}
	return c, nil
}

func (f *fakeRepository) GetItemWithHistory(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	item, err := f.GetItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.ledger {
		if t.ItemID == id {
			item.Transitions = append(item.Transitions, t)
		}
	}
	return item, nil
}

func (f *fakeRepository) ListQueueItems(_ context.Context, queueID uuid.UUID) ([]QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []QueueItem{}
	for _, item := range f.items {
		if item.QueueID == queueID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (f *fakeRepository) GetStats(_ context.Context, departmentID *uuid.UUID) (*QueueStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &QueueStats{}
	inScope := func(queueID uuid.UUID) bool {
		q, ok := f.queues[queueID]
		if !ok {
			return false
		}
		return departmentID == nil || q.DepartmentID == *departmentID
	}
	for _, q := range f.queues {
		if departmentID == nil || q.DepartmentID == *departmentID {
			stats.TotalQueues++
		}
	}
	for _, item := range f.items {
		if !inScope(item.QueueID) {
			continue
		}
		stats.TotalItems++
		switch item.Status {
		case StatusWaiting:
			stats.WaitingCount++
		case StatusInProgress:
			stats.InProgressCount++
		case StatusCompleted:
			stats.CompletedCount++
		case StatusCancelled:
			stats.CancelledCount++
		}
		switch item.Priority {
		case PriorityHigh:
			stats.HighPriorityCount++
		case PriorityUrgent:
			stats.UrgentCount++
		}
	}
	return stats, nil
}

func (f *fakeRepository) Enroll(_ context.Context, queueID, patientID uuid.UUID, operatorID *uuid.UUID) (*QueueItem, *Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[queueID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if !q.IsActive() {
		return nil, nil, ErrQueueInactive
	}

	next := 0
	for _, item := range f.items {
		if item.QueueID == queueID && item.Number > next {
			next = item.Number
		}
	}
	next++

	now := f.tick()
	item := &QueueItem{
		ID:        uuid.New(),
		QueueID:   queueID,
		PatientID: patientID,
		Number:    next,
		Status:    StatusWaiting,
		Priority:  PriorityNormal,
		CreatedAt: now,
	}
	f.items[item.ID] = item
	f.ledger = append(f.ledger, QueueItemTransition{
		ID:         uuid.New(),
		ItemID:     item.ID,
		FromStatus: nil,
		ToStatus:   StatusWaiting,
		OperatorID: operatorID,
		Timestamp:  now,
		Reason:     "enrolled in queue",
	})
	f.recomputeLocked(q, nil)
	return copyItem(item), copyQueue(q), nil
}

func (f *fakeRepository) ApplyTransition(_ context.Context, itemID uuid.UUID, target Status, operatorID *uuid.UUID, reason string) (*TransitionResult, error) {
	f.mu.Lock()
	_, ok := f.items[itemID]
	f.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	if err := f.acquire(itemID); err != nil {
		return nil, err
	}
	defer f.release(itemID)

	if f.holdInTxn != nil {
		f.holdInTxn()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	item := f.items[itemID]
	if !item.Status.CanTransitionTo(target) {
		return nil, NewInvalidTransitionError(item.Status, target)
	}

	oldStatus := item.Status
	now := f.tick()
	item.Status = target
	switch target {
	case StatusInProgress:
		item.StartedAt = &now
	case StatusCompleted, StatusCancelled:
		item.CompletedAt = &now
	}
	f.ledger = append(f.ledger, QueueItemTransition{
		ID:         uuid.New(),
		ItemID:     item.ID,
		FromStatus: &oldStatus,
		ToStatus:   target,
		OperatorID: operatorID,
		Timestamp:  now,
		Reason:     reason,
	})

	q := f.queues[item.QueueID]

	var promoted *QueueItem
	if target == StatusCompleted {
		promoted = f.autoAdvanceLocked(q, now)
	}
	f.recomputeLocked(q, promoted)

	result := &TransitionResult{
		Item:      copyItem(item),
		OldStatus: oldStatus,
		Queue:     copyQueue(q),
	}
	if promoted != nil {
		result.Promoted = copyItem(promoted)
	}
	return result, nil
}

func (f *fakeRepository) autoAdvanceLocked(q *Queue, now time.Time) *QueueItem {
	var next *QueueItem
	for _, item := range f.items {
		if item.QueueID != q.ID || item.Status != StatusWaiting {
			continue
		}
		if next == nil || item.CreatedAt.Before(next.CreatedAt) {
			next = item
		}
	}
	if next == nil {
		return nil
	}
	next.Status = StatusInProgress
	next.StartedAt = &now
	from := StatusWaiting
	f.ledger = append(f.ledger, QueueItemTransition{
		ID:         uuid.New(),
		ItemID:     next.ID,
		FromStatus: &from,
		ToStatus:   StatusInProgress,
		OperatorID: nil,
		Timestamp:  now,
		Reason:     "auto-advanced to next waiting entry",
	})
	return next
}

func (f *fakeRepository) recomputeLocked(q *Queue, promoted *QueueItem) {
	waiting := 0
	for _, item := range f.items {
		if item.QueueID == q.ID && item.Status == StatusWaiting {
			waiting++
		}
	}
	q.WaitingCount = waiting
	if promoted != nil {
		q.CurrentNumber = promoted.Number
	}
}

func (f *fakeRepository) UpdatePriority(_ context.Context, itemID uuid.UUID, priority Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return ErrNotFound
	}
	item.Priority = priority
	return nil
}

func (f *fakeRepository) ledgerFor(itemID uuid.UUID) []QueueItemTransition {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []QueueItemTransition
	for _, t := range f.ledger {
		if t.ItemID == itemID {
			rows = append(rows, t)
		}
	}
	return rows
}

// fakeNotifier records published events; it can be told to fail so tests
// can show a publish failure never undoes a committed transition.
type fakeNotifier struct {
	mu     sync.Mutex
	events []TransitionEvent
	fail   bool
}

func (n *fakeNotifier) PublishTransition(_ context.Context, event TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) recorded() []TransitionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]TransitionEvent, len(n.events))
	copy(out, n.events)
	return out
}

func newTestService(repo *fakeRepository, notifier *fakeNotifier) Service {
	if notifier == nil {
		return NewService(repo, nil, nil, nil)
	}
	return NewService(repo, notifier, nil, nil)
}

func adminFor(deptID uuid.UUID) Actor {
	return Actor{ID: uuid.New(), Role: users.RoleAdmin, DepartmentID: &deptID}
}

func TestEnroll_AssignsSequentialNumbers(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	first, q1, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	second, q2, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, StatusWaiting, first.Status)
	assert.Equal(t, 1, q1.WaitingCount)
	assert.Equal(t, 2, q2.WaitingCount)

	rows := repo.ledgerFor(first.ID)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].FromStatus)
	assert.Equal(t, StatusWaiting, rows[0].ToStatus)
	require.NotNil(t, rows[0].OperatorID)
	assert.Equal(t, admin.ID, *rows[0].OperatorID)
}

func TestEnroll_PatientSelfOnly(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)

	patient := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}

	item, _, err := svc.Enroll(context.Background(), patient, queue.ID, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, item.PatientID)

	_, _, err = svc.Enroll(context.Background(), patient, queue.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEnroll_InactiveQueueRejected(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "inactive")
	svc := newTestService(repo, nil)

	_, _, err := svc.Enroll(context.Background(), adminFor(deptID), queue.ID, uuid.New())
	assert.ErrorIs(t, err, ErrQueueInactive)
}

func TestRequestTransition_CompletionAutoAdvances(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)
	admin := adminFor(deptID)

	itemA, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	itemB, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.RequestTransition(context.Background(), admin, itemA.ID, StatusInProgress, "called in")
	require.NoError(t, err)

	result, err := svc.RequestTransition(context.Background(), admin, itemA.ID, StatusCompleted, "consultation done")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Item.Status)
	require.NotNil(t, result.Item.CompletedAt)

	// B was promoted in the same unit.
	require.NotNil(t, result.Promoted)
	assert.Equal(t, itemB.ID, result.Promoted.ID)
	assert.Equal(t, StatusInProgress, result.Promoted.Status)
	require.NotNil(t, result.Promoted.StartedAt)

	assert.Equal(t, itemB.Number, result.Queue.CurrentNumber)
	assert.Equal(t, 0, result.Queue.WaitingCount)

	// The promotion ledger row carries no operator.
	rows := repo.ledgerFor(itemB.ID)
	require.Len(t, rows, 2)
	promotion := rows[1]
	require.NotNil(t, promotion.FromStatus)
	assert.Equal(t, StatusWaiting, *promotion.FromStatus)
	assert.Equal(t, StatusInProgress, promotion.ToStatus)
	assert.Nil(t, promotion.OperatorID)

	// Two events for the completion: the operator's and the system's.
	events := notifier.recorded()
	require.Len(t, events, 5) // 2 enrollments + start + complete + promotion
	completion := events[3]
	assert.Equal(t, itemA.ID, completion.ItemID)
	assert.Equal(t, StatusCompleted, completion.NewStatus)
	require.NotNil(t, completion.OperatorID)
	promotionEvent := events[4]
	assert.Equal(t, itemB.ID, promotionEvent.ItemID)
	assert.Equal(t, StatusInProgress, promotionEvent.NewStatus)
	assert.Nil(t, promotionEvent.OperatorID)
}

func TestRequestTransition_CompletionWithEmptyQueue(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusInProgress, "")
	require.NoError(t, err)

	result, err := svc.RequestTransition(context.Background(), admin, item.ID, StatusCompleted, "")
	require.NoError(t, err)
	assert.Nil(t, result.Promoted)
	assert.Equal(t, 0, result.Queue.WaitingCount)
}

func TestRequestTransition_PatientCancelsOwnItem(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)

	patient := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}
	item, _, err := svc.Enroll(context.Background(), patient, queue.ID, patient.ID)
	require.NoError(t, err)

	result, err := svc.RequestTransition(context.Background(), patient, item.ID, StatusCancelled, "cannot make it")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, result.Item.Status)
	assert.NotNil(t, result.Item.CompletedAt)
	assert.Equal(t, 0, result.Queue.WaitingCount)

	events := notifier.recorded()
	last := events[len(events)-1]
	assert.Equal(t, StatusCancelled, last.NewStatus)
	require.NotNil(t, last.OperatorID)
	assert.Equal(t, patient.ID, *last.OperatorID)
}

func TestRequestTransition_DenialLeavesNoTrace(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)

	patient := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}
	item, _, err := svc.Enroll(context.Background(), patient, queue.ID, patient.ID)
	require.NoError(t, err)
	eventsBefore := len(notifier.recorded())
	rowsBefore := len(repo.ledgerFor(item.ID))

	_, err = svc.RequestTransition(context.Background(), patient, item.ID, StatusInProgress, "")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.GetItem(context.Background(), patient, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Len(t, repo.ledgerFor(item.ID), rowsBefore)
	assert.Len(t, notifier.recorded(), eventsBefore)
}

func TestRequestTransition_IllegalMoveRejected(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	// WAITING cannot jump straight to COMPLETED.
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusCompleted, "")
	require.True(t, IsInvalidTransition(err))

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusWaiting, invalid.From)
	assert.Equal(t, StatusCompleted, invalid.To)
}

func TestRequestTransition_TerminalStatesAreFrozen(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusCancelled, "")
	require.NoError(t, err)

	for _, target := range []Status{StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled} {
		_, err := svc.RequestTransition(context.Background(), admin, item.ID, target, "")
		assert.True(t, IsInvalidTransition(err), "cancelled -> %s must be rejected", target)
	}
}

func TestRequestTransition_UnknownTargetAndMissingItem(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	_, err := svc.RequestTransition(context.Background(), admin, uuid.New(), Status("DONE"), "")
	assert.True(t, IsValidationError(err))

	_, err = svc.RequestTransition(context.Background(), admin, uuid.New(), StatusCancelled, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestTransition_ConcurrentCompletesOneWinner(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusInProgress, "")
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestTransition(context.Background(), admin, item.ID, StatusCompleted, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case IsInvalidTransition(err) || errors.Is(err, ErrBusy):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	// Exactly one completion row in the ledger.
	completions := 0
	for _, row := range repo.ledgerFor(item.ID) {
		if row.ToStatus == StatusCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestRequestTransition_LockContentionYieldsBusy(t *testing.T) {
	repo := newFakeRepository(20 * time.Millisecond)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	entered := make(chan struct{})
	releaseLock := make(chan struct{})
	var once sync.Once
	repo.holdInTxn = func() {
		once.Do(func() {
			close(entered)
			<-releaseLock
		})
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestTransition(context.Background(), admin, item.ID, StatusInProgress, "")
		done <- err
	}()

	<-entered
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusCancelled, "")
	assert.ErrorIs(t, err, ErrBusy)

	close(releaseLock)
	require.NoError(t, <-done)
}

func TestRequestTransition_PublishFailureDoesNotUndoCommit(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	notifier := &fakeNotifier{fail: true}
	svc := newTestService(repo, notifier)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	result, err := svc.RequestTransition(context.Background(), admin, item.ID, StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, result.Item.Status)

	got, err := svc.GetItem(context.Background(), admin, item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
}

func TestGetItem_IncludesLedgerInOrder(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	item, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusInProgress, "")
	require.NoError(t, err)
	_, err = svc.RequestTransition(context.Background(), admin, item.ID, StatusCompleted, "")
	require.NoError(t, err)

	got, err := svc.GetItem(context.Background(), admin, item.ID)
	require.NoError(t, err)
	require.Len(t, got.Transitions, 3)
	assert.Nil(t, got.Transitions[0].FromStatus)
	assert.Equal(t, StatusInProgress, got.Transitions[1].ToStatus)
	assert.Equal(t, StatusCompleted, got.Transitions[2].ToStatus)
}

func TestListQueue_PatientSeesCountersOnly(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	_, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	patient := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}
	q, items, err := svc.ListQueue(context.Background(), patient, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, q.WaitingCount)
	assert.Nil(t, items)

	q, items, err = svc.ListQueue(context.Background(), admin, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, q.WaitingCount)
	assert.Len(t, items, 1)
}

func TestListQueues_ScopedByDepartment(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptA := uuid.New()
	deptB := uuid.New()
	repo.addQueue(deptA, "active")
	repo.addQueue(deptB, "active")
	svc := newTestService(repo, nil)

	summaries, err := svc.ListQueues(context.Background(), adminFor(deptA))
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
	assert.Equal(t, deptA, summaries[0].DepartmentID)

	super := Actor{ID: uuid.New(), Role: users.RoleSuper}
	summaries, err = svc.ListQueues(context.Background(), super)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	unbound := Actor{ID: uuid.New(), Role: users.RoleAdmin}
	summaries, err = svc.ListQueues(context.Background(), unbound)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestGetStats_AdminOnlyAndScoped(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	_, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	patient := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}
	_, err = svc.GetStats(context.Background(), patient)
	assert.ErrorIs(t, err, ErrForbidden)

	stats, err := svc.GetStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalQueues)
	assert.Equal(t, int64(1), stats.WaitingCount)

	otherAdmin := adminFor(uuid.New())
	stats, err = svc.GetStats(context.Background(), otherAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalQueues)
}

func TestSetPriority_StoredTierOnly(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)
	admin := adminFor(deptID)

	first, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	second, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)
	third, _, err := svc.Enroll(context.Background(), admin, queue.ID, uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.SetPriority(context.Background(), admin, third.ID, PriorityUrgent))

	err = svc.SetPriority(context.Background(), admin, third.ID, Priority("LOW"))
	assert.True(t, IsValidationError(err))

	// Urgent tier is stored but hand-off order stays first-in-first-out.
	_, err = svc.RequestTransition(context.Background(), admin, first.ID, StatusInProgress, "")
	require.NoError(t, err)
	result, err := svc.RequestTransition(context.Background(), admin, first.ID, StatusCompleted, "")
	require.NoError(t, err)
	require.NotNil(t, result.Promoted)
	assert.Equal(t, second.ID, result.Promoted.ID)
}

func TestSetPriority_PatientScope(t *testing.T) {
	repo := newFakeRepository(time.Second)
	deptID := uuid.New()
	queue := repo.addQueue(deptID, "active")
	svc := newTestService(repo, nil)

	patient := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}
	item, _, err := svc.Enroll(context.Background(), patient, queue.ID, patient.ID)
	require.NoError(t, err)

	require.NoError(t, svc.SetPriority(context.Background(), patient, item.ID, PriorityHigh))

	stranger := Actor{ID: uuid.New(), Role: users.RolePatient, DepartmentID: &deptID}
	err = svc.SetPriority(context.Background(), stranger, item.ID, PriorityHigh)
	assert.ErrorIs(t, err, ErrForbidden)
}
