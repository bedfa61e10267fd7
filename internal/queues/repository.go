package queues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransitionResult carries everything one committed mutation produced: the
// mutated item, the queue with freshly recomputed counters, and the item
// auto-advance promoted, when it promoted one.
type TransitionResult struct {
	Item      *QueueItem
	OldStatus Status
	Queue     *Queue
	Promoted  *QueueItem
}

// QueueSummary is a queue row plus live item counts for admin listings.
type QueueSummary struct {
	Queue
	ItemCount   int64 `json:"item_count"`
	ActiveItems int64 `json:"active_items"`
}

// QueueStats aggregates item counts across the queues in scope.
type QueueStats struct {
	TotalQueues       int64 `json:"total_queues"`
	TotalItems        int64 `json:"total_items"`
	WaitingCount      int64 `json:"waiting_count"`
	InProgressCount   int64 `json:"in_progress_count"`
	CompletedCount    int64 `json:"completed_count"`
	CancelledCount    int64 `json:"cancelled_count"`
	HighPriorityCount int64 `json:"high_priority_count"`
	UrgentCount       int64 `json:"urgent_count"`
}

type Repository interface {
	// Read paths
	GetQueueByID(ctx context.Context, id uuid.UUID) (*Queue, error)
	ListQueues(ctx context.Context, departmentID *uuid.UUID) ([]QueueSummary, error)
	GetItemByID(ctx context.Context, id uuid.UUID) (*QueueItem, error)
	GetItemWithHistory(ctx context.Context, id uuid.UUID) (*QueueItem, error)
	ListQueueItems(ctx context.Context, queueID uuid.UUID) ([]QueueItem, error)
	GetStats(ctx context.Context, departmentID *uuid.UUID) (*QueueStats, error)

	// Mutation paths; each runs as one atomic unit
	Enroll(ctx context.Context, queueID, patientID uuid.UUID, operatorID *uuid.UUID) (*QueueItem, *Queue, error)
	ApplyTransition(ctx context.Context, itemID uuid.UUID, target Status, operatorID *uuid.UUID, reason string) (*TransitionResult, error)
	UpdatePriority(ctx context.Context, itemID uuid.UUID, priority Priority) error
}

type repository struct {
	db       *gorm.DB
	lockWait time.Duration
}

// NewRepository creates a queue repository. lockWait bounds how long a
// mutation blocks on another mutator of the same item before failing Busy.
func NewRepository(db *gorm.DB, lockWait time.Duration) Repository {
	if lockWait <= 0 {
		lockWait = 3 * time.Second
	}
	return &repository{db: db, lockWait: lockWait}
}

func (r *repository) GetQueueByID(ctx context.Context, id uuid.UUID) (*Queue, error) {
	var queue Queue
	err := r.db.WithContext(ctx).First(&queue, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &queue, nil
}

func (r *repository) ListQueues(ctx context.Context, departmentID *uuid.UUID) ([]QueueSummary, error) {
	var summaries []QueueSummary
	query := r.db.WithContext(ctx).Model(&Queue{}).
		Select("queues.*, "+
			"(SELECT COUNT(*) FROM queue_items WHERE queue_items.queue_id = queues.id) AS item_count, "+
			"(SELECT COUNT(*) FROM queue_items WHERE queue_items.queue_id = queues.id AND queue_items.status IN ?) AS active_items",
			[]Status{StatusWaiting, StatusInProgress})
	if departmentID != nil {
		query = query.Where("queues.department_id = ?", *departmentID)
	}
	err := query.Order("queues.name ASC").Find(&summaries).Error
	return summaries, err
}

func (r *repository) GetItemByID(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	var item QueueItem
	err := r.db.WithContext(ctx).Preload("Queue").First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) GetItemWithHistory(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	var item QueueItem
	err := r.db.WithContext(ctx).
		Preload("Queue").
		Preload("Transitions", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListQueueItems(ctx context.Context, queueID uuid.UUID) ([]QueueItem, error) {
	var items []QueueItem
	err := r.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) GetStats(ctx context.Context, departmentID *uuid.UUID) (*QueueStats, error) {
	stats := &QueueStats{}

	queueQuery := r.db.WithContext(ctx).Model(&Queue{})
	if departmentID != nil {
		queueQuery = queueQuery.Where("department_id = ?", *departmentID)
	}
	if err := queueQuery.Count(&stats.TotalQueues).Error; err != nil {
		return nil, err
	}

	itemQuery := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&QueueItem{}).
			Joins("JOIN queues ON queues.id = queue_items.queue_id")
		if departmentID != nil {
			q = q.Where("queues.department_id = ?", *departmentID)
		}
		return q
	}

	if err := itemQuery().Count(&stats.TotalItems).Error; err != nil {
		return nil, err
	}

	statusCounts := map[Status]*int64{
		StatusWaiting:    &stats.WaitingCount,
		StatusInProgress: &stats.InProgressCount,
		StatusCompleted:  &stats.CompletedCount,
		StatusCancelled:  &stats.CancelledCount,
	}
	for status, dest := range statusCounts {
		if err := itemQuery().Where("queue_items.status = ?", status).Count(dest).Error; err != nil {
			return nil, err
		}
	}

	if err := itemQuery().Where("queue_items.priority = ?", PriorityHigh).Count(&stats.HighPriorityCount).Error; err != nil {
		return nil, err
	}
	if err := itemQuery().Where("queue_items.priority = ?", PriorityUrgent).Count(&stats.UrgentCount).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// Enroll creates a new waiting item with the next sequential number for the
// queue. The queue row is locked for the duration of the transaction so two
// concurrent enrollments can never be handed the same number.
func (r *repository) Enroll(ctx context.Context, queueID, patientID uuid.UUID, operatorID *uuid.UUID) (*QueueItem, *Queue, error) {
	var item *QueueItem
	var queue Queue

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setLockTimeout(tx, r.lockWait); err != nil {
			return err
		}

		err := lockForUpdate(tx).
			First(&queue, "id = ?", queueID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if isLockTimeout(err) {
				return ErrBusy
			}
			return fmt.Errorf("failed to lock queue: %w", err)
		}

		if !queue.IsActive() {
			return ErrQueueInactive
		}

		var nextNumber int
		err = tx.Model(&QueueItem{}).
			Where("queue_id = ?", queueID).
			Select("COALESCE(MAX(number), 0) + 1").
			Scan(&nextNumber).Error
		if err != nil {
			return fmt.Errorf("failed to assign ticket number: %w", err)
		}

		now := time.Now().UTC()
		item = &QueueItem{
			QueueID:   queueID,
			PatientID: patientID,
			Number:    nextNumber,
			Status:    StatusWaiting,
			Priority:  PriorityNormal,
			CreatedAt: now,
		}
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("failed to create queue item: %w", err)
		}

		// Enrollment ledger row: nil from-status marks the creation event.
		entry := QueueItemTransition{
			ItemID:     item.ID,
			FromStatus: nil,
			ToStatus:   StatusWaiting,
			OperatorID: operatorID,
			Timestamp:  now,
			Reason:     "enrolled in queue",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to record enrollment: %w", err)
		}

		return r.recomputeCountersLocked(tx, &queue, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	return item, &queue, nil
}

// ApplyTransition is the atomic mutation path: exclusive per-item row lock,
// re-validation under the lock, state change, ledger write, optional
// auto-advance and counter recompute, all in a single transaction. Any
// failure before commit rolls everything back.
func (r *repository) ApplyTransition(ctx context.Context, itemID uuid.UUID, target Status, operatorID *uuid.UUID, reason string) (*TransitionResult, error) {
	var result TransitionResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setLockTimeout(tx, r.lockWait); err != nil {
			return err
		}

		// Exclusive lock scoped to the single item row. Mutators of other
		// items, and all readers, are never blocked by this.
		var item QueueItem
		err := lockForUpdate(tx).
			First(&item, "id = ?", itemID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if isLockTimeout(err) {
				return ErrBusy
			}
			return fmt.Errorf("failed to lock queue item: %w", err)
		}

		// Re-validate under the lock: the state may have moved between the
		// caller's unlocked precheck and lock acquisition.
		if !item.Status.CanTransitionTo(target) {
			return NewInvalidTransitionError(item.Status, target)
		}

		oldStatus := item.Status
		now := time.Now().UTC()

		updates := map[string]interface{}{"status": target}
		switch target {
		case StatusInProgress:
			updates["started_at"] = now
			item.StartedAt = &now
		case StatusCompleted, StatusCancelled:
			// Cancellation stamps completion time too, for reporting
			// symmetry; it carries no "served" semantics.
			updates["completed_at"] = now
			item.CompletedAt = &now
		}
		if err := tx.Model(&QueueItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update queue item: %w", err)
		}
		item.Status = target

		entry := QueueItemTransition{
			ItemID:     item.ID,
			FromStatus: &oldStatus,
			ToStatus:   target,
			OperatorID: operatorID,
			Timestamp:  now,
			Reason:     reason,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to record transition: %w", err)
		}

		var queue Queue
		if err := tx.First(&queue, "id = ?", item.QueueID).Error; err != nil {
			return fmt.Errorf("failed to load owning queue: %w", err)
		}

		var promoted *QueueItem
		if target == StatusCompleted {
			promoted, err = r.autoAdvanceLocked(tx, &queue, now)
			if err != nil {
				return err
			}
		}

		if err := r.recomputeCountersLocked(tx, &queue, promoted); err != nil {
			return err
		}

		result = TransitionResult{
			Item:      &item,
			OldStatus: oldStatus,
			Queue:     &queue,
			Promoted:  promoted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// autoAdvanceLocked promotes the earliest-created waiting item of the queue
// to in-progress, writing a system ledger row (nil operator). At most one
// item is promoted per completion; with no waiting item it is a no-op.
// Ordering is strictly first-in-first-out: the stored priority tier is
// deliberately ignored here.
func (r *repository) autoAdvanceLocked(tx *gorm.DB, queue *Queue, now time.Time) (*QueueItem, error) {
	var next QueueItem
	for {
		next = QueueItem{}
		err := tx.Where("queue_id = ? AND status = ?", queue.ID, StatusWaiting).
			Order("created_at ASC").
			First(&next).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to select next waiting item: %w", err)
		}

		// The candidate row is not locked by the select above, so the
		// update re-checks the status. A concurrent transaction may have
		// cancelled the item between the two statements; in that case the
		// guard matches zero rows and we pick the next candidate.
		res := promoteWaiting(tx, next.ID, now)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to promote next item: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			break
		}
	}
	next.Status = StatusInProgress
	next.StartedAt = &now

	from := StatusWaiting
	entry := QueueItemTransition{
		ItemID:     next.ID,
		FromStatus: &from,
		ToStatus:   StatusInProgress,
		OperatorID: nil,
		Timestamp:  now,
		Reason:     "auto-advanced to next waiting entry",
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record auto-advance: %w", err)
	}

	return &next, nil
}

// recomputeCountersLocked derives the queue counters from its items instead
// of incrementing them, so drift from missed updates cannot accumulate.
// current_number only moves when auto-advance promoted an item.
func (r *repository) recomputeCountersLocked(tx *gorm.DB, queue *Queue, promoted *QueueItem) error {
	var waiting int64
	err := tx.Model(&QueueItem{}).
		Where("queue_id = ? AND status = ?", queue.ID, StatusWaiting).
		Count(&waiting).Error
	if err != nil {
		return fmt.Errorf("failed to recount waiting items: %w", err)
	}

	updates := map[string]interface{}{"waiting_count": waiting}
	queue.WaitingCount = int(waiting)
	if promoted != nil {
		updates["current_number"] = promoted.Number
		queue.CurrentNumber = promoted.Number
	}

	err = tx.Model(&Queue{}).Where("id = ?", queue.ID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update queue counters: %w", err)
	}
	return nil
}

func (r *repository) UpdatePriority(ctx context.Context, itemID uuid.UUID, priority Priority) error {
	res := r.db.WithContext(ctx).Model(&QueueItem{}).
		Where("id = ?", itemID).
		Update("priority", priority)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// lockForUpdate attaches an exclusive row lock to the next query. The
// locking clause must go through Clauses; session options are not part of
// the generated SQL.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// promoteWaiting flips a single waiting item to in-progress. The status
// guard makes the update a no-op when the row already left WAITING, so a
// concurrent terminal transition is never overwritten.
func promoteWaiting(tx *gorm.DB, itemID uuid.UUID, now time.Time) *gorm.DB {
	return tx.Model(&QueueItem{}).
		Where("id = ? AND status = ?", itemID, StatusWaiting).
		Updates(map[string]interface{}{
			"status":     StatusInProgress,
			"started_at": now,
		})
}

// setLockTimeout bounds FOR UPDATE waits for the current transaction so a
// hot item yields Busy instead of blocking the handler indefinitely.
func setLockTimeout(tx *gorm.DB, wait time.Duration) error {
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return nil
}

// isLockTimeout recognizes SQLSTATE 55P03 (lock_not_available)
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}
