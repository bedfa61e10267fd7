package queues

import (
	"context"
	"log/slog"
	"time"

	"medqueue/internal/shared/constants"
	"medqueue/pkg/cache"
	"medqueue/pkg/logger"

	"github.com/google/uuid"
)

// TransitionEvent is the change notification handed to the external
// broadcast collaborator after a successful commit. OldStatus is nil for
// the enrollment event; OperatorID is nil for system-initiated transitions.
type TransitionEvent struct {
	EventID    uuid.UUID  `json:"event_id"`
	ItemID     uuid.UUID  `json:"item_id"`
	QueueID    uuid.UUID  `json:"queue_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	OldStatus  *Status    `json:"old_status,omitempty"`
	NewStatus  Status     `json:"new_status"`
	OperatorID *uuid.UUID `json:"operator_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Notifier publishes transition events to the external broadcast
// collaborator. Declared here on the consumer side so the queues package
// never imports the transport that implements it.
type Notifier interface {
	PublishTransition(ctx context.Context, event TransitionEvent) error
}

// Service interface defines the contract for the queue engine
type Service interface {
	Enroll(ctx context.Context, actor Actor, queueID, patientID uuid.UUID) (*QueueItem, *Queue, error)
	RequestTransition(ctx context.Context, actor Actor, itemID uuid.UUID, target Status, reason string) (*TransitionResult, error)
	GetItem(ctx context.Context, actor Actor, itemID uuid.UUID) (*QueueItem, error)
	ListQueue(ctx context.Context, actor Actor, queueID uuid.UUID) (*Queue, []QueueItem, error)
	ListQueues(ctx context.Context, actor Actor) ([]QueueSummary, error)
	GetStats(ctx context.Context, actor Actor) (*QueueStats, error)
	SetPriority(ctx context.Context, actor Actor, itemID uuid.UUID, priority Priority) error
}

type service struct {
	repo     Repository
	notifier Notifier
	cache    cache.Service
	log      *logger.Logger
}

// NewService creates the queue engine service. notifier and cacheService
// are optional collaborators; a nil value disables that hand-off.
func NewService(repo Repository, notifier Notifier, cacheService cache.Service, log *logger.Logger) Service {
	if log == nil {
		log = logger.GetDefault()
	}
	return &service{
		repo:     repo,
		notifier: notifier,
		cache:    cacheService,
		log:      log,
	}
}

func (s *service) Enroll(ctx context.Context, actor Actor, queueID, patientID uuid.UUID) (*QueueItem, *Queue, error) {
	queue, err := s.repo.GetQueueByID(ctx, queueID)
	if err != nil {
		return nil, nil, err
	}

	if err := AuthorizeEnroll(actor, queue, patientID); err != nil {
		return nil, nil, err
	}

	item, updated, err := s.repo.Enroll(ctx, queueID, patientID, &actor.ID)
	if err != nil {
		return nil, nil, err
	}

	s.log.InfoContext(ctx, "queue item enrolled",
		slog.String("item_id", item.ID.String()),
		slog.String("queue_id", queueID.String()),
		slog.Int("number", item.Number),
	)

	s.afterCommit(ctx, TransitionEvent{
		EventID:    uuid.New(),
		ItemID:     item.ID,
		QueueID:    queueID,
		PatientID:  patientID,
		OldStatus:  nil,
		NewStatus:  StatusWaiting,
		OperatorID: &actor.ID,
		OccurredAt: item.CreatedAt,
	})

	return item, updated, nil
}

// RequestTransition runs the full admission-and-mutation pipeline: policy,
// fail-fast legality check without a lock, then the atomic unit in the
// repository, then the post-commit hand-offs.
func (s *service) RequestTransition(ctx context.Context, actor Actor, itemID uuid.UUID, target Status, reason string) (*TransitionResult, error) {
	if !target.IsValid() {
		return nil, NewValidationError("status", "unknown target state "+target.String())
	}
	if reason == "" {
		reason = "status update"
	}

	// Unlocked read: resolve existence, run the admission policy and reject
	// obviously illegal moves before taking any lock.
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	queue := item.Queue
	if queue == nil {
		if queue, err = s.repo.GetQueueByID(ctx, item.QueueID); err != nil {
			return nil, err
		}
	}

	if err := AuthorizeTransition(actor, item, queue, target); err != nil {
		s.log.LogTransitionDenied(ctx, itemID.String(), actor.ID.String(), string(actor.Role), target.String())
		return nil, err
	}

	if !item.Status.CanTransitionTo(target) {
		return nil, NewInvalidTransitionError(item.Status, target)
	}

	result, err := s.repo.ApplyTransition(ctx, itemID, target, &actor.ID, reason)
	if err != nil {
		return nil, err
	}

	s.log.LogTransitionApplied(ctx, itemID.String(), result.OldStatus.String(), target.String(), result.Promoted != nil)

	old := result.OldStatus
	s.afterCommit(ctx, TransitionEvent{
		EventID:    uuid.New(),
		ItemID:     result.Item.ID,
		QueueID:    result.Queue.ID,
		PatientID:  result.Item.PatientID,
		OldStatus:  &old,
		NewStatus:  target,
		OperatorID: &actor.ID,
		OccurredAt: time.Now().UTC(),
	})

	if result.Promoted != nil {
		from := StatusWaiting
		s.afterCommit(ctx, TransitionEvent{
			EventID:    uuid.New(),
			ItemID:     result.Promoted.ID,
			QueueID:    result.Queue.ID,
			PatientID:  result.Promoted.PatientID,
			OldStatus:  &from,
			NewStatus:  StatusInProgress,
			OperatorID: nil,
			OccurredAt: time.Now().UTC(),
		})
	}

	return result, nil
}

func (s *service) GetItem(ctx context.Context, actor Actor, itemID uuid.UUID) (*QueueItem, error) {
	item, err := s.repo.GetItemWithHistory(ctx, itemID)
	if err != nil {
		return nil, err
	}
	queue := item.Queue
	if queue == nil {
		if queue, err = s.repo.GetQueueByID(ctx, item.QueueID); err != nil {
			return nil, err
		}
	}
	if err := AuthorizeRead(actor, item, queue); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) ListQueue(ctx context.Context, actor Actor, queueID uuid.UUID) (*Queue, []QueueItem, error) {
	queue, err := s.getQueueCached(ctx, queueID)
	if err != nil {
		return nil, nil, err
	}
	if err := AuthorizeQueueView(actor, queue); err != nil {
		return nil, nil, err
	}

	// Patients see the aggregate counters only; the item list would leak
	// other patients' positions.
	if !actor.Role.IsAdministrative() {
		return queue, nil, nil
	}

	items, err := s.repo.ListQueueItems(ctx, queueID)
	if err != nil {
		return nil, nil, err
	}
	return queue, items, nil
}

func (s *service) ListQueues(ctx context.Context, actor Actor) ([]QueueSummary, error) {
	scope := s.scopeFor(actor)
	if scope == nil && !actor.Role.IsSuper() {
		// Unbound non-super callers have no visible queues.
		return []QueueSummary{}, nil
	}

	key := constants.BuildQueueListKey(scopeKey(scope))
	var summaries []QueueSummary
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &summaries); err == nil {
			return summaries, nil
		}
	}

	summaries, err := s.repo.ListQueues(ctx, scope)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summaries, constants.TTL_QUEUE_LIST); err != nil {
			s.log.DebugContext(ctx, "queue list cache write failed", slog.Any("error", err))
		}
	}
	return summaries, nil
}

func (s *service) GetStats(ctx context.Context, actor Actor) (*QueueStats, error) {
	if !actor.Role.IsAdministrative() {
		return nil, ErrForbidden
	}
	scope := s.scopeFor(actor)
	if scope == nil && !actor.Role.IsSuper() {
		return &QueueStats{}, nil
	}

	key := constants.BuildQueueStatsKey(scopeKey(scope))
	stats := &QueueStats{}
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, stats); err == nil {
			return stats, nil
		}
	}

	stats, err := s.repo.GetStats(ctx, scope)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, constants.TTL_QUEUE_STATS); err != nil {
			s.log.DebugContext(ctx, "queue stats cache write failed", slog.Any("error", err))
		}
	}
	return stats, nil
}

func (s *service) SetPriority(ctx context.Context, actor Actor, itemID uuid.UUID, priority Priority) error {
	if !priority.IsValid() {
		return NewValidationError("priority", "unknown priority tier "+priority.String())
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	queue := item.Queue
	if queue == nil {
		if queue, err = s.repo.GetQueueByID(ctx, item.QueueID); err != nil {
			return err
		}
	}
	if err := AuthorizePriority(actor, item, queue); err != nil {
		return err
	}

	return s.repo.UpdatePriority(ctx, itemID, priority)
}

// scopeFor returns the department filter for the actor: nil means
// unrestricted (super), otherwise the actor's binding.
func (s *service) scopeFor(actor Actor) *uuid.UUID {
	if actor.Role.IsSuper() {
		return nil
	}
	return actor.DepartmentID
}

func scopeKey(scope *uuid.UUID) string {
	if scope == nil {
		return "all"
	}
	return scope.String()
}

func (s *service) getQueueCached(ctx context.Context, queueID uuid.UUID) (*Queue, error) {
	if s.cache == nil {
		return s.repo.GetQueueByID(ctx, queueID)
	}
	queue := &Queue{}
	err := s.cache.GetOrSet(ctx, constants.BuildQueueStatusKey(queueID.String()), constants.TTL_QUEUE_STATUS,
		func() (interface{}, error) {
			return s.repo.GetQueueByID(ctx, queueID)
		}, queue)
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// afterCommit hands the committed change to the broadcast collaborator and
// drops the stale cache entries. Both run strictly outside the transaction;
// failures here are logged and never undo the committed mutation.
func (s *service) afterCommit(ctx context.Context, event TransitionEvent) {
	if s.notifier != nil {
		if err := s.notifier.PublishTransition(ctx, event); err != nil {
			s.log.ErrorContext(ctx, "transition event publish failed",
				slog.String("item_id", event.ItemID.String()),
				slog.Any("error", err),
			)
		}
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, constants.BuildQueueStatusKey(event.QueueID.String())); err != nil {
			s.log.DebugContext(ctx, "queue status cache invalidation failed", slog.Any("error", err))
		}
		if err := s.cache.DeletePattern(ctx, constants.PATTERN_INVALIDATE_QUEUE_LISTS); err != nil {
			s.log.DebugContext(ctx, "queue list cache invalidation failed", slog.Any("error", err))
		}
		if err := s.cache.DeletePattern(ctx, constants.PATTERN_INVALIDATE_QUEUE_STATS); err != nil {
			s.log.DebugContext(ctx, "queue stats cache invalidation failed", slog.Any("error", err))
		}
	}
}
