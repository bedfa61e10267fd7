package queues

import (
	"time"

	"github.com/google/uuid"
)

// QueueCounters is the aggregate view returned alongside every committed
// transition so clients never need a second round trip for fresh counters.
type QueueCounters struct {
	QueueID       uuid.UUID `json:"queue_id"`
	CurrentNumber int       `json:"current_number"`
	WaitingCount  int       `json:"waiting_count"`
}

// PromotedItemInfo describes the item auto-advance picked, when it picked one
type PromotedItemInfo struct {
	ItemID    uuid.UUID  `json:"item_id"`
	PatientID uuid.UUID  `json:"patient_id"`
	Number    int        `json:"number"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// TransitionResponse is the payload for a successful requestTransition
type TransitionResponse struct {
	ItemID       uuid.UUID         `json:"item_id"`
	OldStatus    Status            `json:"old_status"`
	NewStatus    Status            `json:"new_status"`
	Counters     QueueCounters     `json:"queue_counters"`
	AutoAdvanced *PromotedItemInfo `json:"auto_advanced,omitempty"`
}

// TransitionHistoryEntry is one ledger row in a read response
type TransitionHistoryEntry struct {
	FromStatus *Status    `json:"from_status,omitempty"`
	ToStatus   Status     `json:"to_status"`
	OperatorID *uuid.UUID `json:"operator_id,omitempty"`
	System     bool       `json:"system"`
	Timestamp  time.Time  `json:"timestamp"`
	Reason     string     `json:"reason,omitempty"`
}

// ItemDetailResponse is the getItem payload: the item plus its full ledger
type ItemDetailResponse struct {
	ID           uuid.UUID                `json:"id"`
	QueueID      uuid.UUID                `json:"queue_id"`
	QueueName    string                   `json:"queue_name,omitempty"`
	PatientID    uuid.UUID                `json:"patient_id"`
	Number       int                      `json:"number"`
	Status       Status                   `json:"status"`
	Priority     Priority                 `json:"priority"`
	CreatedAt    time.Time                `json:"created_at"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	CompletedAt  *time.Time               `json:"completed_at,omitempty"`
	ExpectedTime *time.Time               `json:"expected_time,omitempty"`
	History      []TransitionHistoryEntry `json:"transition_history"`
}

// QueueDetailResponse is the listQueue payload. Items is omitted for
// patient callers, who only see the aggregate counters.
type QueueDetailResponse struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	DepartmentID  uuid.UUID   `json:"department_id"`
	CurrentNumber int         `json:"current_number"`
	WaitingCount  int         `json:"waiting_count"`
	EstimatedTime string      `json:"estimated_time,omitempty"`
	Status        string      `json:"status"`
	Items         []QueueItem `json:"items,omitempty"`
}

// NewItemDetailResponse builds the read payload from a preloaded item
func NewItemDetailResponse(item *QueueItem) *ItemDetailResponse {
	resp := &ItemDetailResponse{
		ID:           item.ID,
		QueueID:      item.QueueID,
		PatientID:    item.PatientID,
		Number:       item.Number,
		Status:       item.Status,
		Priority:     item.Priority,
		CreatedAt:    item.CreatedAt,
		StartedAt:    item.StartedAt,
		CompletedAt:  item.CompletedAt,
		ExpectedTime: item.ExpectedTime,
		History:      make([]TransitionHistoryEntry, 0, len(item.Transitions)),
	}
	if item.Queue != nil {
		resp.QueueName = item.Queue.Name
	}
	for _, t := range item.Transitions {
		resp.History = append(resp.History, TransitionHistoryEntry{
			FromStatus: t.FromStatus,
			ToStatus:   t.ToStatus,
			OperatorID: t.OperatorID,
			System:     t.IsSystem(),
			Timestamp:  t.Timestamp,
			Reason:     t.Reason,
		})
	}
	return resp
}

// NewTransitionResponse builds the mutation payload from a committed result
func NewTransitionResponse(result *TransitionResult) *TransitionResponse {
	resp := &TransitionResponse{
		ItemID:    result.Item.ID,
		OldStatus: result.OldStatus,
		NewStatus: result.Item.Status,
		Counters: QueueCounters{
			QueueID:       result.Queue.ID,
			CurrentNumber: result.Queue.CurrentNumber,
			WaitingCount:  result.Queue.WaitingCount,
		},
	}
	if result.Promoted != nil {
		resp.AutoAdvanced = &PromotedItemInfo{
			ItemID:    result.Promoted.ID,
			PatientID: result.Promoted.PatientID,
			Number:    result.Promoted.Number,
			StartedAt: result.Promoted.StartedAt,
		}
	}
	return resp
}

// NewQueueDetailResponse builds the aggregate view payload
func NewQueueDetailResponse(queue *Queue, items []QueueItem) *QueueDetailResponse {
	return &QueueDetailResponse{
		ID:            queue.ID,
		Name:          queue.Name,
		DepartmentID:  queue.DepartmentID,
		CurrentNumber: queue.CurrentNumber,
		WaitingCount:  queue.WaitingCount,
		EstimatedTime: queue.EstimatedTime,
		Status:        queue.Status,
		Items:         items,
	}
}
