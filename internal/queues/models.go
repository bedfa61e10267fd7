package queues

import (
	"time"

	"github.com/google/uuid"
)

// Queue represents a single department service line.
//
// CurrentNumber and WaitingCount are derived counters owned by the
// transition path: they are recomputed inside the same transaction as the
// mutation that changed them and never accept direct external writes.
type Queue struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	DepartmentID  uuid.UUID `gorm:"type:uuid;index;not null" json:"department_id"`
	CurrentNumber int       `gorm:"not null;default:0" json:"current_number"`
	WaitingCount  int       `gorm:"not null;default:0" json:"waiting_count"`
	EstimatedTime string    `gorm:"type:varchar(100)" json:"estimated_time,omitempty"`
	Status        string    `gorm:"type:varchar(20);check:status IN ('active', 'inactive');default:'active'" json:"status"`
	CreatedAt     time.Time `json:"created_at"`

	// Relationships
	Items []QueueItem `json:"items,omitempty" gorm:"foreignKey:QueueID;constraint:OnDelete:CASCADE;"`
}

// QueueItem represents one patient's position in a queue. Items are never
// physically deleted; cancellation is a terminal state, not a deletion.
type QueueItem struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	QueueID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"queue_id"`
	PatientID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"patient_id"`
	Number       int        `gorm:"not null;uniqueIndex:idx_queue_items_queue_number,composite:queue_id" json:"number"`
	Status       Status     `gorm:"type:varchar(20);index;check:status IN ('WAITING', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED');default:'WAITING'" json:"status"`
	Priority     Priority   `gorm:"type:varchar(10);index;check:priority IN ('NORMAL', 'HIGH', 'URGENT');default:'NORMAL'" json:"priority"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpectedTime *time.Time `json:"expected_time,omitempty"`

	// Relationships
	Queue       *Queue                `json:"queue,omitempty" gorm:"foreignKey:QueueID;constraint:OnDelete:CASCADE;"`
	Transitions []QueueItemTransition `json:"transitions,omitempty" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;"`
}

// QueueItemTransition is an immutable ledger row documenting one state
// change. FromStatus is nil for the enrollment event; OperatorID is nil for
// system-initiated transitions such as auto-advance. Rows are written in the
// same transaction as the change they document and never updated or deleted.
type QueueItemTransition struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ItemID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"item_id"`
	FromStatus *Status    `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus   Status     `gorm:"type:varchar(20);not null" json:"to_status"`
	OperatorID *uuid.UUID `gorm:"type:uuid" json:"operator_id,omitempty"`
	Timestamp  time.Time  `gorm:"index;not null" json:"timestamp"`
	Reason     string     `gorm:"type:varchar(255)" json:"reason,omitempty"`

	// Relationships
	Item *QueueItem `json:"item,omitempty" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;"`
}

// TableName sets the table name for Queue
func (Queue) TableName() string {
	return "queues"
}

// TableName sets the table name for QueueItem
func (QueueItem) TableName() string {
	return "queue_items"
}

// TableName sets the table name for QueueItemTransition
func (QueueItemTransition) TableName() string {
	return "queue_item_transitions"
}

// IsActive reports whether the queue is open for enrollment
func (q *Queue) IsActive() bool {
	return q.Status == "active"
}

// IsSystem reports whether the transition was initiated by the engine itself
func (t *QueueItemTransition) IsSystem() bool {
	return t.OperatorID == nil
}
