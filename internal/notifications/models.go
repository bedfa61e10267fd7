package notifications

import (
	"encoding/json"
	"time"

	"medqueue/internal/queues"

	"github.com/google/uuid"
)

// TransitionMessage is the wire envelope published for every committed
// queue item transition. Delivery and fan-out (push, WebSocket, email) are
// the downstream consumer's concern; this service only emits.
type TransitionMessage struct {
	EventID    uuid.UUID  `json:"event_id"`
	ItemID     uuid.UUID  `json:"item_id"`
	QueueID    uuid.UUID  `json:"queue_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	OldStatus  *string    `json:"old_status,omitempty"`
	NewStatus  string     `json:"new_status"`
	OperatorID *uuid.UUID `json:"operator_id,omitempty"`
	System     bool       `json:"system"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewTransitionMessage converts the engine's event into the wire envelope
func NewTransitionMessage(event queues.TransitionEvent) *TransitionMessage {
	msg := &TransitionMessage{
		EventID:    event.EventID,
		ItemID:     event.ItemID,
		QueueID:    event.QueueID,
		PatientID:  event.PatientID,
		NewStatus:  event.NewStatus.String(),
		OperatorID: event.OperatorID,
		System:     event.OperatorID == nil,
		OccurredAt: event.OccurredAt,
	}
	if event.OldStatus != nil {
		old := event.OldStatus.String()
		msg.OldStatus = &old
	}
	return msg
}

// ToJSON serializes the message for the broker
func (m *TransitionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PartitionKey routes all events of one queue to the same partition so the
// per-queue event order in the log matches commit order.
func (m *TransitionMessage) PartitionKey() string {
	return m.QueueID.String()
}
