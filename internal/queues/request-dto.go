package queues

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// EnrollRequest represents a request to add a patient to a queue
type EnrollRequest struct {
	PatientID string `json:"patient_id" binding:"required,uuid"`
}

// TransitionRequest represents a request to move an item to a target state
type TransitionRequest struct {
	Status string `json:"status" binding:"required,queuestatus"`
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// TargetStatus returns the normalized state literal
func (r TransitionRequest) TargetStatus() Status {
	return Status(strings.ToUpper(r.Status))
}

// SetPriorityRequest represents a request to set the stored priority tier
type SetPriorityRequest struct {
	Priority string `json:"priority" binding:"required,queuepriority"`
}

// TargetPriority returns the normalized priority literal
func (r SetPriorityRequest) TargetPriority() Priority {
	return Priority(strings.ToUpper(r.Priority))
}

// RegisterValidations wires the state and priority literal checks into the
// gin binding validator so malformed input fails at bind time.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine: %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("queuestatus", func(fl validator.FieldLevel) bool {
		return Status(strings.ToUpper(fl.Field().String())).IsValid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("queuepriority", func(fl validator.FieldLevel) bool {
		return Priority(strings.ToUpper(fl.Field().String())).IsValid()
	})
}
