package queues

import (
	"medqueue/internal/users"

	"github.com/google/uuid"
)

// Actor is the authenticated identity context a request carries: who is
// calling, with which role, bound to which department. It is built by the
// auth middleware from token claims; the engine never looks identities up.
type Actor struct {
	ID           uuid.UUID
	Role         users.Role
	DepartmentID *uuid.UUID
}

// IsOwner reports whether the actor is the patient the item tracks
func (a Actor) IsOwner(item *QueueItem) bool {
	return a.ID == item.PatientID
}

// inScope reports whether the actor's department binding covers the queue.
// Super roles are unscoped; an admin with no binding sees nothing.
func (a Actor) inScope(queue *Queue) bool {
	if a.Role.IsSuper() {
		return true
	}
	return a.DepartmentID != nil && *a.DepartmentID == queue.DepartmentID
}

// AuthorizeTransition decides whether the actor may move the item to target.
//
// Patients may only cancel their own entry. Administrative roles may request
// any transition in the legal table for items inside their department scope;
// super roles are unscoped. The returned error is always ErrForbidden so a
// denial never distinguishes "wrong owner" from "wrong department".
func AuthorizeTransition(actor Actor, item *QueueItem, queue *Queue, target Status) error {
	if actor.Role == users.RolePatient {
		if !actor.IsOwner(item) {
			return ErrForbidden
		}
		if target != StatusCancelled {
			return ErrForbidden
		}
		return nil
	}
	if actor.Role.IsAdministrative() {
		if !actor.inScope(queue) {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}

// AuthorizeRead decides whether the actor may read the item and its ledger.
func AuthorizeRead(actor Actor, item *QueueItem, queue *Queue) error {
	if actor.Role == users.RolePatient {
		if !actor.IsOwner(item) {
			return ErrForbidden
		}
		return nil
	}
	if actor.Role.IsAdministrative() {
		if !actor.inScope(queue) {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}

// AuthorizeQueueView decides whether the actor may view a queue's aggregate
// state and item list. Patients may see their department's queue counters
// but not the item list; that split is enforced at the controller.
func AuthorizeQueueView(actor Actor, queue *Queue) error {
	if actor.inScope(queue) {
		return nil
	}
	return ErrForbidden
}

// AuthorizeEnroll decides whether the actor may enroll the given patient.
// Patients enroll only themselves; administrative roles enroll anyone into
// queues within their department scope.
func AuthorizeEnroll(actor Actor, queue *Queue, patientID uuid.UUID) error {
	if actor.Role == users.RolePatient {
		if actor.ID != patientID {
			return ErrForbidden
		}
		return nil
	}
	if actor.Role.IsAdministrative() {
		if !actor.inScope(queue) {
			return ErrForbidden
		}
		return nil
	}
	return ErrForbidden
}

// AuthorizePriority mirrors the ownership/scope rules for the stored
// priority tier: patients on their own item, admins within scope.
func AuthorizePriority(actor Actor, item *QueueItem, queue *Queue) error {
	return AuthorizeRead(actor, item, queue)
}
