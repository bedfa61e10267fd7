package queues

import (
	"errors"
	"net/http"

	"medqueue/internal/shared/utils/response"
	"medqueue/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{
		service: service,
	}
}

// Enroll handles POST /queues/:queue_id/items
func (c *Controller) Enroll(ctx *gin.Context) {
	queueID, err := uuid.Parse(ctx.Param("queue_id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid queue ID")
		return
	}

	var req EnrollRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid patient ID")
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	item, queue, err := c.service.Enroll(ctx.Request.Context(), actor, queueID, patientID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusCreated, "Enrolled in queue", gin.H{
		"item": item,
		"queue_counters": QueueCounters{
			QueueID:       queue.ID,
			CurrentNumber: queue.CurrentNumber,
			WaitingCount:  queue.WaitingCount,
		},
	})
}

// RequestTransition handles POST /queue-items/:id/transitions
func (c *Controller) RequestTransition(ctx *gin.Context) {
	itemID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid queue item ID")
		return
	}

	var req TransitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	result, err := c.service.RequestTransition(ctx.Request.Context(), actor, itemID, req.TargetStatus(), req.Reason)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Transition applied", NewTransitionResponse(result))
}

// GetItem handles GET /queue-items/:id
func (c *Controller) GetItem(ctx *gin.Context) {
	itemID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid queue item ID")
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	item, err := c.service.GetItem(ctx.Request.Context(), actor, itemID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Queue item retrieved", NewItemDetailResponse(item))
}

// ListQueue handles GET /queues/:queue_id
func (c *Controller) ListQueue(ctx *gin.Context) {
	queueID, err := uuid.Parse(ctx.Param("queue_id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid queue ID")
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	queue, items, err := c.service.ListQueue(ctx.Request.Context(), actor, queueID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Queue retrieved", NewQueueDetailResponse(queue, items))
}

// ListQueues handles GET /queues
func (c *Controller) ListQueues(ctx *gin.Context) {
	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	queues, err := c.service.ListQueues(ctx.Request.Context(), actor)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Queues retrieved", queues)
}

// GetStats handles GET /admin/queues/stats
func (c *Controller) GetStats(ctx *gin.Context) {
	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	stats, err := c.service.GetStats(ctx.Request.Context(), actor)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Queue statistics retrieved", stats)
}

// SetPriority handles PUT /queue-items/:id/priority
func (c *Controller) SetPriority(ctx *gin.Context) {
	itemID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid queue item ID")
		return
	}

	var req SetPriorityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		return
	}

	if err := c.service.SetPriority(ctx.Request.Context(), actor, itemID, req.TargetPriority()); err != nil {
		c.respondError(ctx, err)
		return
	}

	response.Success(ctx, http.StatusOK, "Priority updated", gin.H{
		"item_id":  itemID,
		"priority": req.TargetPriority(),
	})
}

// respondError maps the business error taxonomy onto HTTP statuses. Denials
// stay uniform and never echo what the caller was not allowed to see.
func (c *Controller) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(ctx, http.StatusNotFound, "Queue entry not found")
	case errors.Is(err, ErrForbidden):
		response.Error(ctx, http.StatusForbidden, "Not allowed to act on this queue entry")
	case errors.Is(err, ErrBusy):
		ctx.Header("Retry-After", "1")
		response.Error(ctx, http.StatusServiceUnavailable, "Queue entry is being modified, retry shortly")
	case errors.Is(err, ErrQueueInactive):
		response.Error(ctx, http.StatusConflict, "Queue is not accepting new entries")
	case IsInvalidTransition(err):
		response.Error(ctx, http.StatusConflict, err.Error())
	case IsValidationError(err):
		response.Error(ctx, http.StatusBadRequest, err.Error())
	default:
		response.Error(ctx, http.StatusInternalServerError, "Internal server error")
	}
}

// actorFromContext rebuilds the identity context the auth middleware stored.
// A malformed context aborts the request; the engine never guesses a caller.
func actorFromContext(ctx *gin.Context) (Actor, bool) {
	userIDValue, exists := ctx.Get("user_id")
	if !exists {
		response.Error(ctx, http.StatusUnauthorized, "User not authenticated")
		return Actor{}, false
	}
	userIDStr, ok := userIDValue.(string)
	if !ok {
		response.Error(ctx, http.StatusUnauthorized, "Malformed user claim")
		return Actor{}, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		response.Error(ctx, http.StatusUnauthorized, "Invalid user ID")
		return Actor{}, false
	}

	roleValue, exists := ctx.Get("user_role")
	if !exists {
		response.Error(ctx, http.StatusUnauthorized, "User role not found in context")
		return Actor{}, false
	}
	roleStr, ok := roleValue.(string)
	if !ok || !users.IsValidRole(roleStr) {
		response.Error(ctx, http.StatusUnauthorized, "Malformed role claim")
		return Actor{}, false
	}

	actor := Actor{
		ID:   userID,
		Role: users.Role(roleStr),
	}

	if deptValue, exists := ctx.Get("department_id"); exists {
		if deptStr, ok := deptValue.(string); ok && deptStr != "" {
			if deptID, err := uuid.Parse(deptStr); err == nil {
				actor.DepartmentID = &deptID
			}
		}
	}

	return actor, true
}
