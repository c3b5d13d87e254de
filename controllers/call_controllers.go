package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/services"
	"github.com/yeremiapane/waitercall/utils"
)

type CallController struct {
	Service *services.CallService
}

func NewCallController(service *services.CallService) *CallController {
	return &CallController{Service: service}
}

// respondServiceError maps the service error taxonomy onto status codes.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrConflict):
		utils.RespondError(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrForbidden):
		utils.RespondError(c, http.StatusForbidden, err)
	case errors.Is(err, services.ErrUnavailable):
		utils.RespondError(c, http.StatusServiceUnavailable, err)
	default:
		utils.RespondError(c, http.StatusInternalServerError, err)
	}
}

// actor pulls the authenticated waiter identity out of the context. The
// request body may name an actor explicitly; non-admins can only act as
// themselves. Every lifecycle action records a concrete waiter, so even an
// admin must resolve to a nonzero identity.
func actor(c *gin.Context, bodyWaiterID uint) (waiterID uint, admin bool, ok bool) {
	admin = c.GetString("role") == "admin"
	claimed, _ := c.Get("waiter_id")
	claimedID, _ := claimed.(uint)

	waiterID = claimedID
	if bodyWaiterID != 0 {
		if bodyWaiterID != claimedID && !admin {
			return 0, false, false
		}
		waiterID = bodyWaiterID
	}
	return waiterID, admin, waiterID != 0
}

// CreateCall -> a customer at a table summons staff. Public endpoint behind
// the per-IP rate limit.
func (cc *CallController) CreateCall(c *gin.Context) {
	var req struct {
		TableID      uint `json:"table_id" binding:"required"`
		RestaurantID uint `json:"restaurant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var idemKey *string
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		idemKey = &key
	}

	call, err := cc.Service.Create(c.Request.Context(), req.TableID, req.RestaurantID, idemKey)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.Printf("Call %d created for table %d (restaurant %d)", call.ID, call.TableID, call.RestaurantID)
	utils.RespondJSON(c, http.StatusCreated, "Call created", call)
}

// ListCalls -> staff view of the floor; sweeps expired calls before reading.
func (cc *CallController) ListCalls(c *gin.Context) {
	restaurantID, err := strconv.ParseUint(c.Query("restaurant_id"), 10, 32)
	if err != nil || restaurantID == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("restaurant_id is required"))
		return
	}

	claimed, _ := c.Get("restaurant_id")
	if claimedID, ok := claimed.(uint); ok && claimedID != uint(restaurantID) {
		utils.RespondError(c, http.StatusForbidden, errors.New("restaurant mismatch"))
		return
	}

	var statusFilter *models.CallStatus
	if raw := c.Query("status"); raw != "" {
		st := models.CallStatus(raw)
		statusFilter = &st
	}

	calls, err := cc.Service.List(c.Request.Context(), uint(restaurantID), statusFilter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of calls", calls)
}

func callID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("call_id"), 10, 32)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid call id"))
		return 0, false
	}
	return uint(id), true
}

// AcknowledgeCall -> a waiter claims a pending or missed call. First claim
// wins; losers get 409.
func (cc *CallController) AcknowledgeCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}

	var req struct {
		ActorWaiterID uint `json:"actor_waiter_id"`
	}
	_ = c.ShouldBindJSON(&req)

	waiterID, _, ok := actor(c, req.ActorWaiterID)
	if !ok {
		utils.RespondError(c, http.StatusForbidden, errors.New("cannot act for another waiter"))
		return
	}

	call, err := cc.Service.Acknowledge(c.Request.Context(), id, waiterID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.Printf("Call %d acknowledged by waiter %d", call.ID, waiterID)
	utils.RespondJSON(c, http.StatusOK, "Call acknowledged", call)
}

// StartCall -> the claiming waiter marks the call as being worked on.
func (cc *CallController) StartCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}

	var req struct {
		ActorWaiterID uint `json:"actor_waiter_id"`
	}
	_ = c.ShouldBindJSON(&req)

	waiterID, admin, ok := actor(c, req.ActorWaiterID)
	if !ok {
		utils.RespondError(c, http.StatusForbidden, errors.New("cannot act for another waiter"))
		return
	}

	call, err := cc.Service.Start(c.Request.Context(), id, waiterID, admin)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Call in progress", call)
}

// ResolveCall -> the claiming waiter (or an admin) completes the call.
func (cc *CallController) ResolveCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}

	var req struct {
		ActorWaiterID uint `json:"actor_waiter_id"`
	}
	_ = c.ShouldBindJSON(&req)

	waiterID, admin, ok := actor(c, req.ActorWaiterID)
	if !ok {
		utils.RespondError(c, http.StatusForbidden, errors.New("cannot act for another waiter"))
		return
	}

	call, err := cc.Service.Resolve(c.Request.Context(), id, waiterID, admin)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.Printf("Call %d resolved by waiter %d", call.ID, waiterID)
	utils.RespondJSON(c, http.StatusOK, "Call resolved", call)
}

// CancelCall -> admin-only, any non-terminal state.
func (cc *CallController) CancelCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}

	call, err := cc.Service.Cancel(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Call cancelled", call)
}
