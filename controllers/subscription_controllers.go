package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/store"
	"github.com/yeremiapane/waitercall/utils"
)

// SubscriptionController manages a waiter's push registrations. One per
// device; re-registering an endpoint rebinds it.
type SubscriptionController struct {
	Store store.Store
}

func NewSubscriptionController(st store.Store) *SubscriptionController {
	return &SubscriptionController{Store: st}
}

func (sc *SubscriptionController) Register(c *gin.Context) {
	waiterIDVal, _ := c.Get("waiter_id")
	waiterID, _ := waiterIDVal.(uint)
	if waiterID == 0 {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("waiter identity missing"))
		return
	}

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
		Keys     struct {
			P256dh string `json:"p256dh" binding:"required"`
			Auth   string `json:"auth" binding:"required"`
		} `json:"keys" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	sub := &models.PushSubscription{
		WaiterID: waiterID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := sc.Store.SaveSubscription(c.Request.Context(), sub); err != nil {
		utils.RespondError(c, http.StatusServiceUnavailable, err)
		return
	}

	utils.InfoLogger.Printf("Push subscription %d registered for waiter %d", sub.ID, waiterID)
	utils.RespondJSON(c, http.StatusCreated, "Subscription registered", sub)
}

func (sc *SubscriptionController) Unregister(c *gin.Context) {
	waiterIDVal, _ := c.Get("waiter_id")
	waiterID, _ := waiterIDVal.(uint)
	if waiterID == 0 {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("waiter identity missing"))
		return
	}

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	subs, err := sc.Store.SubscriptionsForWaiter(c.Request.Context(), waiterID)
	if err != nil {
		utils.RespondError(c, http.StatusServiceUnavailable, err)
		return
	}
	for _, sub := range subs {
		if sub.Endpoint == req.Endpoint {
			if err := sc.Store.DeleteSubscription(c.Request.Context(), sub.ID); err != nil {
				utils.RespondError(c, http.StatusServiceUnavailable, err)
				return
			}
			utils.RespondJSON(c, http.StatusOK, "Subscription removed", gin.H{"id": sub.ID})
			return
		}
	}
	utils.RespondError(c, http.StatusNotFound, errors.New("subscription not found"))
}
