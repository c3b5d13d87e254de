package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/utils"
)

// StaffController is the simple record management around the call engine:
// tables, waiters, their assignments and restaurant settings.
type StaffController struct {
	DB *gorm.DB
}

func NewStaffController(db *gorm.DB) *StaffController {
	return &StaffController{DB: db}
}

// CreateTable -> register a new table for a restaurant
func (sc *StaffController) CreateTable(c *gin.Context) {
	var req struct {
		RestaurantID uint   `json:"restaurant_id" binding:"required"`
		TableNumber  string `json:"table_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	table := models.Table{
		RestaurantID: req.RestaurantID,
		TableNumber:  req.TableNumber,
		IsActive:     true,
	}
	if err := sc.DB.Create(&table).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("Table %s created for restaurant %d", table.TableNumber, table.RestaurantID)
	utils.RespondJSON(c, http.StatusCreated, "Table created", table)
}

// GetAllTables -> list the restaurant's tables
func (sc *StaffController) GetAllTables(c *gin.Context) {
	restaurantID, _ := c.Get("restaurant_id")

	var tables []models.Table
	if err := sc.DB.Where("restaurant_id = ?", restaurantID).Find(&tables).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}

// UpdateTableActive -> activate or retire a table
func (sc *StaffController) UpdateTableActive(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var table models.Table
	if err := sc.DB.First(&table, c.Param("table_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}

	table.IsActive = *req.IsActive
	if err := sc.DB.Save(&table).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table updated", table)
}

// CreateWaiter -> register a waiter
func (sc *StaffController) CreateWaiter(c *gin.Context) {
	var req struct {
		RestaurantID uint   `json:"restaurant_id" binding:"required"`
		Name         string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	waiter := models.Waiter{
		RestaurantID: req.RestaurantID,
		Name:         req.Name,
		IsActive:     true,
	}
	if err := sc.DB.Create(&waiter).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Waiter created", waiter)
}

// GetAllWaiters -> list the restaurant's waiters
func (sc *StaffController) GetAllWaiters(c *gin.Context) {
	restaurantID, _ := c.Get("restaurant_id")

	var waiters []models.Waiter
	if err := sc.DB.Where("restaurant_id = ?", restaurantID).Find(&waiters).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of waiters", waiters)
}

// AssignWaiter -> make a waiter responsible for a table
func (sc *StaffController) AssignWaiter(c *gin.Context) {
	var req struct {
		WaiterID uint `json:"waiter_id" binding:"required"`
		TableID  uint `json:"table_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var waiter models.Waiter
	if err := sc.DB.First(&waiter, req.WaiterID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("waiter not found"))
		return
	}
	var table models.Table
	if err := sc.DB.First(&table, req.TableID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("table not found"))
		return
	}
	if waiter.RestaurantID != table.RestaurantID {
		utils.RespondError(c, http.StatusBadRequest, errors.New("waiter and table belong to different restaurants"))
		return
	}

	assignment := models.Assignment{WaiterID: req.WaiterID, TableID: req.TableID}
	if err := sc.DB.Create(&assignment).Error; err != nil {
		utils.RespondError(c, http.StatusConflict, errors.New("assignment already exists"))
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Waiter assigned", assignment)
}

// UnassignWaiter -> remove a waiter/table assignment
func (sc *StaffController) UnassignWaiter(c *gin.Context) {
	res := sc.DB.Where("waiter_id = ? AND table_id = ?", c.Query("waiter_id"), c.Query("table_id")).
		Delete(&models.Assignment{})
	if res.Error != nil {
		utils.RespondError(c, http.StatusInternalServerError, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		utils.RespondError(c, http.StatusNotFound, errors.New("assignment not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Waiter unassigned", nil)
}

// GetSettings -> current call-engine settings for the restaurant
func (sc *StaffController) GetSettings(c *gin.Context) {
	restaurantIDVal, _ := c.Get("restaurant_id")
	restaurantID, _ := restaurantIDVal.(uint)

	var setting models.RestaurantSetting
	err := sc.DB.Where("restaurant_id = ?", restaurantID).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.RestaurantSetting{
			RestaurantID:   restaurantID,
			FallbackNotify: models.FallbackBroadcast,
		}
		err = nil
	}
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Restaurant settings", setting)
}

// UpdateSettings -> change fallback notification policy or the SLA override
func (sc *StaffController) UpdateSettings(c *gin.Context) {
	restaurantIDVal, _ := c.Get("restaurant_id")
	restaurantID, _ := restaurantIDVal.(uint)

	var req struct {
		FallbackNotify *string `json:"fallback_notify"`
		SLASeconds     *int    `json:"sla_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if req.FallbackNotify != nil &&
		*req.FallbackNotify != models.FallbackBroadcast && *req.FallbackNotify != models.FallbackNone {
		utils.RespondError(c, http.StatusBadRequest, errors.New("fallback_notify must be broadcast or none"))
		return
	}

	var setting models.RestaurantSetting
	err := sc.DB.Where("restaurant_id = ?", restaurantID).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.RestaurantSetting{
			RestaurantID:   restaurantID,
			FallbackNotify: models.FallbackBroadcast,
		}
	} else if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if req.FallbackNotify != nil {
		setting.FallbackNotify = *req.FallbackNotify
	}
	if req.SLASeconds != nil {
		setting.SLASeconds = req.SLASeconds
	}
	if err := sc.DB.Save(&setting).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Settings updated", setting)
}
