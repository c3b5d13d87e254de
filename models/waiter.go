package models

import "time"

type Waiter struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RestaurantID uint      `gorm:"not null;index" json:"restaurant_id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// Assignment maps a waiter to a table they are responsible for. A table may
// have several waiters and a waiter several tables; call creation picks the
// first active one.
type Assignment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	WaiterID  uint      `gorm:"not null;index;uniqueIndex:idx_waiter_table" json:"waiter_id"`
	TableID   uint      `gorm:"not null;index;uniqueIndex:idx_waiter_table" json:"table_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
