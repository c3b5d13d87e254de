package models

import "time"

type Restaurant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// FallbackNotify values for RestaurantSetting.
const (
	FallbackBroadcast = "broadcast"
	FallbackNone      = "none"
)

// RestaurantSetting carries the per-restaurant knobs the call engine reads:
// what to do with unassigned calls and an optional SLA override in seconds.
type RestaurantSetting struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RestaurantID   uint      `gorm:"not null;uniqueIndex" json:"restaurant_id"`
	FallbackNotify string    `gorm:"type:varchar(20);not null;default:'broadcast'" json:"fallback_notify"`
	SLASeconds     *int      `json:"sla_seconds,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}
