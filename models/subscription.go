package models

import "time"

// PushSubscription is one browser push registration for a waiter. A waiter can
// hold several (one per device). Endpoint is unique: re-registering the same
// endpoint just rebinds it.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	WaiterID  uint      `gorm:"not null;index" json:"waiter_id"`
	Endpoint  string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"endpoint"`
	P256dh    string    `gorm:"type:varchar(255);not null" json:"p256dh"`
	Auth      string    `gorm:"type:varchar(255);not null" json:"auth"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
