package models

import (
	"time"

	"gorm.io/gorm"
)

type CallStatus string

const (
	CallPending      CallStatus = "PENDING"
	CallAcknowledged CallStatus = "ACKNOWLEDGED"
	CallInProgress   CallStatus = "IN_PROGRESS"
	CallCompleted    CallStatus = "COMPLETED"
	CallMissed       CallStatus = "MISSED"
	CallCancelled    CallStatus = "CANCELLED"

	// Legacy value still present in old rows and old clients.
	callHandledAlias CallStatus = "HANDLED"
)

// NormalizeStatus folds legacy aliases into the closed status set. It must be
// applied to every persisted value read back and every status arriving from
// outside; past this boundary the alias never appears.
func NormalizeStatus(s CallStatus) CallStatus {
	if s == callHandledAlias {
		return CallCompleted
	}
	return s
}

// ValidStatus reports whether s (after normalization) is a known status.
func ValidStatus(s CallStatus) bool {
	switch NormalizeStatus(s) {
	case CallPending, CallAcknowledged, CallInProgress, CallCompleted, CallMissed, CallCancelled:
		return true
	}
	return false
}

// transitions is the full edge set of the call state machine. Cancel edges are
// included for every non-terminal state.
var transitions = map[CallStatus][]CallStatus{
	CallPending:      {CallAcknowledged, CallMissed, CallCancelled},
	CallAcknowledged: {CallInProgress, CallCompleted, CallCancelled},
	CallInProgress:   {CallCompleted, CallCancelled},
	CallMissed:       {CallAcknowledged, CallCancelled},
	CallCompleted:    {},
	CallCancelled:    {},
}

// CanTransition reports whether from -> to is an edge in the lifecycle graph.
func CanTransition(from, to CallStatus) bool {
	for _, t := range transitions[NormalizeStatus(from)] {
		if t == NormalizeStatus(to) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the claim cycle for good.
func IsTerminal(s CallStatus) bool {
	s = NormalizeStatus(s)
	return s == CallCompleted || s == CallCancelled
}

var activeStatuses = []CallStatus{CallPending, CallAcknowledged, CallInProgress}

// IsActive reports whether s still needs staff attention. MISSED is neither
// active nor terminal: it sorts with the finished group but can still be
// claimed.
func IsActive(s CallStatus) bool {
	s = NormalizeStatus(s)
	for _, a := range activeStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// ActiveStatuses returns the statuses IsActive reports true for, so query
// ordering stays derived from the same set.
func ActiveStatuses() []CallStatus {
	out := make([]CallStatus, len(activeStatuses))
	copy(out, activeStatuses)
	return out
}

type Call struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RestaurantID   uint       `gorm:"not null;index" json:"restaurant_id"`
	TableID        uint       `gorm:"not null;index" json:"table_id"`
	WaiterID       *uint      `gorm:"index" json:"waiter_id,omitempty"`
	Status         CallStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	IdempotencyKey *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	RequestedAt    time.Time  `gorm:"not null" json:"requested_at"`
	TimeoutAt      time.Time  `gorm:"not null;index" json:"timeout_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	MissedAt       *time.Time `json:"missed_at,omitempty"`
	ResponseTimeMs *int64     `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

// AfterFind is the single read-side normalization point for legacy statuses.
func (c *Call) AfterFind(tx *gorm.DB) error {
	c.Status = NormalizeStatus(c.Status)
	return nil
}
