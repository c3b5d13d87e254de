package store

import (
	"context"
	"errors"
	"time"

	"github.com/yeremiapane/waitercall/models"
)

// Patch is the set of columns a conditional update writes. Keys are column
// names; nil values clear the column.
type Patch map[string]interface{}

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("duplicate record")
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the persistence surface the call engine consumes. Consistency for
// call mutation is delegated entirely to ConditionalUpdateCall; the engine
// holds no locks of its own.
type Store interface {
	FindActiveTable(ctx context.Context, tableID, restaurantID uint) (*models.Table, error)
	FindAssignedWaiter(ctx context.Context, tableID uint) (*uint, error)

	CreateCall(ctx context.Context, call *models.Call) error
	GetCall(ctx context.Context, id uint) (*models.Call, error)
	// ConditionalUpdateCall applies patch only if the stored status still
	// equals expected. Returns the reloaded call and whether the write won.
	ConditionalUpdateCall(ctx context.Context, id uint, expected models.CallStatus, patch Patch) (*models.Call, bool, error)
	QueryCalls(ctx context.Context, restaurantID uint, statuses []models.CallStatus, limit int) ([]models.Call, error)
	ExpiredPending(ctx context.Context, restaurantID uint, now time.Time) ([]models.Call, error)

	ActiveWaiters(ctx context.Context, restaurantID uint) ([]models.Waiter, error)
	SubscriptionsForWaiter(ctx context.Context, waiterID uint) ([]models.PushSubscription, error)
	SaveSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeleteSubscription(ctx context.Context, id uint) error

	Settings(ctx context.Context, restaurantID uint) (*models.RestaurantSetting, error)
	RestaurantIDs(ctx context.Context) ([]uint, error)
}
