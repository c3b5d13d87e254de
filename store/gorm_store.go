package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"

	"github.com/yeremiapane/waitercall/models"
)

const (
	transientAttempts = 3
	opTimeout         = 5 * time.Second
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// retry runs op, retrying transient failures with exponential backoff.
// Deterministic outcomes (not-found, duplicate key) pass through untouched;
// anything still failing after the attempt budget becomes ErrUnavailable.
func retry(ctx context.Context, op func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = opTimeout

	err := backoff.Retry(func() error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		err := op(opCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(backoff.WithContext(policy, ctx), transientAttempts-1))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return errors.Join(ErrUnavailable, err)
	}
}

func (s *GormStore) FindActiveTable(ctx context.Context, tableID, restaurantID uint) (*models.Table, error) {
	var table models.Table
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).
			Where("id = ? AND restaurant_id = ? AND is_active = ?", tableID, restaurantID, true).
			First(&table).Error
	})
	if err != nil {
		return nil, err
	}
	return &table, nil
}

func (s *GormStore) FindAssignedWaiter(ctx context.Context, tableID uint) (*uint, error) {
	var assignments []models.Assignment
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).
			Where("table_id = ?", tableID).
			Order("id ASC").
			Find(&assignments).Error
	})
	if err != nil {
		return nil, err
	}

	// First active assigned waiter wins; tables without one are fine.
	for _, a := range assignments {
		var waiter models.Waiter
		lookupErr := s.DB.WithContext(ctx).
			Where("id = ? AND is_active = ?", a.WaiterID, true).
			First(&waiter).Error
		if lookupErr == nil {
			id := waiter.ID
			return &id, nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, errors.Join(ErrUnavailable, lookupErr)
		}
	}
	return nil, nil
}

func (s *GormStore) CreateCall(ctx context.Context, call *models.Call) error {
	return retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Create(call).Error
	})
}

func (s *GormStore) GetCall(ctx context.Context, id uint) (*models.Call, error) {
	var call models.Call
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).First(&call, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// ConditionalUpdateCall is the single concurrency-control primitive for call
// mutation: one UPDATE guarded by the expected pre-state. RowsAffected == 0
// means another actor got there first (or the call is gone).
func (s *GormStore) ConditionalUpdateCall(ctx context.Context, id uint, expected models.CallStatus, patch Patch) (*models.Call, bool, error) {
	won := false
	err := retry(ctx, func(ctx context.Context) error {
		res := s.DB.WithContext(ctx).
			Model(&models.Call{}).
			Where("id = ? AND status = ?", id, models.NormalizeStatus(expected)).
			Updates(map[string]interface{}(patch))
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	call, err := s.GetCall(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return call, won, nil
}

// activeFirstExpr sorts calls still needing attention ahead of the finished
// group. Built from the model's active set so the two cannot drift apart.
var activeFirstExpr = func() string {
	quoted := make([]string, 0, len(models.ActiveStatuses()))
	for _, st := range models.ActiveStatuses() {
		quoted = append(quoted, "'"+string(st)+"'")
	}
	return "CASE WHEN status IN (" + strings.Join(quoted, ",") + ") THEN 0 ELSE 1 END"
}()

func (s *GormStore) QueryCalls(ctx context.Context, restaurantID uint, statuses []models.CallStatus, limit int) ([]models.Call, error) {
	var calls []models.Call
	err := retry(ctx, func(ctx context.Context) error {
		q := s.DB.WithContext(ctx).Where("restaurant_id = ?", restaurantID)
		if len(statuses) > 0 {
			q = q.Where("status IN ?", expandLegacy(statuses))
		}
		// Active work first, newest first within each group.
		return q.
			Order(activeFirstExpr).
			Order("requested_at DESC").
			Limit(limit).
			Find(&calls).Error
	})
	if err != nil {
		return nil, err
	}
	return calls, nil
}

// expandLegacy widens a COMPLETED filter to also match rows persisted before
// the HANDLED alias was retired.
func expandLegacy(statuses []models.CallStatus) []string {
	out := make([]string, 0, len(statuses)+1)
	for _, st := range statuses {
		st = models.NormalizeStatus(st)
		out = append(out, string(st))
		if st == models.CallCompleted {
			out = append(out, "HANDLED")
		}
	}
	return out
}

func (s *GormStore) ExpiredPending(ctx context.Context, restaurantID uint, now time.Time) ([]models.Call, error) {
	var calls []models.Call
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).
			Where("restaurant_id = ? AND status = ? AND timeout_at < ? AND missed_at IS NULL",
				restaurantID, models.CallPending, now).
			Find(&calls).Error
	})
	if err != nil {
		return nil, err
	}
	return calls, nil
}

func (s *GormStore) ActiveWaiters(ctx context.Context, restaurantID uint) ([]models.Waiter, error) {
	var waiters []models.Waiter
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).
			Where("restaurant_id = ? AND is_active = ?", restaurantID, true).
			Find(&waiters).Error
	})
	if err != nil {
		return nil, err
	}
	return waiters, nil
}

func (s *GormStore) SubscriptionsForWaiter(ctx context.Context, waiterID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Where("waiter_id = ?", waiterID).Find(&subs).Error
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *GormStore) SaveSubscription(ctx context.Context, sub *models.PushSubscription) error {
	return retry(ctx, func(ctx context.Context) error {
		var existing models.PushSubscription
		err := s.DB.WithContext(ctx).Where("endpoint = ?", sub.Endpoint).First(&existing).Error
		if err == nil {
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
			return s.DB.WithContext(ctx).Save(sub).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return s.DB.WithContext(ctx).Create(sub).Error
	})
}

func (s *GormStore) DeleteSubscription(ctx context.Context, id uint) error {
	return retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Delete(&models.PushSubscription{}, id).Error
	})
}

func (s *GormStore) Settings(ctx context.Context, restaurantID uint) (*models.RestaurantSetting, error) {
	var setting models.RestaurantSetting
	err := s.DB.WithContext(ctx).Where("restaurant_id = ?", restaurantID).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unconfigured restaurants get the defaults.
		return &models.RestaurantSetting{
			RestaurantID:   restaurantID,
			FallbackNotify: models.FallbackBroadcast,
		}, nil
	}
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return &setting, nil
}

func (s *GormStore) RestaurantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := retry(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Model(&models.Restaurant{}).Pluck("id", &ids).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
