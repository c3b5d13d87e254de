package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/monitoring"
	"github.com/yeremiapane/waitercall/realtime"
	"github.com/yeremiapane/waitercall/store"
	"github.com/yeremiapane/waitercall/utils"
)

// CallService owns the call status state machine. Every mutation goes through
// the store's conditional update; a lost race is always reported as
// ErrConflict, never swallowed.
type CallService struct {
	store      store.Store
	transport  realtime.Transport
	dispatcher *Dispatcher
	sweeper    *Sweeper
	slaWindow  time.Duration
	listLimit  int
}

func NewCallService(st store.Store, transport realtime.Transport, dispatcher *Dispatcher, sweeper *Sweeper, slaWindow time.Duration, listLimit int) *CallService {
	if listLimit <= 0 {
		listLimit = 100
	}
	return &CallService{
		store:      st,
		transport:  transport,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		slaWindow:  slaWindow,
		listLimit:  listLimit,
	}
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrConflict
	case errors.Is(err, store.ErrUnavailable):
		return ErrUnavailable
	default:
		return err
	}
}

// Create validates the table, resolves the default waiter from assignments and
// persists a PENDING call. Notification dispatch and the INSERT event are
// fired after the write and cannot fail the creation: persistence is the only
// success signal.
func (s *CallService) Create(ctx context.Context, tableID, restaurantID uint, idempotencyKey *string) (*models.Call, error) {
	if tableID == 0 || restaurantID == 0 {
		return nil, fmt.Errorf("%w: table_id and restaurant_id are required", ErrValidation)
	}

	table, err := s.store.FindActiveTable(ctx, tableID, restaurantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active table %d in restaurant %d", ErrNotFound, tableID, restaurantID)
		}
		return nil, mapStoreErr(err)
	}

	waiterID, err := s.store.FindAssignedWaiter(ctx, tableID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	now := time.Now()
	call := &models.Call{
		RestaurantID:   restaurantID,
		TableID:        tableID,
		WaiterID:       waiterID,
		Status:         models.CallPending,
		IdempotencyKey: idempotencyKey,
		RequestedAt:    now,
		TimeoutAt:      now.Add(s.slaFor(ctx, restaurantID)),
	}
	if err := s.store.CreateCall(ctx, call); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: duplicate idempotency key", ErrConflict)
		}
		return nil, mapStoreErr(err)
	}

	monitoring.TrackCallCreated(strconv.FormatUint(uint64(restaurantID), 10))

	// Fire-and-forget: notification failure is the dispatcher's problem.
	if s.dispatcher != nil {
		callCopy := *call
		tableCopy := *table
		go s.dispatcher.Dispatch(context.Background(), &callCopy, &tableCopy)
	}
	s.publish(realtime.EventInsert, call)

	return call, nil
}

// Acknowledge claims a PENDING or MISSED call for the acting waiter. First
// acknowledger wins: the conditional update decides the race.
func (s *CallService) Acknowledge(ctx context.Context, callID, actorWaiterID uint) (*models.Call, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	from := call.Status
	if !models.CanTransition(from, models.CallAcknowledged) {
		return nil, fmt.Errorf("%w: cannot acknowledge a %s call", ErrConflict, from)
	}

	now := time.Now()
	updated, won, err := s.store.ConditionalUpdateCall(ctx, callID, from, store.Patch{
		"status":           models.CallAcknowledged,
		"waiter_id":        actorWaiterID,
		"acknowledged_at":  now,
		"missed_at":        nil,
		"response_time_ms": now.Sub(call.RequestedAt).Milliseconds(),
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !won {
		monitoring.TrackConflict()
		return nil, fmt.Errorf("%w: call %d was claimed by someone else", ErrConflict, callID)
	}

	monitoring.TrackTransition(string(models.CallAcknowledged))
	s.publish(realtime.EventUpdate, updated)
	return updated, nil
}

// Start moves an acknowledged call to IN_PROGRESS.
func (s *CallService) Start(ctx context.Context, callID, actorWaiterID uint, admin bool) (*models.Call, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !models.CanTransition(call.Status, models.CallInProgress) {
		return nil, fmt.Errorf("%w: cannot start a %s call", ErrConflict, call.Status)
	}
	if !admin && (call.WaiterID == nil || *call.WaiterID != actorWaiterID) {
		return nil, fmt.Errorf("%w: call %d belongs to another waiter", ErrForbidden, callID)
	}

	updated, won, err := s.store.ConditionalUpdateCall(ctx, callID, call.Status, store.Patch{
		"status": models.CallInProgress,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !won {
		monitoring.TrackConflict()
		return nil, fmt.Errorf("%w: call %d changed state concurrently", ErrConflict, callID)
	}

	monitoring.TrackTransition(string(models.CallInProgress))
	s.publish(realtime.EventUpdate, updated)
	return updated, nil
}

// Resolve completes a call. Only the owning waiter (or an admin) may do it.
func (s *CallService) Resolve(ctx context.Context, callID, actorWaiterID uint, admin bool) (*models.Call, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	from := call.Status
	if !models.CanTransition(from, models.CallCompleted) {
		return nil, fmt.Errorf("%w: cannot resolve a %s call", ErrConflict, from)
	}
	if !admin && (call.WaiterID == nil || *call.WaiterID != actorWaiterID) {
		return nil, fmt.Errorf("%w: call %d belongs to another waiter", ErrForbidden, callID)
	}

	now := time.Now()
	updated, won, err := s.store.ConditionalUpdateCall(ctx, callID, from, store.Patch{
		"status":           models.CallCompleted,
		"completed_at":     now,
		"response_time_ms": now.Sub(call.RequestedAt).Milliseconds(),
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !won {
		monitoring.TrackConflict()
		return nil, fmt.Errorf("%w: call %d changed state concurrently", ErrConflict, callID)
	}

	monitoring.TrackTransition(string(models.CallCompleted))
	s.publish(realtime.EventUpdate, updated)
	return updated, nil
}

// Cancel is admin-only and allowed from any non-terminal state. CANCELLED is
// terminal, so the response time is recorded here too.
func (s *CallService) Cancel(ctx context.Context, callID uint) (*models.Call, error) {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !models.CanTransition(call.Status, models.CallCancelled) {
		return nil, fmt.Errorf("%w: call %d is already %s", ErrConflict, callID, call.Status)
	}

	now := time.Now()
	updated, won, err := s.store.ConditionalUpdateCall(ctx, callID, call.Status, store.Patch{
		"status":           models.CallCancelled,
		"response_time_ms": now.Sub(call.RequestedAt).Milliseconds(),
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !won {
		monitoring.TrackConflict()
		return nil, fmt.Errorf("%w: call %d changed state concurrently", ErrConflict, callID)
	}

	monitoring.TrackTransition(string(models.CallCancelled))
	s.publish(realtime.EventUpdate, updated)
	return updated, nil
}

// List sweeps expired calls for the restaurant first, then returns calls with
// active ones ahead of the finished group, newest first within each.
func (s *CallService) List(ctx context.Context, restaurantID uint, statusFilter *models.CallStatus) ([]models.Call, error) {
	if restaurantID == 0 {
		return nil, fmt.Errorf("%w: restaurant_id is required", ErrValidation)
	}

	var statuses []models.CallStatus
	if statusFilter != nil {
		st := models.NormalizeStatus(*statusFilter)
		if !models.ValidStatus(st) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *statusFilter)
		}
		statuses = append(statuses, st)
	}

	if s.sweeper != nil {
		if _, err := s.sweeper.Sweep(ctx, restaurantID); err != nil {
			// Staleness is acceptable; the read must not fail on sweep trouble.
			utils.ErrorLogger.Printf("sweep before list failed for restaurant %d: %v", restaurantID, err)
		}
	}

	calls, err := s.store.QueryCalls(ctx, restaurantID, statuses, s.listLimit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return calls, nil
}

func (s *CallService) slaFor(ctx context.Context, restaurantID uint) time.Duration {
	setting, err := s.store.Settings(ctx, restaurantID)
	if err == nil && setting.SLASeconds != nil && *setting.SLASeconds > 0 {
		return time.Duration(*setting.SLASeconds) * time.Second
	}
	return s.slaWindow
}

func (s *CallService) publish(eventType string, call *models.Call) {
	if s.transport == nil {
		return
	}
	s.transport.Publish(realtime.Channel(call.RestaurantID), realtime.Event{
		Type: eventType,
		Call: *call,
	})
}
