package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/monitoring"
	"github.com/yeremiapane/waitercall/store"
	"github.com/yeremiapane/waitercall/utils"
)

type SendOutcome int

const (
	SendOK SendOutcome = iota
	SendTransient
	SendInvalid
)

// PushSender delivers one payload to one subscription. SendInvalid means the
// registration is permanently gone and must be pruned, not retried.
type PushSender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) (SendOutcome, error)
}

type DispatchResult struct {
	Sent                 int
	Failed               int
	InvalidSubscriptions []uint
}

// Dispatcher resolves who should hear about a new call and pushes to their
// registered subscriptions. It is strictly best-effort: it logs and counts,
// it never errors back into the call-creation path.
type Dispatcher struct {
	store       store.Store
	sender      PushSender
	maxAttempts uint64
	backoffBase time.Duration
}

func NewDispatcher(st store.Store, sender PushSender, maxAttempts int, backoffBase time.Duration) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	return &Dispatcher{
		store:       st,
		sender:      sender,
		maxAttempts: uint64(maxAttempts),
		backoffBase: backoffBase,
	}
}

type callNotification struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CallID      uint      `json:"call_id"`
	TableNumber string    `json:"table_number"`
	RequestedAt time.Time `json:"requested_at"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, call *models.Call, table *models.Table) DispatchResult {
	var result DispatchResult

	recipients, err := d.recipients(ctx, call)
	if err != nil {
		utils.ErrorLogger.Printf("dispatch call %d: resolve recipients: %v", call.ID, err)
		return result
	}
	if len(recipients) == 0 {
		return result
	}

	payload, err := json.Marshal(callNotification{
		Title:       "Table call",
		Body:        fmt.Sprintf("Table %s is calling", table.TableNumber),
		CallID:      call.ID,
		TableNumber: table.TableNumber,
		RequestedAt: call.RequestedAt,
	})
	if err != nil {
		utils.ErrorLogger.Printf("dispatch call %d: marshal payload: %v", call.ID, err)
		return result
	}

	for _, waiterID := range recipients {
		subs, err := d.store.SubscriptionsForWaiter(ctx, waiterID)
		if err != nil {
			utils.ErrorLogger.Printf("dispatch call %d: load subscriptions for waiter %d: %v", call.ID, waiterID, err)
			result.Failed++
			continue
		}
		for _, sub := range subs {
			switch d.sendWithRetry(ctx, sub, payload) {
			case SendOK:
				result.Sent++
			case SendInvalid:
				result.InvalidSubscriptions = append(result.InvalidSubscriptions, sub.ID)
				if err := d.store.DeleteSubscription(ctx, sub.ID); err != nil {
					utils.ErrorLogger.Printf("dispatch call %d: prune subscription %d: %v", call.ID, sub.ID, err)
				}
			default:
				result.Failed++
			}
		}
	}

	monitoring.TrackDispatch("sent", result.Sent)
	monitoring.TrackDispatch("failed", result.Failed)
	monitoring.TrackDispatch("invalid", len(result.InvalidSubscriptions))
	utils.InfoLogger.Printf("dispatch call %d: sent=%d failed=%d invalid=%d",
		call.ID, result.Sent, result.Failed, len(result.InvalidSubscriptions))
	return result
}

// recipients is the assigned waiter when there is one; otherwise the
// restaurant's fallback policy decides between broadcasting to every active
// waiter and staying silent.
func (d *Dispatcher) recipients(ctx context.Context, call *models.Call) ([]uint, error) {
	if call.WaiterID != nil {
		return []uint{*call.WaiterID}, nil
	}

	setting, err := d.store.Settings(ctx, call.RestaurantID)
	if err != nil {
		return nil, err
	}
	if setting.FallbackNotify != models.FallbackBroadcast {
		return nil, nil
	}

	waiters, err := d.store.ActiveWaiters(ctx, call.RestaurantID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(waiters))
	for _, w := range waiters {
		ids = append(ids, w.ID)
	}
	return ids, nil
}

var errInvalidSubscription = errors.New("subscription invalid")

func (d *Dispatcher) sendWithRetry(ctx context.Context, sub models.PushSubscription, payload []byte) SendOutcome {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.backoffBase

	err := backoff.Retry(func() error {
		outcome, err := d.sender.Send(ctx, sub, payload)
		switch outcome {
		case SendOK:
			return nil
		case SendInvalid:
			return backoff.Permanent(errInvalidSubscription)
		default:
			if err == nil {
				err = errors.New("transient send failure")
			}
			return err
		}
	}, backoff.WithMaxRetries(backoff.WithContext(policy, ctx), d.maxAttempts-1))

	switch {
	case err == nil:
		return SendOK
	case errors.Is(err, errInvalidSubscription):
		return SendInvalid
	default:
		utils.ErrorLogger.Printf("dispatch: subscription %d gave up after %d attempts: %v", sub.ID, d.maxAttempts, err)
		return SendTransient
	}
}
