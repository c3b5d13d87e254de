package services

import (
	"context"
	"time"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/monitoring"
	"github.com/yeremiapane/waitercall/realtime"
	"github.com/yeremiapane/waitercall/store"
	"github.com/yeremiapane/waitercall/utils"
)

// Sweeper converts expired PENDING calls to MISSED. It uses the same
// conditional-update discipline as the lifecycle operations, so a sweep racing
// a concurrent acknowledge can only lose cleanly.
type Sweeper struct {
	store     store.Store
	transport realtime.Transport
}

func NewSweeper(st store.Store, transport realtime.Transport) *Sweeper {
	return &Sweeper{store: st, transport: transport}
}

// Sweep is idempotent: already-missed calls are excluded by the
// missed_at IS NULL predicate, so a second pass over unchanged data moves
// nothing.
func (s *Sweeper) Sweep(ctx context.Context, restaurantID uint) (int, error) {
	now := time.Now()
	expired, err := s.store.ExpiredPending(ctx, restaurantID, now)
	if err != nil {
		return 0, mapStoreErr(err)
	}

	count := 0
	for _, call := range expired {
		updated, won, err := s.store.ConditionalUpdateCall(ctx, call.ID, models.CallPending, store.Patch{
			"status":           models.CallMissed,
			"missed_at":        now,
			"response_time_ms": now.Sub(call.RequestedAt).Milliseconds(),
		})
		if err != nil {
			utils.ErrorLogger.Printf("sweep: transition call %d failed: %v", call.ID, err)
			continue
		}
		if !won {
			// A waiter acknowledged it between the read and the write.
			continue
		}

		count++
		if s.transport != nil {
			s.transport.Publish(realtime.Channel(restaurantID), realtime.Event{
				Type: realtime.EventUpdate,
				Call: *updated,
			})
		}
	}

	if count > 0 {
		monitoring.TrackSwept(count)
		utils.InfoLogger.Printf("sweep: %d call(s) missed in restaurant %d", count, restaurantID)
	}
	return count, nil
}

// SweepMonitor runs the sweeper across all restaurants on an interval, as a
// safety net for restaurants nobody is polling.
type SweepMonitor struct {
	Sweeper  *Sweeper
	Store    store.Store
	Interval time.Duration
	StopChan chan struct{}
}

func NewSweepMonitor(sweeper *Sweeper, st store.Store, interval time.Duration) *SweepMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SweepMonitor{
		Sweeper:  sweeper,
		Store:    st,
		Interval: interval,
		StopChan: make(chan struct{}),
	}
}

func (m *SweepMonitor) Start() {
	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweepAll()
			case <-m.StopChan:
				return
			}
		}
	}()
}

func (m *SweepMonitor) Stop() {
	close(m.StopChan)
}

func (m *SweepMonitor) sweepAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := m.Store.RestaurantIDs(ctx)
	if err != nil {
		utils.ErrorLogger.Printf("sweep monitor: list restaurants: %v", err)
		return
	}
	for _, id := range ids {
		if _, err := m.Sweeper.Sweep(ctx, id); err != nil {
			utils.ErrorLogger.Printf("sweep monitor: restaurant %d: %v", id, err)
		}
	}
}
