package realtime

import (
	"fmt"

	"github.com/yeremiapane/waitercall/models"
)

// Event types mirror the mutation that produced them.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
)

type Event struct {
	Type string      `json:"type"`
	Call models.Call `json:"call"`
}

// Channel returns the per-restaurant fan-out channel name.
func Channel(restaurantID uint) string {
	return fmt.Sprintf("calls:%d", restaurantID)
}

// Relevant reports whether a subscriber acting for waiterID should see ev:
// calls assigned to them, unassigned calls anyone may claim, and every status
// update so the floor stays observable.
func Relevant(ev Event, waiterID *uint) bool {
	if ev.Type == EventUpdate {
		return true
	}
	if ev.Call.WaiterID == nil {
		return true
	}
	return waiterID != nil && *ev.Call.WaiterID == *waiterID
}

// Handler receives events for one subscription, in publish order.
type Handler func(Event)

// Handle identifies one live subscription so it can be released.
type Handle interface {
	Channel() string
}

// Transport is the fan-out fabric: the in-process Bus for a single node,
// RedisTransport across nodes. Delivery is at-most-once per subscription.
type Transport interface {
	Publish(channel string, ev Event)
	Subscribe(channel string, handler Handler) (Handle, error)
	Unsubscribe(h Handle)
}
