package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/waitercall/models"
)

type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	var a, b eventCollector

	_, err := bus.Subscribe(Channel(1), a.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(Channel(1), b.handle)
	require.NoError(t, err)

	bus.Publish(Channel(1), Event{Type: EventInsert, Call: models.Call{ID: 1}})

	assert.Eventually(t, func() bool {
		return len(a.snapshot()) == 1 && len(b.snapshot()) == 1
	}, time.Second, time.Millisecond)
}

func TestBusChannelIsolation(t *testing.T) {
	bus := NewBus()
	var a eventCollector

	_, err := bus.Subscribe(Channel(1), a.handle)
	require.NoError(t, err)

	bus.Publish(Channel(2), Event{Type: EventInsert, Call: models.Call{ID: 1}})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, a.snapshot())
}

func TestBusPerSubscriberOrder(t *testing.T) {
	bus := NewBus()
	var c eventCollector

	_, err := bus.Subscribe(Channel(1), c.handle)
	require.NoError(t, err)

	for i := uint(1); i <= 10; i++ {
		bus.Publish(Channel(1), Event{Type: EventUpdate, Call: models.Call{ID: i}})
	}

	require.Eventually(t, func() bool { return len(c.snapshot()) == 10 }, time.Second, time.Millisecond)
	for i, ev := range c.snapshot() {
		assert.Equal(t, uint(i+1), ev.Call.ID)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	var c eventCollector

	handle, err := bus.Subscribe(Channel(1), c.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.SubscriberCount(Channel(1)))

	bus.Unsubscribe(handle)
	assert.Equal(t, 0, bus.SubscriberCount(Channel(1)))

	bus.Publish(Channel(1), Event{Type: EventInsert})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.snapshot())

	// A second release is harmless.
	bus.Unsubscribe(handle)
}

func TestRelevantFilter(t *testing.T) {
	me := uint(1)
	other := uint(2)

	assigned := func(w uint) Event {
		return Event{Type: EventInsert, Call: models.Call{WaiterID: &w}}
	}

	// Updates reach everyone.
	assert.True(t, Relevant(Event{Type: EventUpdate, Call: models.Call{WaiterID: &other}}, &me))
	// Unassigned inserts reach everyone.
	assert.True(t, Relevant(Event{Type: EventInsert}, &me))
	assert.True(t, Relevant(Event{Type: EventInsert}, nil))
	// Assigned inserts reach only the assignee.
	assert.True(t, Relevant(assigned(me), &me))
	assert.False(t, Relevant(assigned(other), &me))
	assert.False(t, Relevant(assigned(other), nil))
}
