package realtime

import (
	"sync"
)

const subscriberQueueSize = 64

// Bus is the in-process transport: a set of subscribers per channel, each with
// its own buffered queue drained by its own goroutine so one slow consumer
// cannot stall the rest and per-subscriber publish order is preserved. A full
// queue drops the event; reconnect or polling covers the gap.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[*busSub]struct{}
}

type busSub struct {
	channel string
	handler Handler
	queue   chan Event
	done    chan struct{}
	once    sync.Once
}

func (s *busSub) Channel() string { return s.channel }

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[*busSub]struct{}),
	}
}

func (b *Bus) Publish(channel string, ev Event) {
	b.mu.Lock()
	targets := make([]*busSub, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.queue <- ev:
		default:
			// At-most-once: a saturated subscriber misses this event.
		}
	}
}

func (b *Bus) Subscribe(channel string, handler Handler) (Handle, error) {
	s := &busSub{
		channel: channel,
		handler: handler,
		queue:   make(chan Event, subscriberQueueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*busSub]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()

	go s.drain()
	return s, nil
}

func (b *Bus) Unsubscribe(h Handle) {
	s, ok := h.(*busSub)
	if !ok {
		return
	}

	b.mu.Lock()
	if set, exists := b.subs[s.channel]; exists {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.channel)
		}
	}
	b.mu.Unlock()

	s.once.Do(func() { close(s.done) })
}

// SubscriberCount reports live subscriptions on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (s *busSub) drain() {
	for {
		select {
		case ev := <-s.queue:
			s.handler(ev)
		case <-s.done:
			return
		}
	}
}
