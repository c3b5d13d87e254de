package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/monitoring"
	"github.com/yeremiapane/waitercall/utils"
)

type ConnState string

const (
	StateDisconnected    ConnState = "DISCONNECTED"
	StateConnecting      ConnState = "CONNECTING"
	StateConnected       ConnState = "CONNECTED"
	StateReconnecting    ConnState = "RECONNECTING"
	StateDegradedPolling ConnState = "DEGRADED_POLLING"
)

// Timer names owned by a connection.
const (
	timerConnect   = "connect-timeout"
	timerHeartbeat = "heartbeat"
	timerReconnect = "reconnect"
	timerProbe     = "probe"
	timerPoll      = "poll"
	timerHidden    = "hidden-cleanup"
)

// Sink is the client-facing half of a session: pushed events, heartbeat
// pings and polled snapshots all leave through it. Acks come back via Touch.
type Sink interface {
	Deliver(ev Event) error
	Heartbeat() error
	Snapshot(calls []models.Call) error
}

// Poller queries current state when events cannot be delivered.
type Poller func(ctx context.Context) ([]models.Call, error)

type Options struct {
	Transport    Transport
	Sink         Sink
	Poller       Poller
	RestaurantID uint
	WaiterID     *uint

	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	HealthThreshold   time.Duration
	Backoff           BackoffPolicy
	ProbeInterval     time.Duration
	PollInterval      time.Duration
	MaxHiddenDuration time.Duration
}

func (o *Options) fillDefaults() {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.HealthThreshold == 0 {
		o.HealthThreshold = 3 * o.HeartbeatInterval
	}
	if o.Backoff.Base == 0 {
		o.Backoff.Base = time.Second
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff.MaxAttempts = 5
	}
	if o.ProbeInterval == 0 {
		o.ProbeInterval = 30 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.MaxHiddenDuration == 0 {
		o.MaxHiddenDuration = 5 * time.Minute
	}
}

// ConnManager drives one client session's realtime subscription. Each session
// owns exactly one manager; there is no process-wide instance. All timers it
// starts live in its TimerSet and die with it.
type ConnManager struct {
	ID   string
	opts Options

	mu           sync.Mutex
	state        ConnState
	handle       Handle
	timers       *TimerSet
	attempts     int
	lastActivity time.Time
	healthy      bool
	active       bool
	destroyed    bool
}

func NewConnManager(opts Options) *ConnManager {
	opts.fillDefaults()
	m := &ConnManager{
		ID:     uuid.NewString(),
		opts:   opts,
		state:  StateDisconnected,
		timers: NewTimerSet(),
		active: true,
	}
	monitoring.TrackConnectionOpen()
	return m
}

func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnManager) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// ReconnectAttempts reports how many reconnects the current outage has cost.
func (m *ConnManager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Touch records inbound activity (event or heartbeat ack).
func (m *ConnManager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = time.Now()
	m.healthy = true
}

// Connect establishes the subscription. Safe to call again after a teardown.
func (m *ConnManager) Connect() {
	m.mu.Lock()
	if m.destroyed || !m.active || m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.setState(StateConnecting)
	m.timers.Schedule(timerConnect, m.opts.ConnectTimeout, m.connectTimedOut)
	m.mu.Unlock()

	handle, err := m.opts.Transport.Subscribe(Channel(m.opts.RestaurantID), m.onEvent)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers.Cancel(timerConnect)

	if m.destroyed || !m.active {
		if handle != nil {
			m.opts.Transport.Unsubscribe(handle)
		}
		return
	}
	if err != nil {
		utils.ErrorLogger.Printf("connection %s: subscribe failed: %v", m.ID, err)
		m.scheduleReconnectLocked()
		return
	}

	m.handle = handle
	m.attempts = 0
	m.healthy = true
	m.lastActivity = time.Now()
	m.setState(StateConnected)
	m.timers.Cancel(timerPoll)
	m.timers.Cancel(timerProbe)
	m.timers.Schedule(timerHeartbeat, m.opts.HeartbeatInterval, m.heartbeat)
}

func (m *ConnManager) onEvent(ev Event) {
	if !Relevant(ev, m.opts.WaiterID) {
		return
	}
	m.Touch()
	if err := m.opts.Sink.Deliver(ev); err != nil {
		utils.ErrorLogger.Printf("connection %s: deliver failed: %v", m.ID, err)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.healthy = false
		m.scheduleReconnectLocked()
	}
}

func (m *ConnManager) heartbeat() {
	m.mu.Lock()
	if m.destroyed || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	stale := time.Since(m.lastActivity) > m.opts.HealthThreshold
	m.mu.Unlock()

	err := m.opts.Sink.Heartbeat()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || m.state != StateConnected {
		return
	}
	if err != nil || stale {
		m.healthy = false
		m.scheduleReconnectLocked()
		return
	}
	m.timers.Schedule(timerHeartbeat, m.opts.HeartbeatInterval, m.heartbeat)
}

func (m *ConnManager) connectTimedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || m.state != StateConnecting {
		return
	}
	utils.ErrorLogger.Printf("connection %s: connect timed out", m.ID)
	m.enterDegradedLocked()
}

// scheduleReconnectLocked tears the subscription down and arms the next
// backoff attempt: delay = base * 2^(attempt-1), bounded by MaxAttempts, then
// degraded polling. Caller holds m.mu.
func (m *ConnManager) scheduleReconnectLocked() {
	m.releaseLocked()
	m.attempts++
	if m.opts.Backoff.Exhausted(m.attempts) {
		m.enterDegradedLocked()
		return
	}
	m.setState(StateReconnecting)
	m.timers.Cancel(timerHeartbeat)
	m.timers.Schedule(timerReconnect, m.opts.Backoff.Delay(m.attempts), m.reconnect)
}

func (m *ConnManager) reconnect() {
	m.mu.Lock()
	if m.destroyed || !m.active || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.mu.Unlock()
	m.Connect()
}

// enterDegradedLocked switches to polling plus a slow reconnect probe.
// Caller holds m.mu.
func (m *ConnManager) enterDegradedLocked() {
	m.releaseLocked()
	m.setState(StateDegradedPolling)
	m.timers.Cancel(timerHeartbeat)
	m.timers.Cancel(timerReconnect)
	m.timers.Schedule(timerProbe, m.opts.ProbeInterval, m.probe)
	if m.opts.Poller != nil {
		m.timers.Schedule(timerPoll, m.opts.PollInterval, m.poll)
	}
}

func (m *ConnManager) probe() {
	m.mu.Lock()
	if m.destroyed || !m.active || m.state != StateDegradedPolling {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.attempts = 0
	m.mu.Unlock()

	m.Connect()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.destroyed && m.state != StateConnected && m.state != StateConnecting {
		m.enterDegradedLocked()
	}
}

func (m *ConnManager) poll() {
	m.mu.Lock()
	if m.destroyed || m.state != StateDegradedPolling {
		m.mu.Unlock()
		return
	}
	m.timers.Schedule(timerPoll, m.opts.PollInterval, m.poll)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	calls, err := m.opts.Poller(ctx)
	if err != nil {
		utils.ErrorLogger.Printf("connection %s: poll failed: %v", m.ID, err)
		return
	}
	if err := m.opts.Sink.Snapshot(calls); err != nil {
		utils.ErrorLogger.Printf("connection %s: snapshot failed: %v", m.ID, err)
	}
}

// SetActive feeds the host's visibility signal in. Hidden sessions release
// their subscription and timers immediately; a session hidden longer than
// MaxHiddenDuration is destroyed and the host must build a fresh manager.
func (m *ConnManager) SetActive(active bool) {
	m.mu.Lock()
	if m.destroyed || m.active == active {
		m.mu.Unlock()
		return
	}
	m.active = active

	if !active {
		m.releaseLocked()
		m.timers.CancelAll()
		m.setState(StateDisconnected)
		m.timers.Schedule(timerHidden, m.opts.MaxHiddenDuration, m.Destroy)
		m.mu.Unlock()
		return
	}

	m.timers.Cancel(timerHidden)
	m.attempts = 0
	m.mu.Unlock()
	m.Connect()
}

// Destroy is idempotent and safe after partial construction: it cancels every
// owned timer and releases the subscription so nothing dangles in the bus.
func (m *ConnManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.releaseLocked()
	m.timers.CancelAll()
	m.state = StateDisconnected
	monitoring.TrackConnectionClosed()
}

// releaseLocked drops the current subscription, if any. Caller holds m.mu.
func (m *ConnManager) releaseLocked() {
	if m.handle != nil {
		m.opts.Transport.Unsubscribe(m.handle)
		m.handle = nil
	}
}

// setState records a transition. Caller holds m.mu.
func (m *ConnManager) setState(s ConnState) {
	if m.state == s {
		return
	}
	m.state = s
	monitoring.TrackConnectionState(string(s))
}
