package controllers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/waitercall/config"
	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/realtime"
	"github.com/yeremiapane/waitercall/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame format pushed to staff clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

const (
	EventCallInsert = "call_insert"
	EventCallUpdate = "call_update"
	EventSnapshot   = "call_snapshot"
	EventHeartbeat  = "heartbeat"
)

type RealtimeController struct {
	Transport realtime.Transport
	Service   *services.CallService
	Cfg       *config.Config
}

func NewRealtimeController(transport realtime.Transport, service *services.CallService, cfg *config.Config) *RealtimeController {
	return &RealtimeController{Transport: transport, Service: service, Cfg: cfg}
}

// wsSink funnels events, heartbeats and polled snapshots onto one websocket.
// gorilla allows a single writer at a time, hence the mutex.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSink) write(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *wsSink) Deliver(ev realtime.Event) error {
	event := EventCallUpdate
	if ev.Type == realtime.EventInsert {
		event = EventCallInsert
	}
	return s.write(Message{Event: event, Data: ev.Call})
}

func (s *wsSink) Heartbeat() error {
	return s.write(Message{Event: EventHeartbeat})
}

func (s *wsSink) Snapshot(calls []models.Call) error {
	return s.write(Message{Event: EventSnapshot, Data: calls})
}

// CallsHandler hosts one connection manager per websocket session. The client
// answers heartbeats with "pong" and reports visibility with
// "hidden"/"visible"; everything else about the session lifecycle lives in
// the manager.
func (rc *RealtimeController) CallsHandler(c *gin.Context) {
	waiterIDVal, exists := c.Get("waiter_id")
	if !exists {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	waiterID, _ := waiterIDVal.(uint)
	restaurantIDVal, _ := c.Get("restaurant_id")
	restaurantID, _ := restaurantIDVal.(uint)
	if restaurantID == 0 {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	sink := &wsSink{conn: ws}
	mgr := realtime.NewConnManager(realtime.Options{
		Transport:    rc.Transport,
		Sink:         sink,
		RestaurantID: restaurantID,
		WaiterID:     &waiterID,
		Poller: func(ctx context.Context) ([]models.Call, error) {
			return rc.Service.List(ctx, restaurantID, nil)
		},
		ConnectTimeout:    rc.Cfg.ConnectTimeout,
		HeartbeatInterval: rc.Cfg.HeartbeatInterval,
		HealthThreshold:   rc.Cfg.HealthThreshold,
		Backoff: realtime.BackoffPolicy{
			Base:        rc.Cfg.ReconnectBase,
			MaxAttempts: rc.Cfg.MaxReconnectAttempts,
			Jitter:      0.2,
		},
		ProbeInterval:     rc.Cfg.ProbeInterval,
		PollInterval:      rc.Cfg.PollInterval,
		MaxHiddenDuration: rc.Cfg.MaxHiddenDuration,
	})
	defer mgr.Destroy()

	mgr.Connect()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if mgr.Destroyed() {
			break
		}
		switch string(data) {
		case "pong":
			mgr.Touch()
		case "hidden":
			mgr.SetActive(false)
		case "visible":
			mgr.SetActive(true)
		}
	}
}
