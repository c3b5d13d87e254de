package controllers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/waitercall/controllers"
	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/realtime"
)

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/calls?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) controllers.Message {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var raw struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&raw))
	return controllers.Message{Event: raw.Event, Data: raw.Data}
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := setupAPI(t, 100)
	server := httptest.NewServer(f.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/calls"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketReceivesCallEvents(t *testing.T) {
	f := setupAPI(t, 100)
	f.seedFloor(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn := dialWS(t, server, waiterToken(t, 1))
	defer conn.Close()

	// Give the session a moment to subscribe before publishing.
	require.Eventually(t, func() bool {
		return f.transport.(*realtime.Bus).SubscriberCount(realtime.Channel(1)) == 1
	}, time.Second, time.Millisecond)

	waiterID := uint(1)
	f.transport.Publish(realtime.Channel(1), realtime.Event{
		Type: realtime.EventInsert,
		Call: models.Call{ID: 7, RestaurantID: 1, TableID: 1, WaiterID: &waiterID, Status: models.CallPending},
	})

	msg := readMessage(t, conn)
	assert.Equal(t, controllers.EventCallInsert, msg.Event)

	var call models.Call
	require.NoError(t, json.Unmarshal(msg.Data.(json.RawMessage), &call))
	assert.Equal(t, uint(7), call.ID)
	assert.Equal(t, models.CallPending, call.Status)

	// Updates reach the session regardless of assignment.
	other := uint(2)
	f.transport.Publish(realtime.Channel(1), realtime.Event{
		Type: realtime.EventUpdate,
		Call: models.Call{ID: 8, RestaurantID: 1, WaiterID: &other, Status: models.CallAcknowledged},
	})
	msg = readMessage(t, conn)
	assert.Equal(t, controllers.EventCallUpdate, msg.Event)
}

func TestWebSocketFiltersForeignAssignments(t *testing.T) {
	f := setupAPI(t, 100)
	f.seedFloor(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn := dialWS(t, server, waiterToken(t, 1))
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.transport.(*realtime.Bus).SubscriberCount(realtime.Channel(1)) == 1
	}, time.Second, time.Millisecond)

	// An insert assigned to another waiter is withheld; the next visible
	// frame is the unassigned insert that follows it.
	other := uint(2)
	f.transport.Publish(realtime.Channel(1), realtime.Event{
		Type: realtime.EventInsert,
		Call: models.Call{ID: 9, RestaurantID: 1, WaiterID: &other, Status: models.CallPending},
	})
	f.transport.Publish(realtime.Channel(1), realtime.Event{
		Type: realtime.EventInsert,
		Call: models.Call{ID: 10, RestaurantID: 1, Status: models.CallPending},
	})

	msg := readMessage(t, conn)
	assert.Equal(t, controllers.EventCallInsert, msg.Event)
	var call models.Call
	require.NoError(t, json.Unmarshal(msg.Data.(json.RawMessage), &call))
	assert.Equal(t, uint(10), call.ID)
}
