package realtime

import (
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/waitercall/models"
)

func TestRedisTransportPublish(t *testing.T) {
	client, mock := redismock.NewClientMock()
	transport := NewRedisTransport(client)

	ev := Event{Type: EventInsert, Call: models.Call{ID: 7, RestaurantID: 1, Status: models.CallPending}}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectPublish(Channel(1), payload).SetVal(1)
	transport.Publish(Channel(1), ev)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisTransportPublishErrorIsSwallowed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	transport := NewRedisTransport(client)

	ev := Event{Type: EventUpdate, Call: models.Call{ID: 8, RestaurantID: 2}}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectPublish(Channel(2), payload).SetErr(assert.AnError)
	// Publish logs and moves on; callers never see transport errors.
	transport.Publish(Channel(2), ev)

	assert.NoError(t, mock.ExpectationsWereMet())
}
