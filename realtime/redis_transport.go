package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/yeremiapane/waitercall/utils"
)

// RedisTransport carries events over redis pub/sub so several service
// instances fan out to each other's subscribers.
type RedisTransport struct {
	client *redis.Client
}

type redisSub struct {
	channel string
	pubsub  *redis.PubSub
}

func (s *redisSub) Channel() string { return s.channel }

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(channel string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		utils.ErrorLogger.Printf("realtime: marshal event for %s: %v", channel, err)
		return
	}
	if err := t.client.Publish(context.Background(), channel, payload).Err(); err != nil {
		utils.ErrorLogger.Printf("realtime: publish to %s: %v", channel, err)
	}
}

func (t *RedisTransport) Subscribe(channel string, handler Handler) (Handle, error) {
	pubsub := t.client.Subscribe(context.Background(), channel)

	// Fail fast if the subscription could not be established.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				utils.ErrorLogger.Printf("realtime: decode event on %s: %v", channel, err)
				continue
			}
			handler(ev)
		}
	}()

	return &redisSub{channel: channel, pubsub: pubsub}, nil
}

func (t *RedisTransport) Unsubscribe(h Handle) {
	s, ok := h.(*redisSub)
	if !ok {
		return
	}
	if err := s.pubsub.Close(); err != nil {
		utils.ErrorLogger.Printf("realtime: close subscription on %s: %v", s.channel, err)
	}
}
