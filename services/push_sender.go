package services

import (
	"context"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/yeremiapane/waitercall/models"
)

// WebPushSender sends browser push notifications signed with the service's
// VAPID key pair.
type WebPushSender struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	Timeout    time.Duration
}

func NewWebPushSender(publicKey, privateKey, subscriber string) *WebPushSender {
	return &WebPushSender{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subscriber: subscriber,
		Timeout:    10 * time.Second,
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (SendOutcome, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.PublicKey,
		VAPIDPrivateKey: s.PrivateKey,
		Subscriber:      s.Subscriber,
		TTL:             60,
	})
	if err != nil {
		return SendTransient, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return SendOK, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The push service no longer knows this registration.
		return SendInvalid, nil
	default:
		return SendTransient, nil
	}
}
