package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON the service worker receives.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`

	Urgent bool `json:"-"`
}

// Service sends web push notifications signed with VAPID keys.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
}

func NewService(publicKey, privateKey, subscriber string) *Service {
	if subscriber == "" {
		subscriber = "mailto:noreply@familybank.local"
	}
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		ttl:        int((24 * time.Hour).Seconds()),
	}
}

func (s *Service) Configured() bool {
	return s != nil && s.publicKey != "" && s.privateKey != ""
}

// VAPIDPublicKey returns the key browsers need to subscribe.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send delivers payload to one device. Penalties are sent with high urgency
// so phones wake for them; everything else is normal.
func (s *Service) Send(ctx context.Context, sub model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	urgency := webpush.UrgencyNormal
	if payload.Urgent {
		urgency = webpush.UrgencyHigh
	}
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dhKey, Auth: sub.AuthKey},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, data, target, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
		Urgency:         urgency,
	})
	if err != nil {
		return fmt.Errorf("send push to %s: %w", sub.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys returns a new P-256 key pair, both halves base64url
// encoded as browsers and VAPID_* settings expect.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
