// Package notifications delivers lifecycle events to the users they concern.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"helpmatch/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const userChannelPattern = "notifications:user:%d"

// Envelope is the wire form of a delivered notification.
type Envelope struct {
	ID             string                  `json:"id"`
	NotificationID uint                    `json:"notification_id,omitempty"`
	UserID         uint                    `json:"user_id"`
	Kind           models.NotificationKind `json:"kind"`
	RequestID      uint                    `json:"request_id"`
	SubjectType    string                  `json:"subject_type"`
	SubjectID      uint                    `json:"subject_id"`
	ActorID        uint                    `json:"actor_id,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// NewEnvelope wraps ev with a fresh delivery id.
func NewEnvelope(ev models.NotificationEvent) Envelope {
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Envelope{
		ID:             uuid.NewString(),
		NotificationID: ev.ID,
		UserID:         ev.UserID,
		Kind:           ev.Kind,
		RequestID:      ev.RequestID,
		SubjectType:    ev.SubjectType,
		SubjectID:      ev.SubjectID,
		ActorID:        ev.ActorID,
		CreatedAt:      created,
	}
}

// UserChannel is the Redis channel a user's notifications are published on.
func UserChannel(userID uint) string {
	return fmt.Sprintf(userChannelPattern, userID)
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Name identifies the notifier in metrics.
func (n *Notifier) Name() string { return "redis" }

// Deliver publishes env on the recipient's channel.
func (n *Notifier) Deliver(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.PublishUser(ctx, env.UserID, string(payload))
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// SubscribeUser returns decoded envelopes published for userID until ctx ends.
// The subscription is confirmed before SubscribeUser returns.
func (n *Notifier) SubscribeUser(ctx context.Context, userID uint) (<-chan Envelope, error) {
	if n.rdb == nil {
		return nil, fmt.Errorf("notifier has no redis client")
	}
	sub := n.rdb.Subscribe(ctx, UserChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", UserChannel(userID), err)
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
