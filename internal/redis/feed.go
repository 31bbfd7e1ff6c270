package redis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"zonewatch/internal/logger"
)

// Change scopes carried on the feed.
const (
	ScopePersonality = "personality"
	ScopeSessions    = "sessions"
)

// Change announces that a persisted document was rewritten by some process.
type Change struct {
	Origin string `json:"origin"`
	Scope  string `json:"scope"`
	ID     string `json:"id,omitempty"`
}

// Feed broadcasts document changes between service instances sharing storage.
type Feed struct {
	client  *Client
	channel string
	origin  string
	log     logger.Logger
}

// NewFeed publishes on "<namespace>:changes".
func NewFeed(client *Client, namespace string, log logger.Logger) *Feed {
	if namespace == "" {
		namespace = "zonewatch"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Feed{
		client:  client,
		channel: namespace + ":changes",
		origin:  uuid.NewString(),
		log:     log,
	}
}

// Origin identifies this process on the feed.
func (f *Feed) Origin() string {
	return f.origin
}

// Publish announces a change. Failures are logged, never returned to the caller path.
func (f *Feed) Publish(ctx context.Context, scope, id string) {
	if f == nil {
		return
	}
	payload, err := json.Marshal(Change{Origin: f.origin, Scope: scope, ID: id})
	if err != nil {
		f.log.Error("redis", "marshal change failed", map[string]any{"error": err})
		return
	}
	if err := f.client.Publish(ctx, f.channel, payload); err != nil {
		f.log.Warn("redis", "publish change failed", map[string]any{"error": err.Error(), "scope": scope})
	}
}

// Listen subscribes and calls handler for changes from other origins until ctx ends.
// The returned channel is closed once the subscription is live.
func (f *Feed) Listen(ctx context.Context, handler func(Change)) (<-chan struct{}, error) {
	pubsub, err := f.client.Subscribe(ctx, f.channel)
	if err != nil {
		return nil, err
	}
	ready := make(chan struct{})
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		close(ready)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.log.Warn("redis", "decode change failed", map[string]any{"error": err.Error()})
					continue
				}
				if change.Origin == f.origin {
					continue
				}
				handler(change)
			}
		}
	}()
	return ready, nil
}
