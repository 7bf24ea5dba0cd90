package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ActivityChannel carries dashboard-wide activity events.
const ActivityChannel = "activity"

// Bus fans workflow events out over Redis pub/sub. Per-request channels
// let callers watch a single request; the activity channel feeds the
// dashboard's live feed.
type Bus struct {
	rdb   *redis.Client
	log   *zap.Logger
	ctx   context.Context
	wsHub WSHub
}

type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb: rdb,
		log: log,
		ctx: context.Background(),
	}
}

// SetWSHub sets the WebSocket hub for event broadcasting
func (b *Bus) SetWSHub(hub WSHub) {
	b.wsHub = hub
}

// PublishRequest publishes an event to a request's channel
func (b *Bus) PublishRequest(requestID string, event map[string]interface{}) error {
	channel := "request:" + requestID
	return b.Publish(channel, event)
}

// PublishActivity publishes an event to the shared activity channel
func (b *Bus) PublishActivity(event map[string]interface{}) error {
	return b.Publish(ActivityChannel, event)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(channel string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = b.rdb.Publish(b.ctx, channel, data).Err()
	if err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	// Broadcast to WebSocket hub if available
	if b.wsHub != nil {
		b.wsHub.Publish(channel, event)
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.String("event", string(data)))
	return nil
}
