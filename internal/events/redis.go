package events

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis channel used when none is configured
const DefaultChannel = "zboard:events"

// redisPublishing is the part of a redis client RedisPublisher needs
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type redisPublishing interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes events as JSON on a redis pub/sub channel
type RedisPublisher struct {
	client  redisPublishing
	channel string
}

// NewRedisPublisher creates a publisher writing to channel through client
func NewRedisPublisher(client redisPublishing, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Channel returns the redis channel events are published on
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish encodes e and sends it to the channel
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// Relay forwards events arriving on msgs into dst until ctx is done or msgs
// is closed. Messages that do not decode are logged and skipped.
//
//	sub := rdb.Subscribe(ctx, channel)
//	defer sub.Close()
//	go events.Relay(ctx, sub.Channel(), hub, logger)
func Relay(ctx context.Context, msgs <-chan *redis.Message, dst Publisher, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				logger.Warn("dropping undecodable event", "channel", msg.Channel, "err", err)
				continue
			}
			if err := dst.Publish(ctx, e); err != nil {
				logger.Warn("relaying event", "type", e.Type, "err", err)
			}
		}
	}
}
