package relay

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "conversation:"

// RedisBridge carries room broadcasts over Redis pub/sub so rooms span
// instances. Channel per conversation, pattern-subscribed on each instance.
type RedisBridge struct {
	rdb *redis.Client
}

func NewRedisBridge(addr string) *RedisBridge {
	return &RedisBridge{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, room string, data []byte) error {
	return b.rdb.Publish(ctx, channelPrefix+room, data).Err()
}

func (b *RedisBridge) Subscribe(ctx context.Context, handler func(room string, data []byte)) error {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		room := strings.TrimPrefix(msg.Channel, channelPrefix)
		handler(room, []byte(msg.Payload))
	}
	return nil
}

func (b *RedisBridge) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
