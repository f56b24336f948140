package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSource consumes change events that workers publish to a Redis channel.
type RedisSource struct {
	client  *redis.Client
	channel string
}

var _ Source = (*RedisSource)(nil)

func NewRedisSource(client *redis.Client, channel string) *RedisSource {
	return &RedisSource{client: client, channel: channel}
}

func (s *RedisSource) Connect(ctx context.Context) (Stream, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so callers know the feed is live.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	return &redisStream{ps: ps, ch: ps.Channel()}, nil
}

type redisStream struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

func (st *redisStream) Next(ctx context.Context) (ChangeEvent, error) {
	select {
	case <-ctx.Done():
		return ChangeEvent{}, ctx.Err()
	case msg, ok := <-st.ch:
		if !ok {
			return ChangeEvent{}, ErrStreamClosed
		}
		return DecodeChangeEvent([]byte(msg.Payload))
	}
}

func (st *redisStream) Close(context.Context) error {
	return st.ps.Close()
}
