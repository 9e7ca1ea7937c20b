package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamNotifier publishes proactive messages onto a Redis stream so that
// external consumers (a chat frontend, a relay bot) can pick them up.
type StreamNotifier struct {
	client *redis.Client
	stream string
}

// NewStreamNotifier connects to Redis via URL and verifies the connection.
func NewStreamNotifier(ctx context.Context, url, stream string) (*StreamNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &StreamNotifier{client: client, stream: stream}, nil
}

func (s *StreamNotifier) Name() string { return "stream" }

// Send appends the message to the stream. Redis acknowledging the XADD
// counts as delivery.
func (s *StreamNotifier) Send(ctx context.Context, msg *Message) (bool, error) {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":      msg.ID,
			"content": msg.Content,
			"reason":  msg.Reason,
			"urgency": msg.Urgency,
		},
	}).Err()
	if err != nil {
		return false, fmt.Errorf("xadd: %w", err)
	}
	return true, nil
}

// Close releases the Redis connection.
func (s *StreamNotifier) Close() error {
	return s.client.Close()
}
