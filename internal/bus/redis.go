package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

// RedisBus implements RoomBus over Redis pub/sub. One channel per room;
// events are JSON-encoded InsertEvents.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

var _ RoomBus = (*RedisBus)(nil)

func NewRedisBus(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", opts.Addr))
	return &RedisBus{client: client, logger: logger}, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func insertChannel(roomID string) string {
	return fmt.Sprintf("room:%s:inserts", roomID)
}

func (b *RedisBus) Publish(ctx context.Context, ev models.InsertEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal insert event: %w", err)
	}
	if err := b.client.Publish(ctx, insertChannel(ev.RoomID), data).Err(); err != nil {
		return fmt.Errorf("publish insert event: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription on the room channel and pumps
// decoded events into onInsert from a dedicated goroutine. The goroutine
// exits when the handle is closed or ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, roomID string, onInsert func(models.InsertEvent)) (Handle, error) {
	sub := b.client.Subscribe(ctx, insertChannel(roomID))

	// Receive forces the SUBSCRIBE round trip so a failed open surfaces
	// here, not silently inside the pump goroutine.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe room %s: %w", roomID, err)
	}

	go func() {
		for msg := range sub.Channel() {
			var ev models.InsertEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping undecodable bus event",
					zap.String("room_id", roomID),
					zap.Error(err),
				)
				continue
			}
			onInsert(ev)
		}
	}()

	return &redisHandle{sub: sub}, nil
}

type redisHandle struct {
	sub *redis.PubSub
}

func (h *redisHandle) Close() error {
	// PubSub.Close is idempotent and closes the Channel() stream, which
	// stops the pump goroutine.
	return h.sub.Close()
}
