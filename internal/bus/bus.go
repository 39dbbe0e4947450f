// Package bus carries message-inserted notifications between the write
// path and the live room sessions.
package bus

import (
	"context"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

// Handle is a standing subscription. Close releases it; closing an
// already-closed handle is a no-op.
type Handle interface {
	Close() error
}

// RoomBus is the push-notification boundary. The write path publishes
// one event per persisted insert; each live session holds exactly one
// subscription for its room.
//
// Delivery order is whatever the transport delivers — subscribers must
// not assume events arrive in timestamp order.
type RoomBus interface {
	Publish(ctx context.Context, ev models.InsertEvent) error
	Subscribe(ctx context.Context, roomID string, onInsert func(models.InsertEvent)) (Handle, error)
}
