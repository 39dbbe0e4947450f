package room

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/bus"
	"github.com/abdessamed5/marktist-team-chat/internal/models"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
)

// fallbackSenderName labels a live message whose sender profile could
// not be resolved. History pages fall back at the query level instead.
const fallbackSenderName = "New User"

// LiveSubscription owns the session's one push-stream handle for the
// room. Bus events carry only the sender id; each one gets a secondary
// profile lookup so the emitted Message is fully formed.
//
// Events are emitted in arrival order — downstream ordering is the
// merge's job, not this component's.
type LiveSubscription struct {
	bus      bus.RoomBus
	profiles repository.ProfileRepository
	roomID   string
	logger   *zap.Logger

	mu     sync.Mutex
	opened bool
	handle bus.Handle
	events chan models.Message
}

func NewLiveSubscription(b bus.RoomBus, profiles repository.ProfileRepository, roomID string, logger *zap.Logger) *LiveSubscription {
	return &LiveSubscription{
		bus:      b,
		profiles: profiles,
		roomID:   roomID,
		logger:   logger,
	}
}

// Open establishes the subscription and returns the event stream.
// It is idempotent: a second Open while the handle is active returns
// the same stream without subscribing again, so repeated mount cycles
// can never stack duplicate subscriptions.
//
// The stream stops when ctx is cancelled or Close is called.
func (l *LiveSubscription) Open(ctx context.Context) (<-chan models.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.opened {
		return l.events, nil
	}

	events := make(chan models.Message, 64)
	handle, err := l.bus.Subscribe(ctx, l.roomID, func(ev models.InsertEvent) {
		msg := l.enrich(ctx, ev)
		select {
		case events <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}

	l.opened = true
	l.handle = handle
	l.events = events
	l.logger.Debug("live subscription opened", zap.String("room_id", l.roomID))
	return events, nil
}

// Close releases the handle and resets the one-shot latch so a future
// mount starts clean. Closing without an active handle is not an error.
func (l *LiveSubscription) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		if err := l.handle.Close(); err != nil {
			l.logger.Warn("closing live subscription", zap.Error(err))
		}
		l.handle = nil
	}
	l.opened = false
}

// enrich resolves the sender's display name and shapes the bus event
// into a view Message. Resolution failures are absorbed: the event still
// flows, under a fallback name.
func (l *LiveSubscription) enrich(ctx context.Context, ev models.InsertEvent) models.Message {
	name := fallbackSenderName
	profile, err := l.profiles.GetByID(ctx, ev.SenderID)
	switch {
	case err != nil:
		l.logger.Warn("resolving sender name",
			zap.String("sender_id", ev.SenderID.String()),
			zap.Error(err),
		)
	case profile != nil:
		name = profile.Username
	}

	return models.Message{
		ID:         strconv.FormatInt(ev.ID, 10),
		RoomID:     ev.RoomID,
		SenderID:   ev.SenderID,
		SenderName: name,
		Content:    ev.Content,
		CreatedAt:  ev.InsertedAt,
	}
}
