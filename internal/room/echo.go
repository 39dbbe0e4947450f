package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

// EchoGuard handles the race between a local optimistic echo and the
// server's own push notification of that same insert. The two carry
// different ids (locally minted vs server-assigned), so id dedup cannot
// catch the pair; instead the guard remembers the last sent content and
// treats an identical incoming echo within the debounce window as the
// server confirming what is already on screen.
type EchoGuard struct {
	window time.Duration

	mu          sync.Mutex
	lastContent string
	lastSentAt  time.Time
}

func NewEchoGuard(window time.Duration) *EchoGuard {
	return &EchoGuard{window: window}
}

// TrySend materializes the local echo for a send: a "local-" prefixed
// id, the current instant as its timestamp, and the sender's own
// resolved name. It also arms the debounce marker. The caller shows the
// message immediately and issues the persistence request concurrently.
func (g *EchoGuard) TrySend(roomID string, senderID uuid.UUID, senderName, content string, now time.Time) models.Message {
	g.mu.Lock()
	g.lastContent = content
	g.lastSentAt = now
	g.mu.Unlock()

	return models.Message{
		ID:         "local-" + uuid.NewString(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  now,
		Local:      true,
	}
}

// ShouldSuppressEcho reports whether an incoming message is the server's
// echo of the most recent send: identical content, within the window.
func (g *EchoGuard) ShouldSuppressEcho(content string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastContent == "" || content != g.lastContent {
		return false
	}
	return now.Sub(g.lastSentAt) < g.window
}

// ClearMarker disarms the debounce. Called when the persistence request
// fails, so an identical manual retry is not wrongly suppressed. The
// optimistic message already shown stays — failed sends are not rolled
// back visually.
func (g *EchoGuard) ClearMarker() {
	g.mu.Lock()
	g.lastContent = ""
	g.lastSentAt = time.Time{}
	g.mu.Unlock()
}
