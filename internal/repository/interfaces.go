package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

// Every method takes a context.Context: these are the I/O boundaries of
// the system, and a cancelled session must be able to cancel its
// in-flight queries instead of applying results to a torn-down view.

// ProfileRepository handles identity and approval data. The room core
// treats it as read-only except for Approve, which is the one
// administrative mutation the system consumes.
type ProfileRepository interface {
	// Create inserts a new profile and returns it with ID and CreatedAt
	// populated. New profiles start unapproved.
	Create(ctx context.Context, username, passwordHash, role string) (*models.Profile, error)

	// GetByID returns a profile. Returns nil, nil if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)

	// GetByUsername looks up a profile for login. Returns nil, nil if
	// not found.
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)

	// List returns every profile, newest first. Returns empty slice
	// (not nil) so JSON serializes to [] not null.
	List(ctx context.Context) ([]models.Profile, error)

	// Approve flips the approval flag on every profile in ids.
	// Unknown ids are skipped silently.
	Approve(ctx context.Context, ids []uuid.UUID) error
}

// MessageRepository handles chat message persistence for the room.
type MessageRepository interface {
	// Insert persists a message and returns the authoritative record of
	// the insert — server id and storage timestamp — which the caller
	// publishes on the room bus.
	Insert(ctx context.Context, roomID string, senderID uuid.UUID, content string) (*models.InsertEvent, error)

	// ListBefore returns messages in the room strictly older than
	// before, newest first, with sender names resolved. A nil cursor
	// means "from the top" (the latest messages).
	ListBefore(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.Message, error)
}
