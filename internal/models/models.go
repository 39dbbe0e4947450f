package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles stored on profiles. Validated at the handler layer, not here —
// models are dumb data carriers that mirror their tables.
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// Profile is a person known to the workspace.
//
// Approved is the access gate: a profile exists from the moment of signup,
// but until an admin flips Approved the user sees only the pending screen —
// no history, no subscription, no send path.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	Approved     bool      `json:"approved"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is one entry in the merged room view.
//
// ID is a string, not an int64, because the view holds two kinds of
// identity: server-assigned ids ("184") for persisted messages and
// locally minted ids ("local-<uuid>") for optimistic echoes the server
// has not confirmed yet. Both must dedup and tie-break through the same
// field.
//
// SenderName is resolved, not raw: history rows come joined with the
// profile, and live events get a secondary lookup before emission.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`

	// Local marks an optimistic echo not yet confirmed by storage.
	Local bool `json:"local,omitempty"`
}

// Before reports whether m sorts strictly before other in the merged
// view: ascending by creation instant, ties broken by id so the order
// is total and re-merging can never flip two entries.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// InsertEvent is the wire form of a message-inserted notification on the
// room bus. It carries the sender id only — display names are resolved
// by the subscriber, the same shape a storage change feed has.
type InsertEvent struct {
	ID         int64     `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	Content    string    `json:"content"`
	InsertedAt time.Time `json:"inserted_at"`
}
