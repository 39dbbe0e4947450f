package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Insert(ctx context.Context, roomID string, senderID uuid.UUID, content string) (*models.InsertEvent, error) {
	// Messages use bigserial, so we don't pass an ID. Postgres generates
	// it; RETURNING gives back the authoritative id and timestamp that
	// the bus event must carry.
	query := `
		INSERT INTO messages (room_id, sender_id, content, inserted_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, room_id, sender_id, content, inserted_at`

	var ev models.InsertEvent
	err := s.pool.QueryRow(ctx, query, roomID, senderID, content).Scan(
		&ev.ID,
		&ev.RoomID,
		&ev.SenderID,
		&ev.Content,
		&ev.InsertedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &ev, nil
}

func (s *MessageStore) ListBefore(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.Message, error) {
	// Cursor-based backward pagination:
	//
	// before=nil → first page (newest messages). SQL: no WHERE on time.
	// before=t   → "messages strictly older than t". SQL: inserted_at < t.
	//
	// The cursor is the inserted_at of the oldest message the caller
	// holds, so the bound is exclusive — the anchor row itself is never
	// refetched.
	//
	// Sender names are resolved here with a join rather than per-row
	// lookups; history pages are the bulk read path.

	var query string
	var args []any

	if before != nil {
		query = `
			SELECT m.id, m.room_id, m.sender_id, COALESCE(p.username, 'User'), m.content, m.inserted_at
			FROM messages m
			LEFT JOIN profiles p ON p.id = m.sender_id
			WHERE m.room_id = $1 AND m.inserted_at < $2
			ORDER BY m.inserted_at DESC, m.id DESC
			LIMIT $3`
		args = []any{roomID, *before, limit}
	} else {
		query = `
			SELECT m.id, m.room_id, m.sender_id, COALESCE(p.username, 'User'), m.content, m.inserted_at
			FROM messages m
			LEFT JOIN profiles p ON p.id = m.sender_id
			WHERE m.room_id = $1
			ORDER BY m.inserted_at DESC, m.id DESC
			LIMIT $2`
		args = []any{roomID, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			id  int64
			msg models.Message
		)
		if err := rows.Scan(
			&id,
			&msg.RoomID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = strconv.FormatInt(id, 10)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
