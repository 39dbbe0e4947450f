package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Create inserts a new profile row. Postgres generates the UUID and
// timestamp; is_approved defaults to false, so a fresh signup lands on
// the pending screen until an admin approves it.
func (s *ProfileStore) Create(ctx context.Context, username, passwordHash, role string) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, username, password_hash, role, is_approved, created_at`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, username, passwordHash, role).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.Role,
		&p.Approved,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, username, password_hash, role, is_approved, created_at
		FROM profiles
		WHERE id = $1`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.Role,
		&p.Approved,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// GetByUsername looks up a profile by username. Used for login — you
// type your name, we find you.
func (s *ProfileStore) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	query := `
		SELECT id, username, password_hash, role, is_approved, created_at
		FROM profiles
		WHERE username = $1`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, username).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.Role,
		&p.Approved,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by username: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) List(ctx context.Context) ([]models.Profile, error) {
	query := `
		SELECT id, username, password_hash, role, is_approved, created_at
		FROM profiles
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]models.Profile, 0)
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(
			&p.ID,
			&p.Username,
			&p.PasswordHash,
			&p.Role,
			&p.Approved,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

// Approve flips is_approved on every listed profile in one statement.
// ANY($1) takes the whole id set as a single array parameter — no query
// building in a loop, one round trip.
func (s *ProfileStore) Approve(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE profiles
		SET is_approved = true
		WHERE id = ANY($1)`

	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("approve profiles: %w", err)
	}
	return nil
}
