package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
)

// ErrNoSession means the identity behind the request has no profile.
// This is the one terminal error of a session: the caller redirects to
// login instead of retrying.
var ErrNoSession = errors.New("no authenticated session")

// AccessState is the gate's tri-state. A session starts at StateUnknown
// and resolves exactly once to StateDenied or StateGranted; a denied
// user gets granted only by resolving again on a fresh session after an
// admin approves them.
type AccessState int

const (
	StateUnknown AccessState = iota
	StateDenied
	StateGranted
)

func (s AccessState) String() string {
	switch s {
	case StateDenied:
		return "denied"
	case StateGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Access is the resolved outcome: whether the room is reachable and
// what the UI may expose (admin affordances come from Role, the
// display name labels the user's own messages).
type Access struct {
	State    AccessState
	UserID   uuid.UUID
	Username string
	Role     string
}

// Gate decides whether the rest of the room machinery runs at all.
// While the state is not granted, no history fetch, no subscription and
// no send path may start.
type Gate struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewGate(profiles repository.ProfileRepository, logger *zap.Logger) *Gate {
	return &Gate{profiles: profiles, logger: logger}
}

// Resolve reads the user's profile once and maps the approval flag onto
// the access state. A missing profile is ErrNoSession.
func (g *Gate) Resolve(ctx context.Context, userID uuid.UUID) (Access, error) {
	profile, err := g.profiles.GetByID(ctx, userID)
	if err != nil {
		return Access{State: StateUnknown}, fmt.Errorf("resolve access: %w", err)
	}
	if profile == nil {
		return Access{State: StateUnknown}, ErrNoSession
	}

	access := Access{
		UserID:   profile.ID,
		Username: profile.Username,
		Role:     profile.Role,
	}
	if profile.Approved {
		access.State = StateGranted
	} else {
		access.State = StateDenied
		g.logger.Info("unapproved user held at the gate",
			zap.String("user_id", userID.String()),
		)
	}
	return access, nil
}

// IsAdmin reports whether the resolved role unlocks the administrative
// surface. The approval mutation itself lives on the profile repository.
func (a Access) IsAdmin() bool {
	return a.State == StateGranted && a.Role == models.RoleAdmin
}
