package room

import (
	"sort"

	"github.com/google/uuid"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

// Merge combines the three message sources into the one sequence the
// presentation layer sees: concatenate, drop duplicate ids (first
// occurrence wins, so history beats a replayed live event), then order
// by (timestamp, id).
//
// The function is pure and deterministic — because ids are unique after
// dedup the (timestamp, id) order is total, so re-merging an unchanged
// input set yields an identical slice and a re-render can never flip
// two entries.
func Merge(history, live, optimistic []models.Message) []models.Message {
	merged := make([]models.Message, 0, len(history)+len(live)+len(optimistic))
	seen := make(map[string]struct{}, len(history)+len(live)+len(optimistic))

	for _, source := range [][]models.Message{history, live, optimistic} {
		for _, m := range source {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Before(merged[j])
	})
	return merged
}

// Store holds the three input snapshots and hands out their merge.
// It performs no I/O and is not goroutine-safe: a single session loop
// owns it, and every mutation is followed by republishing Snapshot().
type Store struct {
	history    []models.Message
	live       []models.Message
	optimistic []models.Message
}

func NewStore() *Store {
	return &Store{}
}

// SetHistory installs the initial page.
func (s *Store) SetHistory(page []models.Message) {
	s.history = page
}

// PrependHistory installs an older page in front of the current history.
func (s *Store) PrependHistory(page []models.Message) {
	s.history = append(append([]models.Message{}, page...), s.history...)
}

// AppendLive records a confirmed message from the subscription.
func (s *Store) AppendLive(m models.Message) {
	s.live = append(s.live, m)
}

// AppendOptimistic records a local echo.
func (s *Store) AppendOptimistic(m models.Message) {
	s.optimistic = append(s.optimistic, m)
}

// ConfirmOptimistic removes the oldest unconfirmed echo from sender with
// the given content, so the server-assigned row arriving through the
// subscription takes its place instead of doubling it. Returns false if
// no placeholder matched.
func (s *Store) ConfirmOptimistic(sender uuid.UUID, content string) bool {
	for i, m := range s.optimistic {
		if m.SenderID == sender && m.Content == content {
			s.optimistic = append(s.optimistic[:i], s.optimistic[i+1:]...)
			return true
		}
	}
	return false
}

// Empty reports whether no source holds any message — the "no cursor to
// anchor on" case that makes a backward load a no-op.
func (s *Store) Empty() bool {
	return len(s.history) == 0 && len(s.live) == 0 && len(s.optimistic) == 0
}

// Snapshot returns the merged view.
func (s *Store) Snapshot() []models.Message {
	return Merge(s.history, s.live, s.optimistic)
}
