package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
)

// Paginator walks room history backward in pages. Storage returns pages
// newest-first; the paginator hands them out chronologically so the
// initial page appends and older pages prepend without re-sorting.
//
// Exhaustion is monotonic: the first fetch that comes back short of its
// page size drops HasMore to false for the rest of the session, and no
// further backward fetch runs. A fetch error leaves HasMore untouched
// so the user can retry by scrolling again.
type Paginator struct {
	messages    repository.MessageRepository
	roomID      string
	initialSize int
	olderSize   int
	logger      *zap.Logger

	mu       sync.Mutex
	hasMore  bool
	inFlight bool
}

func NewPaginator(messages repository.MessageRepository, roomID string, initialSize, olderSize int, logger *zap.Logger) *Paginator {
	return &Paginator{
		messages:    messages,
		roomID:      roomID,
		initialSize: initialSize,
		olderSize:   olderSize,
		logger:      logger,
		hasMore:     true,
	}
}

// HasMore reports whether an older page may still exist.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// LoadInitial fetches the newest page and returns it in chronological
// order.
func (p *Paginator) LoadInitial(ctx context.Context) ([]models.Message, error) {
	page, err := p.messages.ListBefore(ctx, p.roomID, nil, p.initialSize)
	if err != nil {
		return nil, fmt.Errorf("load initial page: %w", err)
	}
	p.noteFetched(len(page), p.initialSize)
	return reverseChronological(page), nil
}

// LoadOlder fetches messages strictly older than the given cursor (the
// timestamp of the oldest message held locally) and returns them in
// chronological order for prepending.
//
// Only one backward load may be in flight; a call that arrives while
// one is outstanding — or after exhaustion — returns ok=false and does
// not touch storage.
func (p *Paginator) LoadOlder(ctx context.Context, before time.Time) (page []models.Message, ok bool, err error) {
	p.mu.Lock()
	if !p.hasMore || p.inFlight {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	fetched, err := p.messages.ListBefore(ctx, p.roomID, &before, p.olderSize)
	if err != nil {
		return nil, false, fmt.Errorf("load older page: %w", err)
	}
	p.noteFetched(len(fetched), p.olderSize)
	return reverseChronological(fetched), true, nil
}

func (p *Paginator) noteFetched(got, want int) {
	if got >= want {
		return
	}
	p.mu.Lock()
	if p.hasMore {
		p.hasMore = false
		p.logger.Debug("history exhausted",
			zap.String("room_id", p.roomID),
			zap.Int("page_len", got),
		)
	}
	p.mu.Unlock()
}

// reverseChronological flips a newest-first storage page into ascending
// timestamp order, in place.
func reverseChronological(page []models.Message) []models.Message {
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page
}
