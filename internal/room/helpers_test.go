package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/bus"
	"github.com/abdessamed5/marktist-team-chat/internal/models"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
)

const testRoom = "general"

// fakeProfiles is an in-memory ProfileRepository counting its calls.
type fakeProfiles struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]models.Profile
	getCalls int
	getErr   error
}

var _ repository.ProfileRepository = (*fakeProfiles)(nil)

func newFakeProfiles(profiles ...models.Profile) *fakeProfiles {
	f := &fakeProfiles{byID: make(map[uuid.UUID]models.Profile)}
	for _, p := range profiles {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) Create(_ context.Context, username, passwordHash, role string) (*models.Profile, error) {
	p := models.Profile{ID: uuid.New(), Username: username, PasswordHash: passwordHash, Role: role, CreatedAt: time.Now()}
	f.mu.Lock()
	f.byID[p.ID] = p
	f.mu.Unlock()
	return &p, nil
}

func (f *fakeProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProfiles) GetByUsername(_ context.Context, username string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.Username == username {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeProfiles) List(_ context.Context) ([]models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Profile, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProfiles) Approve(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			p.Approved = true
			f.byID[id] = p
		}
	}
	return nil
}

// fakeMessages is an in-memory MessageRepository. Rows are held in
// ascending timestamp order, the way storage would index them.
type fakeMessages struct {
	mu          sync.Mutex
	rows        []models.Message
	nextID      int64
	listCalls   int
	insertCalls int
	listErr     error
	insertErr   error

	// When set, ListBefore signals enterList and then blocks until
	// releaseList is closed. Used to pin a fetch in flight.
	enterList   chan struct{}
	releaseList chan struct{}
}

var _ repository.MessageRepository = (*fakeMessages)(nil)

func (f *fakeMessages) seed(rows ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

func (f *fakeMessages) Insert(_ context.Context, roomID string, senderID uuid.UUID, content string) (*models.InsertEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	ev := models.InsertEvent{
		ID:         f.nextID,
		RoomID:     roomID,
		SenderID:   senderID,
		Content:    content,
		InsertedAt: time.Now(),
	}
	return &ev, nil
}

func (f *fakeMessages) ListBefore(_ context.Context, roomID string, before *time.Time, limit int) ([]models.Message, error) {
	f.mu.Lock()
	f.listCalls++
	enter, release := f.enterList, f.releaseList
	f.mu.Unlock()

	if enter != nil {
		enter <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	// Newest-first page of rows strictly older than the cursor.
	page := make([]models.Message, 0, limit)
	for i := len(f.rows) - 1; i >= 0 && len(page) < limit; i-- {
		m := f.rows[i]
		if m.RoomID != roomID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		page = append(page, m)
	}
	return page, nil
}

func (f *fakeMessages) calls() (list, insert int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.insertCalls
}

// fakeBus dispatches published events synchronously to every subscriber
// of the room.
type fakeBus struct {
	mu             sync.Mutex
	nextKey        int
	handlers       map[int]func(models.InsertEvent)
	subscribeCalls int
	subscribeErr   error
	published      []models.InsertEvent
}

var _ bus.RoomBus = (*fakeBus)(nil)

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[int]func(models.InsertEvent))}
}

func (f *fakeBus) Publish(_ context.Context, ev models.InsertEvent) error {
	f.mu.Lock()
	f.published = append(f.published, ev)
	handlers := make([]func(models.InsertEvent), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string, onInsert func(models.InsertEvent)) (bus.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.nextKey++
	key := f.nextKey
	f.handlers[key] = onInsert
	return &fakeHandle{bus: f, key: key}, nil
}

func (f *fakeBus) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeBus) subs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

func (f *fakeBus) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeHandle struct {
	bus *fakeBus
	key int
}

func (h *fakeHandle) Close() error {
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	delete(h.bus.handlers, h.key)
	return nil
}

// waitForView reads views until pred matches. Views have latest-wins
// semantics, so the predicate must describe an end state.
func waitForView(t *testing.T, views <-chan View, pred func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if pred(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
			return View{}
		}
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func msgAt(id, content string, sender uuid.UUID, name string, at time.Time) models.Message {
	return models.Message{
		ID:         id,
		RoomID:     testRoom,
		SenderID:   sender,
		SenderName: name,
		Content:    content,
		CreatedAt:  at,
	}
}
