package room

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/bus"
	"github.com/abdessamed5/marktist-team-chat/internal/models"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
)

// View is what a session republishes to its presentation layer after
// every change: the merged sequence plus the flags the UI needs to
// decide what to draw (pending screen, admin buttons, load-older
// trigger).
type View struct {
	State    string           `json:"state"`
	Role     string           `json:"role,omitempty"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

type cmdKind int

const (
	cmdSend cmdKind = iota
	cmdLoadOlder
)

type command struct {
	kind    cmdKind
	content string
}

type olderResult struct {
	page []models.Message
	ok   bool
	err  error
}

// Deps wires a session to its collaborators. Paginator, LiveSubscription
// and EchoGuard are per-session; the repositories and the bus are the
// shared process-wide collaborators behind them.
type Deps struct {
	Gate      *Gate
	Paginator *Paginator
	Live      *LiveSubscription
	Guard     *EchoGuard
	Messages  repository.MessageRepository
	Bus       bus.RoomBus
	RoomID    string
	Logger    *zap.Logger
}

// Session is the per-connection orchestrator of the room core. All view
// state — the store's three snapshots — is owned by one loop goroutine;
// live events, commands and async fetch results reach it over channels,
// which is how the "nothing mutates the view concurrently" rule is kept
// without locking the store.
//
// Start order is fixed: gate resolve, then the initial history page
// installed, then the subscription opened. No live event can be
// processed before the initial page is in the store.
type Session struct {
	userID uuid.UUID
	deps   Deps
	logger *zap.Logger

	access  Access
	store   *Store
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	views chan View
	cmds  chan command
	older chan olderResult
}

func NewSession(userID uuid.UUID, deps Deps) *Session {
	return &Session{
		userID: userID,
		deps:   deps,
		logger: deps.Logger,
		store:  NewStore(),
		views:  make(chan View, 16),
		cmds:   make(chan command, 16),
		older:  make(chan olderResult, 1),
	}
}

// Start resolves access and, if granted, loads the initial page, opens
// the live subscription and launches the session loop. The returned
// channel carries a View after every change; the caller stops reading
// when ctx is done.
//
// ErrNoSession is the only terminal error. A denied session returns
// normally: its channel carries the denied View and nothing else, and
// no fetch or subscription ever happened.
func (s *Session) Start(ctx context.Context) (<-chan View, error) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	access, err := s.deps.Gate.Resolve(s.ctx, s.userID)
	if err != nil {
		return nil, err
	}
	s.access = access

	if access.State != StateGranted {
		s.emit(s.view())
		return s.views, nil
	}

	// Initial-fetch failure yields an empty history rather than holding
	// the whole session at the gate.
	initial, err := s.deps.Paginator.LoadInitial(s.ctx)
	if err != nil {
		s.logger.Error("initial history fetch failed", zap.Error(err))
		initial = nil
	}
	s.store.SetHistory(initial)

	// A failed open is absorbed: the session runs on history alone and
	// a fresh mount gets to try again. events stays nil, which simply
	// never fires in the loop.
	events, err := s.deps.Live.Open(s.ctx)
	if err != nil {
		s.logger.Error("live subscription open failed", zap.Error(err))
	}

	// The first view must go out while the store is still exclusively
	// ours: once the loop goroutine starts, only it may touch view
	// state, and an event can arrive the moment the subscription is up.
	s.running.Store(true)
	s.emit(s.view())
	go s.loop(events)

	return s.views, nil
}

// Close tears the session down: the loop exits, the subscription handle
// is released and its latch reset, and results of still-in-flight
// fetches are discarded instead of applied.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Send queues a message send. No-op for blank content or when the
// session is not granted and running.
func (s *Session) Send(content string) {
	content = strings.TrimSpace(content)
	if content == "" || !s.running.Load() {
		return
	}
	select {
	case s.cmds <- command{kind: cmdSend, content: content}:
	default:
		// Full buffer: drop rather than stall the caller's read pump.
		// Commands are retriable UI gestures, not durable requests.
		s.logger.Warn("command buffer full, dropping send")
	}
}

// LoadOlder queues a backward page load. No-op when the session is not
// granted and running.
func (s *Session) LoadOlder() {
	if !s.running.Load() {
		return
	}
	select {
	case s.cmds <- command{kind: cmdLoadOlder}:
	default:
		s.logger.Debug("command buffer full, dropping load-older")
	}
}

// Access returns the gate's resolved outcome for this session.
func (s *Session) Access() Access {
	return s.access
}

func (s *Session) loop(events <-chan models.Message) {
	defer func() {
		s.running.Store(false)
		s.deps.Live.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-events:
			s.handleLive(ev)
		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdSend:
				s.handleSend(cmd.content)
			case cmdLoadOlder:
				s.handleLoadOlder()
			}
		case res := <-s.older:
			s.applyOlder(res)
		}
	}
}

func (s *Session) handleLive(ev models.Message) {
	if ev.SenderID == s.access.UserID {
		if s.deps.Guard.ShouldSuppressEcho(ev.Content, time.Now()) {
			// The optimistic echo for this content is already on
			// screen; the server's confirmation must not double it.
			s.logger.Debug("suppressed own echo", zap.String("id", ev.ID))
			return
		}
		// Outside the window the confirmed row still supersedes any
		// matching placeholder rather than appearing next to it.
		s.store.ConfirmOptimistic(ev.SenderID, ev.Content)
	}
	s.store.AppendLive(ev)
	s.emit(s.view())
}

func (s *Session) handleSend(content string) {
	msg := s.deps.Guard.TrySend(s.deps.RoomID, s.access.UserID, s.access.Username, content, time.Now())
	s.store.AppendOptimistic(msg)
	s.emit(s.view())

	// Persist concurrently; the echo is already visible. On failure the
	// message stays shown but the debounce marker is cleared so an
	// identical manual retry is not swallowed.
	go func() {
		ev, err := s.deps.Messages.Insert(s.ctx, s.deps.RoomID, s.access.UserID, content)
		if err != nil {
			s.deps.Guard.ClearMarker()
			s.logger.Error("persist message failed", zap.Error(err))
			return
		}
		if err := s.deps.Bus.Publish(s.ctx, *ev); err != nil {
			s.logger.Error("publish insert event failed",
				zap.Int64("message_id", ev.ID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Session) handleLoadOlder() {
	if s.store.Empty() {
		// No cursor to anchor on.
		return
	}
	oldest := s.store.Snapshot()[0].CreatedAt

	// The paginator serializes backward loads internally; a command
	// racing an in-flight fetch comes back ok=false and is dropped.
	go func() {
		page, ok, err := s.deps.Paginator.LoadOlder(s.ctx, oldest)
		select {
		case s.older <- olderResult{page: page, ok: ok, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) applyOlder(res olderResult) {
	if res.err != nil {
		s.logger.Error("older page fetch failed", zap.Error(res.err))
		return
	}
	if !res.ok {
		return
	}
	if len(res.page) > 0 {
		s.store.PrependHistory(res.page)
	}
	// Republish even for an empty page: HasMore may just have flipped.
	s.emit(s.view())
}

func (s *Session) view() View {
	v := View{
		State:    s.access.State.String(),
		Role:     s.access.Role,
		Messages: []models.Message{},
		HasMore:  false,
	}
	if s.access.State == StateGranted {
		v.Messages = s.store.Snapshot()
		v.HasMore = s.deps.Paginator.HasMore()
	}
	return v
}

// emit pushes a view with latest-wins semantics: if the consumer lags
// behind the buffer, the oldest pending view is dropped — every view is
// a full snapshot, so only the newest matters.
func (s *Session) emit(v View) {
	for {
		select {
		case s.views <- v:
			return
		default:
			select {
			case <-s.views:
			default:
			}
		}
	}
}
