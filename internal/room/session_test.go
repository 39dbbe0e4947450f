package room

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/abdessamed5/marktist-team-chat/internal/models"
)

type sessionEnv struct {
	profiles *fakeProfiles
	msgs     *fakeMessages
	bus      *fakeBus
}

func newSessionEnv(profiles ...models.Profile) *sessionEnv {
	return &sessionEnv{
		profiles: newFakeProfiles(profiles...),
		msgs:     &fakeMessages{},
		bus:      newFakeBus(),
	}
}

func (e *sessionEnv) session(userID uuid.UUID, initialSize, olderSize int, window time.Duration) *Session {
	logger := testLogger()
	return NewSession(userID, Deps{
		Gate:      NewGate(e.profiles, logger),
		Paginator: NewPaginator(e.msgs, testRoom, initialSize, olderSize, logger),
		Live:      NewLiveSubscription(e.bus, e.profiles, testRoom, logger),
		Guard:     NewEchoGuard(window),
		Messages:  e.msgs,
		Bus:       e.bus,
		RoomID:    testRoom,
		Logger:    logger,
	})
}

// lastView drains pending views and returns the newest one, falling
// back to prev when none arrived.
func lastView(views <-chan View, prev View) View {
	for {
		select {
		case v := <-views:
			prev = v
		default:
			return prev
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestSession_DeniedUserTouchesNothing(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(models.Profile{
		ID: senderB, Username: "bob", Role: models.RoleEmployee, Approved: false,
	})
	sess := env.session(senderB, 50, 20, 2*time.Second)
	defer sess.Close()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)

	v := waitForView(t, views, func(v View) bool { return v.State == "denied" })
	require.Empty(t, v.Messages)
	require.False(t, v.HasMore)

	// The whole point of the gate: a denied session records zero
	// collaborator calls beyond the profile read.
	sess.Send("should go nowhere")
	sess.LoadOlder()
	time.Sleep(50 * time.Millisecond)

	list, insert := env.msgs.calls()
	require.Zero(t, list, "denied session must never fetch history")
	require.Zero(t, insert, "denied session must never persist a message")
	require.Zero(t, env.bus.subs(), "denied session must never subscribe")
}

func TestSession_MissingProfileIsTerminal(t *testing.T) {
	t.Parallel()

	env := newSessionEnv()
	sess := env.session(uuid.New(), 50, 20, 2*time.Second)
	defer sess.Close()

	_, err := sess.Start(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSession_InitialHistoryThenLiveEvents(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(
		models.Profile{ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true},
		models.Profile{ID: senderB, Username: "bob", Role: models.RoleEmployee, Approved: true},
	)
	env.msgs.seed(
		msgAt("1", "old-one", senderB, "bob", base),
		msgAt("2", "old-two", senderA, "alice", base.Add(time.Second)),
	)

	sess := env.session(senderA, 50, 20, 2*time.Second)
	defer sess.Close()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)

	v := waitForView(t, views, func(v View) bool { return v.State == "granted" && len(v.Messages) == 2 })
	require.Equal(t, []string{"1", "2"}, ids(v.Messages))

	// A message from bob arrives over the bus after the initial page.
	require.NoError(t, env.bus.Publish(context.Background(), models.InsertEvent{
		ID: 3, RoomID: testRoom, SenderID: senderB, Content: "fresh", InsertedAt: base.Add(2 * time.Second),
	}))

	v = waitForView(t, views, func(v View) bool { return len(v.Messages) == 3 })
	require.Equal(t, "fresh", v.Messages[2].Content)
	require.Equal(t, "bob", v.Messages[2].SenderName)
}

func TestSession_SendSuppressesOwnEcho(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(models.Profile{
		ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true,
	})
	sess := env.session(senderA, 50, 20, 2*time.Second)
	defer sess.Close()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)
	waitForView(t, views, func(v View) bool { return v.State == "granted" })

	sess.Send("hello")

	// The local echo appears immediately, before storage confirms.
	v := waitForView(t, views, func(v View) bool { return len(v.Messages) == 1 })
	require.True(t, v.Messages[0].Local)
	require.Equal(t, "hello", v.Messages[0].Content)
	require.Equal(t, "alice", v.Messages[0].SenderName)

	// Persistence completes and the bus replays the insert to its own
	// sender within the debounce window.
	waitUntil(t, func() bool { _, ins := env.msgs.calls(); return ins == 1 && env.bus.publishedCount() > 0 })
	time.Sleep(50 * time.Millisecond)

	final := lastView(views, v)
	require.Len(t, final.Messages, 1, "own echo within the window must not double the message")
	require.Equal(t, "hello", final.Messages[0].Content)
}

func TestSession_ConfirmedEchoReplacesPlaceholder(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(models.Profile{
		ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true,
	})
	// A nanosecond window: the debounce has always expired by the time
	// the echo comes back, so the confirmed row must replace the
	// placeholder instead of being suppressed.
	sess := env.session(senderA, 50, 20, time.Nanosecond)
	defer sess.Close()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)
	waitForView(t, views, func(v View) bool { return v.State == "granted" })

	sess.Send("hello")

	v := waitForView(t, views, func(v View) bool {
		return len(v.Messages) == 1 && !v.Messages[0].Local && v.Messages[0].ID == "1"
	})
	require.Equal(t, "hello", v.Messages[0].Content)
}

func TestSession_LoadOlderOnEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(models.Profile{
		ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true,
	})
	sess := env.session(senderA, 50, 20, 2*time.Second)
	defer sess.Close()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)
	waitForView(t, views, func(v View) bool { return v.State == "granted" })

	sess.LoadOlder()
	time.Sleep(50 * time.Millisecond)

	list, _ := env.msgs.calls()
	require.Equal(t, 1, list, "no cursor to anchor on — only the initial fetch may have run")
}

func TestSession_LoadOlderPrependsAndExhausts(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(models.Profile{
		ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true,
	})
	seedRows(env.msgs, 4)

	sess := env.session(senderA, 2, 2, 2*time.Second)
	defer sess.Close()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)

	v := waitForView(t, views, func(v View) bool { return len(v.Messages) == 2 })
	require.Equal(t, []string{"3", "4"}, ids(v.Messages))
	require.True(t, v.HasMore)

	sess.LoadOlder()
	v = waitForView(t, views, func(v View) bool { return len(v.Messages) == 4 })
	require.Equal(t, []string{"1", "2", "3", "4"}, ids(v.Messages),
		"older pages prepend without disturbing already-shown order")

	// Third page is empty: exhaustion flips HasMore, for good.
	sess.LoadOlder()
	v = waitForView(t, views, func(v View) bool { return !v.HasMore })
	require.Equal(t, []string{"1", "2", "3", "4"}, ids(v.Messages))

	sess.LoadOlder()
	time.Sleep(50 * time.Millisecond)
	list, _ := env.msgs.calls()
	require.Equal(t, 3, list, "exhausted paginator must not fetch again")
}

// Events can hit the subscription the instant it opens, before Start
// has returned. The initial view must be emitted while the store is
// still exclusively Start's; everything after belongs to the loop.
func TestSession_StartUnderLiveTraffic(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(
		models.Profile{ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true},
		models.Profile{ID: senderB, Username: "bob", Role: models.RoleEmployee, Approved: true},
	)
	env.msgs.seed(msgAt("1", "old", senderB, "bob", base))

	sess := env.session(senderA, 50, 20, 2*time.Second)
	defer sess.Close()

	// Hammer the bus from another goroutine so that live events land
	// while Start is still bringing the session up.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(100); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = env.bus.Publish(context.Background(), models.InsertEvent{
				ID: i, RoomID: testRoom, SenderID: senderB, Content: "live",
				InsertedAt: base.Add(time.Duration(i) * time.Millisecond),
			})
		}
	}()

	views, err := sess.Start(context.Background())
	require.NoError(t, err)

	close(stop)
	<-done

	// A marker with the newest timestamp: once it shows up, every event
	// published before it has been applied too.
	require.NoError(t, env.bus.Publish(context.Background(), models.InsertEvent{
		ID: 99999, RoomID: testRoom, SenderID: senderB, Content: "marker",
		InsertedAt: base.Add(time.Hour),
	}))

	v := waitForView(t, views, func(v View) bool {
		return len(v.Messages) > 0 && v.Messages[len(v.Messages)-1].ID == "99999"
	})

	seen := make(map[string]bool, len(v.Messages))
	for _, m := range v.Messages {
		require.False(t, seen[m.ID], "message %s merged twice", m.ID)
		seen[m.ID] = true
	}
	require.True(t, seen["1"], "history page lost during startup")
}

// A stalled consumer must never back-pressure the caller: once the
// command buffer is full, further gestures are dropped, not parked.
func TestSession_CommandsNeverBlockWhenLoopIsBehind(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(models.Profile{
		ID: senderA, Username: "alice", Role: models.RoleEmployee, Approved: true,
	})
	sess := env.session(senderA, 50, 20, 2*time.Second)
	sess.access = Access{State: StateGranted, UserID: senderA, Username: "alice", Role: models.RoleEmployee}
	sess.running.Store(true)
	// No loop goroutine is draining cmds.

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			sess.Send("spam")
			sess.LoadOlder()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command enqueue blocked on a full buffer")
	}
}

// End to end: two approved users, A sends, B sees
// exactly one fully-resolved message, A sees exactly one echo.
func TestSession_EndToEndTwoUsers(t *testing.T) {
	t.Parallel()

	env := newSessionEnv(
		models.Profile{ID: senderA, Username: "A", Role: models.RoleEmployee, Approved: true},
		models.Profile{ID: senderB, Username: "B", Role: models.RoleEmployee, Approved: true},
	)

	sessA := env.session(senderA, 50, 20, 2*time.Second)
	defer sessA.Close()
	sessB := env.session(senderB, 50, 20, 2*time.Second)
	defer sessB.Close()

	viewsA, err := sessA.Start(context.Background())
	require.NoError(t, err)
	viewsB, err := sessB.Start(context.Background())
	require.NoError(t, err)

	waitForView(t, viewsA, func(v View) bool { return v.State == "granted" })
	waitForView(t, viewsB, func(v View) bool { return v.State == "granted" })

	sessA.Send("hi")

	// B's subscription delivers the confirmed message with A's name
	// resolved.
	vB := waitForView(t, viewsB, func(v View) bool { return len(v.Messages) == 1 })
	require.Equal(t, "hi", vB.Messages[0].Content)
	require.Equal(t, "A", vB.Messages[0].SenderName)
	require.False(t, vB.Messages[0].Local)

	// A sees exactly one "hi" — the optimistic echo, not a double.
	vA := waitForView(t, viewsA, func(v View) bool { return len(v.Messages) == 1 })
	time.Sleep(50 * time.Millisecond)
	vA = lastView(viewsA, vA)
	require.Len(t, vA.Messages, 1)
	require.Equal(t, "hi", vA.Messages[0].Content)
}
