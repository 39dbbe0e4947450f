package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/bus"
	"github.com/abdessamed5/marktist-team-chat/internal/config"
	"github.com/abdessamed5/marktist-team-chat/internal/middleware"
	"github.com/abdessamed5/marktist-team-chat/internal/models"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
	"github.com/abdessamed5/marktist-team-chat/internal/room"
)

// Frames sent to the client. Every view change produces a full
// snapshot — the client replaces, never patches, so a dropped frame
// can't desynchronize it.
type stateFrame struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Role  string `json:"role,omitempty"`
}

type snapshotFrame struct {
	Type     string           `json:"type"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// clientFrame is what the client sends: {"type":"send","content":...}
// or {"type":"load_older"}.
type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// RoomHandler upgrades authenticated clients onto the room websocket
// and runs one room.Session per connection.
type RoomHandler struct {
	profiles repository.ProfileRepository
	messages repository.MessageRepository
	bus      bus.RoomBus
	cfg      *config.Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewRoomHandler(
	profiles repository.ProfileRepository,
	messages repository.MessageRepository,
	roomBus bus.RoomBus,
	cfg *config.Config,
	logger *zap.Logger,
) *RoomHandler {
	return &RoomHandler{
		profiles: profiles,
		messages: messages,
		bus:      roomBus,
		cfg:      cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.Env),
		},
	}
}

// checkOrigin permits any origin outside production, where frontends
// run on other ports. In production the browser-sent Origin must match
// the request host; non-browser clients (no Origin header) pass — the
// token is what authenticates them.
func checkOrigin(env string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if env != "production" {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Serve handles GET /v1/room/ws
func (h *RoomHandler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The connection outlives the HTTP handler's request scope, so the
	// session hangs off its own context, cancelled when either pump
	// stops.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := h.newSession(userID)
	defer sess.Close()

	views, err := sess.Start(ctx)
	if err != nil {
		if errors.Is(err, room.ErrNoSession) {
			// Terminal: the identity has no profile. Tell the client to
			// go back to login.
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "no session")
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}
		h.logger.Error("session start failed", zap.Error(err))
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session start failed")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		return
	}

	// Single writer: gorilla permits one concurrent writer per conn, so
	// all frames leave from this goroutine.
	go func() {
		// Closing the conn here too unblocks the read pump if the
		// write side is the one that dies.
		defer cancel()
		defer conn.Close()
		lastState := ""
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-views:
				if v.State != lastState {
					lastState = v.State
					if err := conn.WriteJSON(stateFrame{Type: "state", State: v.State, Role: v.Role}); err != nil {
						return
					}
				}
				if v.State != room.StateGranted.String() {
					continue
				}
				if err := conn.WriteJSON(snapshotFrame{Type: "snapshot", Messages: v.Messages, HasMore: v.HasMore}); err != nil {
					return
				}
			}
		}
	}()

	// Read pump: client commands into the session. A malformed or
	// unknown frame is dropped, not fatal — only a transport error ends
	// the connection.
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		switch frame.Type {
		case "send":
			sess.Send(frame.Content)
		case "load_older":
			sess.LoadOlder()
		default:
			h.logger.Debug("ignoring unknown client frame", zap.String("type", frame.Type))
		}
	}
}

func (h *RoomHandler) newSession(userID uuid.UUID) *room.Session {
	gate := room.NewGate(h.profiles, h.logger)
	return room.NewSession(userID, room.Deps{
		Gate:      gate,
		Paginator: room.NewPaginator(h.messages, h.cfg.RoomID, h.cfg.InitialPageSize, h.cfg.OlderPageSize, h.logger),
		Live:      room.NewLiveSubscription(h.bus, h.profiles, h.cfg.RoomID, h.logger),
		Guard:     room.NewEchoGuard(h.cfg.EchoDebounce),
		Messages:  h.messages,
		Bus:       h.bus,
		RoomID:    h.cfg.RoomID,
		Logger:    h.logger,
	})
}
