package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/presence"
)

// Authenticator resolves the user behind an upgrade request.
type Authenticator interface {
	Resolve(r *http.Request) (domain.UserID, error)
}

type Options struct {
	PingEvery   time.Duration
	SendBuffer  int
	ReadLimit   int64
	CheckOrigin func(r *http.Request) bool
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	coord    *presence.Coordinator
	auth     Authenticator
	log      *slog.Logger

	pingEvery  time.Duration
	sendBuffer int
	readLimit  int64
}

func NewServer(hub *Hub, coord *presence.Coordinator, auth Authenticator, log *slog.Logger, opts Options) *Server {
	if opts.PingEvery <= 0 {
		opts.PingEvery = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 16 << 10
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		hub:   hub,
		coord: coord,
		auth:  auth,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		pingEvery:  opts.PingEvery,
		sendBuffer: opts.SendBuffer,
		readLimit:  opts.ReadLimit,
	}
}

// HandleWS: GET /ws. The token comes from the cookie, a Bearer header or ?access_token=.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	uid, err := s.auth.Resolve(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// после Hijack контекст запроса живёт только пока работает хендлер
	ctx := context.WithoutCancel(r.Context())
	id := presence.ConnID(uuid.NewString())

	sess, err := s.coord.Connect(ctx, id, uid)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.log.Warn("ws connect failed", "user", uid, "err", err)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "user", uid, "err", err)
		s.coord.Disconnect(ctx, sess)
		return
	}

	c := newConn(id, wsConn, s.sendBuffer)
	s.hub.Register(c)
	go c.writeLoop(s.pingEvery)

	s.log.Debug("ws connected", "conn", id, "user", uid)
	s.readLoop(ctx, c, sess)

	s.coord.Disconnect(ctx, sess)
	s.hub.Unregister(id)
	c.Close()
	s.log.Debug("ws closed", "conn", id, "user", uid)
}

func (s *Server) readLoop(ctx context.Context, c *Conn, sess *presence.Session) {
	c.ws.SetReadLimit(s.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.reject(c, "decode", err)
			continue
		}
		s.dispatch(ctx, c, sess, in)
	}
}

func (s *Server) dispatch(ctx context.Context, c *Conn, sess *presence.Session, in Inbound) {
	switch in.Type {
	case TypeJoin:
		var p RoomPayload
		if err := decode(in.Payload, &p); err != nil {
			s.reject(c, in.Type, err)
			return
		}
		_ = s.coord.Join(ctx, sess, domain.RoomKey(p.Room))
	case TypeLeave:
		var p RoomPayload
		if err := decode(in.Payload, &p); err != nil {
			s.reject(c, in.Type, err)
			return
		}
		_ = s.coord.Leave(ctx, sess, domain.RoomKey(p.Room))
	case TypeMessage:
		var p MessagePayload
		if err := decode(in.Payload, &p); err != nil {
			s.reject(c, in.Type, err)
			return
		}
		_ = s.coord.Message(ctx, sess, domain.RoomKey(p.Room), p.Text)
	case TypeKickUser:
		var p KickPayload
		if err := decode(in.Payload, &p); err != nil {
			s.reject(c, in.Type, err)
			return
		}
		_ = s.coord.Kick(ctx, sess, domain.RoomKey(p.Room), domain.UserID(p.Target()))
	default:
		s.reject(c, in.Type, errors.New("unknown event type"))
	}
}

// reject answers a malformed frame privately.
func (s *Server) reject(c *Conn, op string, err error) {
	s.hub.SendTo(c.id, presence.Event{Type: presence.TypeError, Payload: presence.ErrorPayload{
		Op:      op,
		Code:    domain.Code(domain.ErrInvalidInput),
		Message: err.Error(),
	}})
}
