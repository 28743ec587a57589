package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/metrics"
	"github.com/cwrk-planet/room-chat/internal/registry"
	"github.com/cwrk-planet/room-chat/internal/store"
)

const DefaultMaxMessageLen = 4096

const (
	msgRoomClosedOwnerLeft = "room closed: the owner left"
	msgRoomDeleted         = "room deleted by owner"
	msgKicked              = "you have been kicked from the room"
)

// UserDirectory resolves display names for authenticated users.
type UserDirectory interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// Coordinator owns the session state machine. Every transition that touches a
// room runs inside registry.Update (or View for messages) of that room, so the
// membership change, the connection bookkeeping and the broadcast are observed
// in one order by every member.
type Coordinator struct {
	reg   *registry.Registry
	users UserDirectory
	bc    Broadcaster
	log   *slog.Logger

	now           func() time.Time
	maxMessageLen int

	mu       sync.RWMutex
	sessions map[ConnID]*Session
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithMaxMessageLen(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxMessageLen = n
		}
	}
}

func NewCoordinator(reg *registry.Registry, users UserDirectory, bc Broadcaster, log *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		reg:           reg,
		users:         users,
		bc:            bc,
		log:           log,
		now:           time.Now,
		maxMessageLen: DefaultMaxMessageLen,
		sessions:      make(map[ConnID]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect authenticates a new connection. An empty user means the transport
// could not resolve an identity and the connection must be refused.
func (c *Coordinator) Connect(ctx context.Context, conn ConnID, user domain.UserID) (*Session, error) {
	if user == "" {
		return nil, domain.ErrUnauthorized
	}
	u, err := c.users.GetUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	s := &Session{conn: conn, user: u.ID, username: u.Username, state: StateIdle}

	c.mu.Lock()
	c.sessions[conn] = s
	c.mu.Unlock()

	metrics.SessionsActive.Inc()
	c.log.Debug("session connected", "conn", conn, "user", u.ID)
	return s, nil
}

// Disconnect tears the session down. It never fails: implicit leave errors
// are only logged.
func (c *Coordinator) Disconnect(ctx context.Context, s *Session) {
	if s == nil || s.State() == StateDisconnected {
		return
	}
	if key, ok := s.Room(); ok {
		if err := c.leaveRoom(ctx, s, key, false); err != nil {
			c.log.Warn("implicit leave failed", "conn", s.conn, "room", key, "err", err)
		}
	}
	s.close()

	c.mu.Lock()
	delete(c.sessions, s.conn)
	c.mu.Unlock()

	metrics.SessionsActive.Dec()
	c.log.Debug("session disconnected", "conn", s.conn, "user", s.user)
}

func (c *Coordinator) Join(ctx context.Context, s *Session, key domain.RoomKey) error {
	err := c.join(ctx, s, key)
	c.finish(s, "join", err)
	return err
}

func (c *Coordinator) join(ctx context.Context, s *Session, key domain.RoomKey) error {
	if !c.authenticated(s) {
		return domain.ErrUnauthorized
	}
	if key == "" {
		return fmt.Errorf("%w: room key is required", domain.ErrInvalidInput)
	}

	if cur, ok := s.Room(); ok {
		if cur == key {
			return c.reg.View(key, func() error {
				st, err := c.reg.GetRoom(ctx, key)
				if err != nil {
					return err
				}
				c.bc.SendTo(s.conn, c.roomState(st))
				return nil
			})
		}
		// переход в другую комнату: выходим из текущей, только если целевая существует
		if _, err := c.reg.GetRoom(ctx, key); err != nil {
			return err
		}
		if err := c.leaveRoom(ctx, s, cur, true); err != nil {
			return err
		}
	}

	name := c.nameOf(ctx, s)
	return c.reg.Update(ctx, key, func(tx *registry.Tx) error {
		snap, err := tx.Join(s.user)
		if err != nil {
			return err
		}
		s.enter(key)
		c.bc.Attach(key, s.conn)
		c.broadcast(key, Event{Type: TypeJoined, Payload: MembershipPayload{
			UserID:    s.user,
			Username:  name,
			RoomKey:   key,
			Timestamp: c.now(),
		}})
		c.bc.SendTo(s.conn, c.roomState(snap))
		return nil
	})
}

// Leave handles an explicit leave. An empty key means the current room.
func (c *Coordinator) Leave(ctx context.Context, s *Session, key domain.RoomKey) error {
	err := c.leave(ctx, s, key)
	c.finish(s, "leave", err)
	return err
}

func (c *Coordinator) leave(ctx context.Context, s *Session, key domain.RoomKey) error {
	if !c.authenticated(s) {
		return domain.ErrUnauthorized
	}
	cur, ok := s.Room()
	if !ok {
		return domain.ErrNotInRoom
	}
	if key != "" && key != cur {
		return domain.ErrNotMember
	}
	return c.leaveRoom(ctx, s, cur, true)
}

// leaveRoom removes s from key. With explicit == false (disconnect) a user
// that still has another live session in the room keeps the membership and
// only this connection is detached.
func (c *Coordinator) leaveRoom(ctx context.Context, s *Session, key domain.RoomKey, explicit bool) error {
	name := c.nameOf(ctx, s)
	return c.reg.Update(ctx, key, func(tx *registry.Tx) error {
		if !s.inRoom(key) {
			return nil
		}
		if !explicit && c.hasOtherSession(s, key) {
			c.evict(key, s)
			return nil
		}

		snap, deleted, err := tx.Leave(s.user)
		switch {
		case errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrRoomNotFound):
			// членство уже снято, просто чиним состояние сессии
			c.evict(key, c.userSessionsIn(key, s.user)...)
			return nil
		case err != nil:
			return err
		}

		if deleted {
			c.closeRoom(key, msgRoomClosedOwnerLeft)
			return nil
		}

		c.evict(key, c.userSessionsIn(key, s.user)...)
		c.broadcast(key, Event{Type: TypeLeft, Payload: MembershipPayload{
			UserID:    s.user,
			Username:  name,
			RoomKey:   snap.Key,
			Timestamp: c.now(),
		}})
		return nil
	})
}

// Message relays text to the current room. An empty key means the current room.
func (c *Coordinator) Message(ctx context.Context, s *Session, key domain.RoomKey, text string) error {
	err := c.message(ctx, s, key, text)
	c.finish(s, "message", err)
	return err
}

func (c *Coordinator) message(ctx context.Context, s *Session, key domain.RoomKey, text string) error {
	if !c.authenticated(s) {
		return domain.ErrUnauthorized
	}
	cur, ok := s.Room()
	if !ok {
		return domain.ErrNotInRoom
	}
	if key != "" && key != cur {
		return domain.ErrNotMember
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > c.maxMessageLen {
		return fmt.Errorf("%w: message longer than %d", domain.ErrInvalidInput, c.maxMessageLen)
	}

	name := c.nameOf(ctx, s)
	return c.reg.View(cur, func() error {
		if !s.inRoom(cur) {
			return domain.ErrNotInRoom
		}
		c.broadcast(cur, Event{Type: TypeMessage, Payload: MessagePayload{
			UserID:    s.user,
			Username:  name,
			Text:      text,
			RoomKey:   cur,
			Timestamp: c.now(),
		}})
		return nil
	})
}

// Kick removes target from the requester's current room. Ownership is checked
// against the registry, never against session state.
func (c *Coordinator) Kick(ctx context.Context, s *Session, key domain.RoomKey, target domain.UserID) error {
	err := c.kick(ctx, s, key, target)
	c.finish(s, "kick", err)
	return err
}

func (c *Coordinator) kick(ctx context.Context, s *Session, key domain.RoomKey, target domain.UserID) error {
	if !c.authenticated(s) {
		return domain.ErrUnauthorized
	}
	cur, ok := s.Room()
	if !ok {
		return domain.ErrNotInRoom
	}
	if key != "" && key != cur {
		return domain.ErrNotMember
	}
	if target == "" {
		return fmt.Errorf("%w: target user is required", domain.ErrInvalidInput)
	}

	name := c.displayName(ctx, target)

	return c.reg.Update(ctx, cur, func(tx *registry.Tx) error {
		if !s.inRoom(cur) {
			return domain.ErrNotInRoom
		}
		if _, err := tx.Kick(s.user, target); err != nil {
			if errors.Is(err, domain.ErrNotOwner) {
				return domain.ErrForbidden
			}
			return err
		}

		for _, ts := range c.userSessionsIn(cur, target) {
			c.evict(cur, ts)
			c.bc.SendTo(ts.conn, Event{Type: TypeKicked, Payload: KickedPayload{
				RoomKey: cur,
				Message: msgKicked,
			}})
		}
		c.broadcast(cur, Event{Type: TypeUserKicked, Payload: UserKickedPayload{
			KickedUserID: target,
			Message:      name + " has been kicked from the room",
			RoomKey:      cur,
			Timestamp:    c.now(),
		}})
		return nil
	})
}

func (c *Coordinator) CreateRoom(ctx context.Context, owner domain.UserID, name string) (domain.Room, error) {
	rm, err := c.reg.CreateRoom(ctx, owner, name)
	metrics.MembershipOps.WithLabelValues("create", metrics.Result(err)).Inc()
	return rm, err
}

// DeleteRoom removes key on behalf of requester and evicts every live session.
func (c *Coordinator) DeleteRoom(ctx context.Context, requester domain.UserID, key domain.RoomKey) error {
	err := c.reg.Update(ctx, key, func(tx *registry.Tx) error {
		if _, err := tx.Delete(requester); err != nil {
			return err
		}
		c.closeRoom(key, msgRoomDeleted)
		return nil
	})
	metrics.MembershipOps.WithLabelValues("delete", metrics.Result(err)).Inc()
	return err
}

// Online returns the distinct users with a live session in key.
func (c *Coordinator) Online(key domain.RoomKey) []domain.UserID {
	return lo.Uniq(lo.Map(c.sessionsIn(key), func(s *Session, _ int) domain.UserID {
		return s.user
	}))
}

// SessionCount returns the number of connected sessions.
func (c *Coordinator) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// closeRoom notifies everyone in key, owner included, then evicts them.
// Caller holds the room lock.
func (c *Coordinator) closeRoom(key domain.RoomKey, reason string) {
	c.broadcast(key, Event{Type: TypeRoomClosed, Payload: RoomClosedPayload{
		RoomKey:   key,
		Message:   reason,
		Timestamp: c.now(),
	}})
	c.evict(key, c.sessionsIn(key)...)
}

func (c *Coordinator) evict(key domain.RoomKey, ss ...*Session) {
	for _, s := range ss {
		s.exit()
		c.bc.Detach(key, s.conn)
	}
}

func (c *Coordinator) broadcast(key domain.RoomKey, ev Event) {
	c.bc.Broadcast(key, ev)
	metrics.Broadcasts.WithLabelValues(ev.Type).Inc()
}

// finish records the outcome and sends a private error reply on failure.
func (c *Coordinator) finish(s *Session, op string, err error) {
	metrics.MembershipOps.WithLabelValues(op, metrics.Result(err)).Inc()
	if err == nil || s == nil {
		return
	}
	code := domain.Code(err)
	msg := err.Error()
	switch code {
	case "storage_unavailable":
		msg = "temporary storage failure, try again"
	case "internal":
		msg = "internal error"
		c.log.Error("operation failed", "op", op, "conn", s.conn, "err", err)
	default:
		c.log.Debug("operation rejected", "op", op, "conn", s.conn, "code", code)
	}
	c.bc.SendTo(s.conn, Event{Type: TypeError, Payload: ErrorPayload{Op: op, Code: code, Message: msg}})
}

func (c *Coordinator) authenticated(s *Session) bool {
	if s == nil {
		return false
	}
	st := s.State()
	return st == StateIdle || st == StateInRoom
}

func (c *Coordinator) roomState(rm domain.Room) Event {
	return Event{Type: TypeRoomState, Payload: RoomStatePayload{
		RoomKey: rm.Key,
		Name:    rm.Name,
		OwnerID: rm.OwnerID,
		Members: rm.Members,
		Online:  c.Online(rm.Key),
	}}
}

func (c *Coordinator) displayName(ctx context.Context, id domain.UserID) string {
	u, err := c.users.GetUser(ctx, id)
	if err != nil {
		return string(id)
	}
	return u.Username
}

// nameOf reads the current username so a profile rename shows up without a
// reconnect. The name cached at Connect is used when the lookup fails.
func (c *Coordinator) nameOf(ctx context.Context, s *Session) string {
	u, err := c.users.GetUser(ctx, s.user)
	if err != nil {
		return s.username
	}
	return u.Username
}

func (c *Coordinator) sessionsIn(key domain.RoomKey) []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Filter(lo.Values(c.sessions), func(s *Session, _ int) bool {
		return s.inRoom(key)
	})
}

func (c *Coordinator) userSessionsIn(key domain.RoomKey, user domain.UserID) []*Session {
	return lo.Filter(c.sessionsIn(key), func(s *Session, _ int) bool {
		return s.user == user
	})
}

func (c *Coordinator) hasOtherSession(s *Session, key domain.RoomKey) bool {
	return lo.SomeBy(c.userSessionsIn(key, s.user), func(o *Session) bool {
		return o != s
	})
}
