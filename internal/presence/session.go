package presence

import (
	"sync"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

type State int

const (
	StateUnauthenticated State = iota
	StateIdle
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session binds one connection to an authenticated user and at most one room.
// The room of a session only changes while the lock of that room is held.
type Session struct {
	conn     ConnID
	user     domain.UserID
	username string

	mu    sync.Mutex
	state State
	room  domain.RoomKey
}

func (s *Session) ConnID() ConnID { return s.conn }

func (s *Session) UserID() domain.UserID { return s.user }

// Username is the name resolved at Connect.
func (s *Session) Username() string { return s.username }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the current room and whether the session is in one.
func (s *Session) Room() (domain.RoomKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.state == StateInRoom
}

func (s *Session) inRoom(key domain.RoomKey) bool {
	room, ok := s.Room()
	return ok && room == key
}

func (s *Session) enter(key domain.RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateInRoom
	s.room = key
}

func (s *Session) exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInRoom {
		s.state = StateIdle
	}
	s.room = ""
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.room = ""
}
