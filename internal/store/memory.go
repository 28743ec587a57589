package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

// MemoryStore keeps everything in process memory; data is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]domain.Room
	users map[domain.UserID]domain.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[domain.RoomKey]domain.Room),
		users: make(map[domain.UserID]domain.User),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.Key]; ok {
		return ErrAlreadyExists
	}
	s.rooms[room.Key] = room.Clone()
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, key domain.RoomKey) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rm, ok := s.rooms[key]
	if !ok {
		return nil, ErrNotFound
	}
	rm = rm.Clone()
	return &rm, nil
}

func (s *MemoryStore) PutRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[room.Key] = room.Clone()
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, key domain.RoomKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[key]; !ok {
		return ErrNotFound
	}
	delete(s.rooms, key)
	return nil
}

func (s *MemoryStore) ListRoomsByOwner(_ context.Context, owner domain.UserID) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Room, 0)
	for _, rm := range s.rooms {
		if rm.OwnerID == owner {
			out = append(out, rm.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return ErrAlreadyExists
	}
	if s.conflictLocked(user) {
		return ErrAlreadyExists
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	if s.conflictLocked(user) {
		return ErrAlreadyExists
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// conflictLocked reports whether another user already holds user's username or email.
func (s *MemoryStore) conflictLocked(user *domain.User) bool {
	for id, u := range s.users {
		if id == user.ID {
			continue
		}
		if u.Username == user.Username || u.Email == user.Email {
			return true
		}
	}
	return false
}

func sortByCreation(rooms []domain.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Key < rooms[j].Key
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
}
