//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store persists users and rooms. Every backend, durable or not, exposes the same interface.
type Store interface {
	// CreateRoom inserts a new room and fails with ErrAlreadyExists if the key is taken.
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, key domain.RoomKey) (*domain.Room, error)
	// PutRoom replaces the stored room record.
	PutRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, key domain.RoomKey) error
	// ListRoomsByOwner returns rooms ordered by creation time, oldest first.
	ListRoomsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Room, error)

	// CreateUser fails with ErrAlreadyExists if the username or email is taken.
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// UpdateUser fails with ErrAlreadyExists if the new username or email belongs to someone else.
	UpdateUser(ctx context.Context, user *domain.User) error

	Ping(ctx context.Context) error
	Close() error
}
