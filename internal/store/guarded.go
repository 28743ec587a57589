package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/metrics"
)

const DefaultOpTimeout = 3 * time.Second

// Guarded bounds every call of the wrapped store by a timeout and reports
// backend failures as domain.ErrStorage. ErrNotFound and ErrAlreadyExists pass through.
type Guarded struct {
	next    Store
	timeout time.Duration
}

func NewGuarded(next Store, timeout time.Duration) *Guarded {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &Guarded{next: next, timeout: timeout}
}

func (g *Guarded) Unwrap() Store { return g.next }

func (g *Guarded) CreateRoom(ctx context.Context, room *domain.Room) error {
	return g.do(ctx, "create_room", func(ctx context.Context) error {
		return g.next.CreateRoom(ctx, room)
	})
}

func (g *Guarded) GetRoom(ctx context.Context, key domain.RoomKey) (*domain.Room, error) {
	var out *domain.Room
	err := g.do(ctx, "get_room", func(ctx context.Context) (err error) {
		out, err = g.next.GetRoom(ctx, key)
		return err
	})
	return out, err
}

func (g *Guarded) PutRoom(ctx context.Context, room *domain.Room) error {
	return g.do(ctx, "put_room", func(ctx context.Context) error {
		return g.next.PutRoom(ctx, room)
	})
}

func (g *Guarded) DeleteRoom(ctx context.Context, key domain.RoomKey) error {
	return g.do(ctx, "delete_room", func(ctx context.Context) error {
		return g.next.DeleteRoom(ctx, key)
	})
}

func (g *Guarded) ListRoomsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Room, error) {
	var out []domain.Room
	err := g.do(ctx, "list_rooms_by_owner", func(ctx context.Context) (err error) {
		out, err = g.next.ListRoomsByOwner(ctx, owner)
		return err
	})
	return out, err
}

func (g *Guarded) CreateUser(ctx context.Context, user *domain.User) error {
	return g.do(ctx, "create_user", func(ctx context.Context) error {
		return g.next.CreateUser(ctx, user)
	})
}

func (g *Guarded) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var out *domain.User
	err := g.do(ctx, "get_user", func(ctx context.Context) (err error) {
		out, err = g.next.GetUser(ctx, id)
		return err
	})
	return out, err
}

func (g *Guarded) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var out *domain.User
	err := g.do(ctx, "get_user_by_username", func(ctx context.Context) (err error) {
		out, err = g.next.GetUserByUsername(ctx, username)
		return err
	})
	return out, err
}

func (g *Guarded) UpdateUser(ctx context.Context, user *domain.User) error {
	return g.do(ctx, "update_user", func(ctx context.Context) error {
		return g.next.UpdateUser(ctx, user)
	})
}

func (g *Guarded) Ping(ctx context.Context) error {
	return g.do(ctx, "ping", g.next.Ping)
}

func (g *Guarded) Close() error { return g.next.Close() }

func (g *Guarded) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
		return err
	}
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
