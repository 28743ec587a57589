package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/metrics"
	"github.com/cwrk-planet/room-chat/internal/security"
	"github.com/cwrk-planet/room-chat/internal/store"
)

const (
	DefaultKeyBytes = 8
	maxKeyAttempts  = 5
)

// KeyGenerator returns a fresh URL-safe room key.
type KeyGenerator func() (domain.RoomKey, error)

func RandomKeys(n int) KeyGenerator {
	if n <= 0 {
		n = DefaultKeyBytes
	}
	return func() (domain.RoomKey, error) {
		s, err := security.RandomStringURLSafe(n)
		return domain.RoomKey(s), err
	}
}

// Registry is the source of truth for room existence, ownership and membership.
// Mutations on one room key are serialized; different keys proceed independently.
type Registry struct {
	store  store.Store
	locks  *roomLocks
	newKey KeyGenerator
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Registry)

func WithKeyGenerator(g KeyGenerator) Option {
	return func(r *Registry) { r.newKey = g }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(st store.Store, log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		locks:  newRoomLocks(),
		newKey: RandomKeys(DefaultKeyBytes),
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update runs fn while holding the exclusive lock of key. Everything fn does
// (membership reads, persistence, connection bookkeeping, broadcasts) is
// ordered against every other Update on the same key.
func (r *Registry) Update(ctx context.Context, key domain.RoomKey, fn func(tx *Tx) error) error {
	unlock := r.locks.lock(key)
	defer unlock()

	return fn(&Tx{ctx: ctx, reg: r, key: key})
}

// View runs fn while holding the shared lock of key: concurrent Views proceed,
// Updates wait.
func (r *Registry) View(key domain.RoomKey, fn func() error) error {
	unlock := r.locks.rlock(key)
	defer unlock()

	return fn()
}

// CreateRoom generates a key not yet present in the store and persists
// {key, owner, members: {owner}}.
func (r *Registry) CreateRoom(ctx context.Context, owner domain.UserID, name string) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if owner == "" {
		return domain.Room{}, domain.ErrUnauthorized
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := r.newKey()
		if err != nil {
			return domain.Room{}, fmt.Errorf("generate room key: %w", err)
		}

		var created domain.Room
		err = r.Update(ctx, key, func(tx *Tx) error {
			if _, err := r.store.GetRoom(ctx, key); err == nil {
				return store.ErrAlreadyExists
			} else if !errors.Is(err, store.ErrNotFound) {
				return storageErr(err)
			}
			roomName := name
			if roomName == "" {
				roomName = string(key)
			}
			rm := domain.NewRoom(key, roomName, owner, r.now())
			if err := r.store.CreateRoom(ctx, rm); err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return err
				}
				return storageErr(err)
			}
			created = rm.Clone()
			return nil
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			r.log.Debug("room key collision, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}

		metrics.RoomsCreated.Inc()
		r.log.Info("room created", "room", created.Key, "owner", owner)
		return created, nil
	}

	return domain.Room{}, fmt.Errorf("%w: no free room key after %d attempts", domain.ErrStorage, maxKeyAttempts)
}

func (r *Registry) JoinRoom(ctx context.Context, key domain.RoomKey, user domain.UserID) (domain.Room, error) {
	var out domain.Room
	err := r.Update(ctx, key, func(tx *Tx) (err error) {
		out, err = tx.Join(user)
		return err
	})
	return out, err
}

// LeaveRoom reports deleted=true when the owner left and the room is gone.
func (r *Registry) LeaveRoom(ctx context.Context, key domain.RoomKey, user domain.UserID) (domain.Room, bool, error) {
	var (
		out     domain.Room
		deleted bool
	)
	err := r.Update(ctx, key, func(tx *Tx) (err error) {
		out, deleted, err = tx.Leave(user)
		return err
	})
	return out, deleted, err
}

func (r *Registry) DeleteRoom(ctx context.Context, key domain.RoomKey, requester domain.UserID) (domain.Room, error) {
	var out domain.Room
	err := r.Update(ctx, key, func(tx *Tx) (err error) {
		out, err = tx.Delete(requester)
		return err
	})
	return out, err
}

func (r *Registry) KickMember(ctx context.Context, key domain.RoomKey, requester, target domain.UserID) (domain.Room, error) {
	var out domain.Room
	err := r.Update(ctx, key, func(tx *Tx) (err error) {
		out, err = tx.Kick(requester, target)
		return err
	})
	return out, err
}

// GetRoom reads the stored snapshot without taking the room lock.
func (r *Registry) GetRoom(ctx context.Context, key domain.RoomKey) (domain.Room, error) {
	rm, err := r.store.GetRoom(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, storageErr(err)
	}
	return rm.Clone(), nil
}

// RoomsOwnedBy returns the rooms of owner in creation order.
func (r *Registry) RoomsOwnedBy(ctx context.Context, owner domain.UserID) ([]domain.Room, error) {
	rooms, err := r.store.ListRoomsByOwner(ctx, owner)
	if err != nil {
		return nil, storageErr(err)
	}
	return rooms, nil
}

func storageErr(err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
