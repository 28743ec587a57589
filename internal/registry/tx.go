package registry

import (
	"context"
	"errors"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/metrics"
	"github.com/cwrk-planet/room-chat/internal/store"
)

// Tx is the exclusive view of one room inside Registry.Update. It must not
// escape the callback.
type Tx struct {
	ctx context.Context
	reg *Registry
	key domain.RoomKey
}

func (tx *Tx) Key() domain.RoomKey { return tx.key }

func (tx *Tx) Context() context.Context { return tx.ctx }

// Room loads the current snapshot.
func (tx *Tx) Room() (domain.Room, error) {
	rm, err := tx.load()
	if err != nil {
		return domain.Room{}, err
	}
	return rm.Clone(), nil
}

// Join is idempotent: a member joining again gets the current snapshot back.
func (tx *Tx) Join(user domain.UserID) (domain.Room, error) {
	rm, err := tx.load()
	if err != nil {
		return domain.Room{}, err
	}
	if !rm.AddMember(user) {
		return rm.Clone(), nil
	}
	if err := tx.persist(rm); err != nil {
		return domain.Room{}, err
	}
	return rm.Clone(), nil
}

// Leave removes user. When user is the owner the room is deleted; the returned
// snapshot then holds the members that still have to be evicted.
func (tx *Tx) Leave(user domain.UserID) (domain.Room, bool, error) {
	rm, err := tx.load()
	if err != nil {
		return domain.Room{}, false, err
	}
	if !rm.IsMember(user) {
		return domain.Room{}, false, domain.ErrNotMember
	}
	if rm.IsOwner(user) {
		if err := tx.remove(); err != nil {
			return domain.Room{}, false, err
		}
		rm.RemoveMember(user)
		return rm.Clone(), true, nil
	}

	rm.RemoveMember(user)
	if err := tx.persist(rm); err != nil {
		return domain.Room{}, false, err
	}
	return rm.Clone(), false, nil
}

// Delete removes the room. Evicting live members is left to the caller.
func (tx *Tx) Delete(requester domain.UserID) (domain.Room, error) {
	rm, err := tx.load()
	if err != nil {
		return domain.Room{}, err
	}
	if !rm.IsOwner(requester) {
		return domain.Room{}, domain.ErrNotOwner
	}
	if err := tx.remove(); err != nil {
		return domain.Room{}, err
	}
	return rm.Clone(), nil
}

func (tx *Tx) Kick(requester, target domain.UserID) (domain.Room, error) {
	rm, err := tx.load()
	if err != nil {
		return domain.Room{}, err
	}
	if !rm.IsOwner(requester) {
		return domain.Room{}, domain.ErrNotOwner
	}
	if rm.IsOwner(target) {
		return domain.Room{}, domain.ErrCannotKickSelf
	}
	if !rm.RemoveMember(target) {
		return domain.Room{}, domain.ErrNotMember
	}
	if err := tx.persist(rm); err != nil {
		return domain.Room{}, err
	}
	return rm.Clone(), nil
}

func (tx *Tx) load() (*domain.Room, error) {
	rm, err := tx.reg.store.GetRoom(tx.ctx, tx.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, storageErr(err)
	}
	return rm, nil
}

func (tx *Tx) persist(rm *domain.Room) error {
	if err := tx.reg.store.PutRoom(tx.ctx, rm); err != nil {
		return storageErr(err)
	}
	return nil
}

func (tx *Tx) remove() error {
	if err := tx.reg.store.DeleteRoom(tx.ctx, tx.key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrRoomNotFound
		}
		return storageErr(err)
	}
	metrics.RoomsDeleted.Inc()
	tx.reg.log.Info("room deleted", "room", tx.key)
	return nil
}
