package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cwrk-planet/room-chat/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is the embedded backend. An empty path opens an in-memory database.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func ownerIndexKey(rm *domain.Room) []byte {
	return fmt.Appendf(nil, "owner:%s:%020d:%s", rm.OwnerID, rm.CreatedAt.UnixNano(), rm.Key)
}

func ownerIndexPrefix(owner domain.UserID) []byte {
	return fmt.Appendf(nil, "owner:%s:", owner)
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) CreateRoom(_ context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(roomKey(room.Key))
		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(ownerIndexKey(room), []byte(room.Key))
	})
}

func (s *BadgerStore) GetRoom(_ context.Context, key domain.RoomKey) (*domain.Room, error) {
	var rm domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(roomKey(key)), &rm)
	})
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (s *BadgerStore) PutRoom(_ context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(roomKey(room.Key)), data); err != nil {
			return err
		}
		return txn.Set(ownerIndexKey(room), []byte(room.Key))
	})
}

func (s *BadgerStore) DeleteRoom(_ context.Context, key domain.RoomKey) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rm domain.Room
		if err := getJSON(txn, []byte(roomKey(key)), &rm); err != nil {
			return err
		}
		if err := txn.Delete([]byte(roomKey(key))); err != nil {
			return err
		}
		return txn.Delete(ownerIndexKey(&rm))
	})
}

func (s *BadgerStore) ListRoomsByOwner(_ context.Context, owner domain.UserID) ([]domain.Room, error) {
	out := make([]domain.Room, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := ownerIndexPrefix(owner)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rm domain.Room
			if err := getJSON(txn, []byte(roomKey(domain.RoomKey(key))), &rm); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, rm)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) CreateUser(_ context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range []string{userKey(u.ID), usernameKey(u.Username), emailKey(u.Email)} {
			if _, err := txn.Get([]byte(k)); err == nil {
				return ErrAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set([]byte(usernameKey(u.Username)), []byte(u.ID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(emailKey(u.Email)), []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(userKey(u.ID)), data)
	})
}

func (s *BadgerStore) GetUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(userKey(id)), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *BadgerStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var id []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernameKey(username)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		id, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, domain.UserID(id))
}

func (s *BadgerStore) UpdateUser(_ context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		var old domain.User
		if err := getJSON(txn, []byte(userKey(u.ID)), &old); err != nil {
			return err
		}
		if old.Username != u.Username {
			if err := claimTxn(txn, usernameKey(u.Username), usernameKey(old.Username), u.ID); err != nil {
				return err
			}
		}
		if old.Email != u.Email {
			if err := claimTxn(txn, emailKey(u.Email), emailKey(old.Email), u.ID); err != nil {
				return err
			}
		}
		return txn.Set([]byte(userKey(u.ID)), data)
	})
}

func claimTxn(txn *badger.Txn, key, oldKey string, id domain.UserID) error {
	if _, err := txn.Get([]byte(key)); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if err := txn.Delete([]byte(oldKey)); err != nil {
		return err
	}
	return txn.Set([]byte(key), []byte(id))
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}
