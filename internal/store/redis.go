package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cwrk-planet/room-chat/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps rooms and users as JSON values; owner indexes are sorted sets scored by creation time.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func roomKey(key domain.RoomKey) string { return fmt.Sprintf("room:%s", key) }

func ownerRoomsKey(owner domain.UserID) string { return fmt.Sprintf("owner:%s:rooms", owner) }

func userKey(id domain.UserID) string { return fmt.Sprintf("user:%s", id) }

func usernameKey(name string) string { return fmt.Sprintf("username:%s", name) }

func emailKey(email string) string { return fmt.Sprintf("email:%s", email) }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	key := roomKey(room.Key)
	return s.atomic(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, ownerRoomsKey(room.OwnerID), redis.Z{
				Score:  float64(room.CreatedAt.UnixNano()),
				Member: string(room.Key),
			})
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) GetRoom(ctx context.Context, key domain.RoomKey) (*domain.Room, error) {
	var rm domain.Room
	if err := getRedisJSON(ctx, s.client, roomKey(key), &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}

func (s *RedisStore) PutRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.Key), data, 0)
		pipe.ZAdd(ctx, ownerRoomsKey(room.OwnerID), redis.Z{
			Score:  float64(room.CreatedAt.UnixNano()),
			Member: string(room.Key),
		})
		return nil
	})
	return err
}

func (s *RedisStore) DeleteRoom(ctx context.Context, key domain.RoomKey) error {
	k := roomKey(key)
	return s.atomic(ctx, func(tx *redis.Tx) error {
		var rm domain.Room
		if err := getRedisJSON(ctx, tx, k, &rm); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			pipe.ZRem(ctx, ownerRoomsKey(rm.OwnerID), string(key))
			return nil
		})
		return err
	}, k)
}

func (s *RedisStore) ListRoomsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Room, error) {
	keys, err := s.client.ZRange(ctx, ownerRoomsKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Room, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, roomKey(domain.RoomKey(k)))
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // удалена между ZRANGE и MGET
		}
		var rm domain.Room
		if err := json.Unmarshal([]byte(str), &rm); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, nil
}

// CreateUser claims the username and email and stores the record in one MULTI.
func (s *RedisStore) CreateUser(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	nameKey, mailKey := usernameKey(u.Username), emailKey(u.Email)
	return s.atomic(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, userKey(u.ID), nameKey, mailKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, nameKey, string(u.ID), 0)
			pipe.Set(ctx, mailKey, string(u.ID), 0)
			pipe.Set(ctx, userKey(u.ID), data, 0)
			return nil
		})
		return err
	}, userKey(u.ID), nameKey, mailKey)
}

func (s *RedisStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	if err := getRedisJSON(ctx, s.client, userKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, err := s.client.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetUser(ctx, domain.UserID(id))
}

// UpdateUser moves the username and email claims together with the record.
// Nothing is written unless every new claim is free.
func (s *RedisStore) UpdateUser(ctx context.Context, u *domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	nameKey, mailKey := usernameKey(u.Username), emailKey(u.Email)
	return s.atomic(ctx, func(tx *redis.Tx) error {
		var old domain.User
		if err := getRedisJSON(ctx, tx, userKey(u.ID), &old); err != nil {
			return err
		}
		nameMoved := old.Username != u.Username
		mailMoved := old.Email != u.Email
		if nameMoved {
			if err := claimFree(ctx, tx, nameKey); err != nil {
				return err
			}
		}
		if mailMoved {
			if err := claimFree(ctx, tx, mailKey); err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if nameMoved {
				pipe.Del(ctx, usernameKey(old.Username))
				pipe.Set(ctx, nameKey, string(u.ID), 0)
			}
			if mailMoved {
				pipe.Del(ctx, emailKey(old.Email))
				pipe.Set(ctx, mailKey, string(u.ID), 0)
			}
			pipe.Set(ctx, userKey(u.ID), data, 0)
			return nil
		})
		return err
	}, userKey(u.ID), nameKey, mailKey)
}

// atomic runs fn under WATCH on keys and retries when a watched key changes
// before EXEC.
func (s *RedisStore) atomic(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis: %d watch retries: %w", maxTxRetries, redis.TxFailedErr)
}

const maxTxRetries = 5

func claimFree(ctx context.Context, tx *redis.Tx, key string) error {
	n, err := tx.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrAlreadyExists
	}
	return nil
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRedisJSON(ctx context.Context, c redisGetter, key string, dst any) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}
