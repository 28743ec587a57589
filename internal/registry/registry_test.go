package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/mocks"
	"github.com/cwrk-planet/room-chat/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sequenceKeys(keys ...domain.RoomKey) KeyGenerator {
	var mu sync.Mutex
	i := 0
	return func() (domain.RoomKey, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(keys) {
			return "", errors.New("out of keys")
		}
		k := keys[i]
		i++
		return k, nil
	}
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return New(st, slog.Default(), opts...), st
}

func TestRegistry_CreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist owner as the only member", func(t *testing.T) {
		req := require.New(t)
		reg, st := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))

		rm, err := reg.CreateRoom(ctx, "alice", "general")
		req.NoError(err)
		req.Equal(domain.RoomKey("K1"), rm.Key)
		req.Equal(domain.UserID("alice"), rm.OwnerID)
		req.Equal([]domain.UserID{"alice"}, rm.Members)

		stored, err := st.GetRoom(ctx, "K1")
		req.NoError(err)
		req.Equal("general", stored.Name)
	})

	t.Run("should retry on key collision", func(t *testing.T) {
		req := require.New(t)
		reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1", "K1", "K2")))

		first, err := reg.CreateRoom(ctx, "alice", "a")
		req.NoError(err)
		second, err := reg.CreateRoom(ctx, "bob", "b")
		req.NoError(err)
		req.Equal(domain.RoomKey("K1"), first.Key)
		req.Equal(domain.RoomKey("K2"), second.Key)
	})

	t.Run("should default the name to the key", func(t *testing.T) {
		req := require.New(t)
		reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K9")))

		rm, err := reg.CreateRoom(ctx, "alice", "  ")
		req.NoError(err)
		req.Equal("K9", rm.Name)
	})

	t.Run("should generate url-safe keys by default", func(t *testing.T) {
		req := require.New(t)
		reg, _ := newTestRegistry(t)

		rm, err := reg.CreateRoom(ctx, "alice", "general")
		req.NoError(err)
		req.Len(string(rm.Key), 11)
		req.NotContains(string(rm.Key), "/")
		req.NotContains(string(rm.Key), "+")
	})
}

func TestRegistry_JoinRoom(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))
	_, err := reg.CreateRoom(ctx, "alice", "general")
	require.NoError(t, err)

	t.Run("should add the user", func(t *testing.T) {
		req := require.New(t)
		rm, err := reg.JoinRoom(ctx, "K1", "bob")
		req.NoError(err)
		req.Equal([]domain.UserID{"alice", "bob"}, rm.Members)
	})

	t.Run("should be idempotent", func(t *testing.T) {
		req := require.New(t)
		first, err := reg.JoinRoom(ctx, "K1", "bob")
		req.NoError(err)
		second, err := reg.JoinRoom(ctx, "K1", "bob")
		req.NoError(err)
		req.Equal(first, second)
		req.Equal([]domain.UserID{"alice", "bob"}, second.Members)
	})

	t.Run("should fail on unknown room", func(t *testing.T) {
		_, err := reg.JoinRoom(ctx, "nope", "bob")
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestRegistry_LeaveRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("should remove a regular member", func(t *testing.T) {
		req := require.New(t)
		reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))
		_, err := reg.CreateRoom(ctx, "alice", "general")
		req.NoError(err)
		_, err = reg.JoinRoom(ctx, "K1", "bob")
		req.NoError(err)

		rm, deleted, err := reg.LeaveRoom(ctx, "K1", "bob")
		req.NoError(err)
		req.False(deleted)
		req.Equal([]domain.UserID{"alice"}, rm.Members)

		_, _, err = reg.LeaveRoom(ctx, "K1", "bob")
		req.ErrorIs(err, domain.ErrNotMember)
	})

	t.Run("should delete the room when the owner leaves", func(t *testing.T) {
		req := require.New(t)
		reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))
		_, err := reg.CreateRoom(ctx, "alice", "general")
		req.NoError(err)
		_, err = reg.JoinRoom(ctx, "K1", "bob")
		req.NoError(err)

		rm, deleted, err := reg.LeaveRoom(ctx, "K1", "alice")
		req.NoError(err)
		req.True(deleted)
		req.Equal([]domain.UserID{"bob"}, rm.Members)

		_, err = reg.GetRoom(ctx, "K1")
		req.ErrorIs(err, domain.ErrRoomNotFound)

		_, _, err = reg.LeaveRoom(ctx, "K1", "alice")
		req.ErrorIs(err, domain.ErrRoomNotFound)
	})
}

func TestRegistry_KickMember(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))
	_, err := reg.CreateRoom(ctx, "alice", "general")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, "K1", "bob")
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, "K1", "carol")
	require.NoError(t, err)

	t.Run("should refuse non owners without changing membership", func(t *testing.T) {
		req := require.New(t)
		_, err := reg.KickMember(ctx, "K1", "bob", "carol")
		req.ErrorIs(err, domain.ErrNotOwner)

		rm, err := reg.GetRoom(ctx, "K1")
		req.NoError(err)
		req.Equal([]domain.UserID{"alice", "bob", "carol"}, rm.Members)
	})

	t.Run("should refuse kicking the owner", func(t *testing.T) {
		_, err := reg.KickMember(ctx, "K1", "alice", "alice")
		require.ErrorIs(t, err, domain.ErrCannotKickSelf)
	})

	t.Run("should refuse unknown targets", func(t *testing.T) {
		_, err := reg.KickMember(ctx, "K1", "alice", "mallory")
		require.ErrorIs(t, err, domain.ErrNotMember)
	})

	t.Run("should remove the target", func(t *testing.T) {
		req := require.New(t)
		rm, err := reg.KickMember(ctx, "K1", "alice", "bob")
		req.NoError(err)
		req.Equal([]domain.UserID{"alice", "carol"}, rm.Members)
	})

	t.Run("should fail on unknown room", func(t *testing.T) {
		_, err := reg.KickMember(ctx, "nope", "alice", "bob")
		require.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestRegistry_DeleteRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))
	_, err := reg.CreateRoom(ctx, "alice", "general")
	req.NoError(err)
	_, err = reg.JoinRoom(ctx, "K1", "bob")
	req.NoError(err)

	_, err = reg.DeleteRoom(ctx, "K1", "bob")
	req.ErrorIs(err, domain.ErrNotOwner)

	last, err := reg.DeleteRoom(ctx, "K1", "alice")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, last.Members)

	_, err = reg.DeleteRoom(ctx, "K1", "alice")
	req.ErrorIs(err, domain.ErrRoomNotFound)
}

func TestRegistry_RoomsOwnedBy_CreationOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("Kc", "Ka", "Kb", "Kx")), WithClock(clock))

	for _, owner := range []domain.UserID{"alice", "alice", "alice", "bob"} {
		_, err := reg.CreateRoom(ctx, owner, "r")
		req.NoError(err)
	}

	rooms, err := reg.RoomsOwnedBy(ctx, "alice")
	req.NoError(err)
	req.Len(rooms, 3)
	req.Equal(domain.RoomKey("Kc"), rooms[0].Key)
	req.Equal(domain.RoomKey("Ka"), rooms[1].Key)
	req.Equal(domain.RoomKey("Kb"), rooms[2].Key)
}

func TestRegistry_StorageErrorAbortsMutation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	reg := New(store.NewGuarded(mockStore, time.Second), slog.Default())
	ctx := context.Background()

	rm := domain.NewRoom("K1", "general", "alice", time.Now())
	mockStore.EXPECT().GetRoom(gomock.Any(), domain.RoomKey("K1")).Return(rm, nil).Times(1)
	mockStore.EXPECT().PutRoom(gomock.Any(), gomock.Any()).Return(errors.New("i/o timeout")).Times(1)

	_, err := reg.JoinRoom(ctx, "K1", "bob")
	req.ErrorIs(err, domain.ErrStorage)

	// очередь комнаты продолжает работать после ошибки
	mockStore.EXPECT().GetRoom(gomock.Any(), domain.RoomKey("K1")).Return(domain.NewRoom("K1", "general", "alice", time.Now()), nil).Times(1)
	mockStore.EXPECT().PutRoom(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	got, err := reg.JoinRoom(ctx, "K1", "bob")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, got.Members)
}

// For any interleaving of join/leave on one room, the final membership is the
// set of users whose last successful operation was a join.
func TestRegistry_ConcurrentJoinLeave_NoLostUpdates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	reg, _ := newTestRegistry(t, WithKeyGenerator(sequenceKeys("K1")))
	_, err := reg.CreateRoom(ctx, "owner", "busy")
	req.NoError(err)

	const users = 20
	const opsPerUser = 50

	var wg sync.WaitGroup
	lastJoined := make([]bool, users)
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			id := domain.UserID(fmt.Sprintf("user-%d", u))
			rnd := rand.New(rand.NewSource(int64(u)))
			joined := false
			for i := 0; i < opsPerUser; i++ {
				if rnd.Intn(2) == 0 {
					if _, err := reg.JoinRoom(ctx, "K1", id); err == nil {
						joined = true
					}
				} else {
					if _, _, err := reg.LeaveRoom(ctx, "K1", id); err == nil {
						joined = false
					}
				}
			}
			lastJoined[u] = joined
		}(u)
	}
	wg.Wait()

	rm, err := reg.GetRoom(ctx, "K1")
	req.NoError(err)

	want := []domain.UserID{"owner"}
	for u, joined := range lastJoined {
		if joined {
			want = append(want, domain.UserID(fmt.Sprintf("user-%d", u)))
		}
	}
	req.ElementsMatch(want, rm.Members)
	req.Equal(0, reg.locks.size())
}

func TestRegistry_UpdateSerializesSameKey(t *testing.T) {
	req := require.New(t)
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		overlap bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Update(ctx, "K1", func(*Tx) error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	req.False(overlap)
}
