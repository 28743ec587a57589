package registry

import (
	"sync"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

// roomLocks hands out one RWMutex per room key and forgets it once nobody holds it.
type roomLocks struct {
	mu sync.Mutex
	m  map[domain.RoomKey]*roomLock
}

type roomLock struct {
	sync.RWMutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{m: make(map[domain.RoomKey]*roomLock)}
}

func (l *roomLocks) acquire(key domain.RoomKey) *roomLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl, ok := l.m[key]
	if !ok {
		rl = &roomLock{}
		l.m[key] = rl
	}
	rl.refs++
	return rl
}

func (l *roomLocks) release(key domain.RoomKey, rl *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl.refs--
	if rl.refs == 0 {
		delete(l.m, key)
	}
}

func (l *roomLocks) lock(key domain.RoomKey) (unlock func()) {
	rl := l.acquire(key)
	rl.Lock()
	return func() {
		rl.Unlock()
		l.release(key, rl)
	}
}

func (l *roomLocks) rlock(key domain.RoomKey) (unlock func()) {
	rl := l.acquire(key)
	rl.RLock()
	return func() {
		rl.RUnlock()
		l.release(key, rl)
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
