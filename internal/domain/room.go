package domain

import (
	"slices"
	"time"
)

type UserID string

type RoomKey string

type Room struct {
	Key       RoomKey   `json:"key"`
	Name      string    `json:"name"`
	OwnerID   UserID    `json:"owner_id"`
	Members   []UserID  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRoom(key RoomKey, name string, owner UserID, now time.Time) *Room {
	return &Room{
		Key:       key,
		Name:      name,
		OwnerID:   owner,
		Members:   []UserID{owner},
		CreatedAt: now,
	}
}

func (r *Room) IsMember(id UserID) bool {
	return slices.Contains(r.Members, id)
}

func (r *Room) IsOwner(id UserID) bool {
	return r.OwnerID == id
}

// AddMember reports whether id was added; existing members are left untouched.
func (r *Room) AddMember(id UserID) bool {
	if r.IsMember(id) {
		return false
	}
	r.Members = append(r.Members, id)
	return true
}

func (r *Room) RemoveMember(id UserID) bool {
	i := slices.Index(r.Members, id)
	if i < 0 {
		return false
	}
	r.Members = slices.Delete(r.Members, i, i+1)
	return true
}

// Clone returns a copy that shares no memory with r.
func (r Room) Clone() Room {
	r.Members = slices.Clone(r.Members)
	return r
}
