package presence

import (
	"time"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

// Типы событий, которые уходят клиентам
const (
	TypeJoined     = "joined"      // пользователь присоединился
	TypeLeft       = "left"        // пользователь покинул
	TypeMessage    = "message"     // чат-сообщение
	TypeUserKicked = "user_kicked" // остальным: участника выгнали
	TypeKicked     = "kicked"      // только выгнанному
	TypeRoomClosed = "room_closed" // комната удалена
	TypeRoomState  = "room_state"  // снапшот комнаты для присоединившегося
	TypeError      = "error"       // приватная ошибка
)

// Event is one outbound frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type MembershipPayload struct {
	UserID    domain.UserID  `json:"userId"`
	Username  string         `json:"username"`
	RoomKey   domain.RoomKey `json:"roomKey"`
	Timestamp time.Time      `json:"timestamp"`
}

type MessagePayload struct {
	UserID    domain.UserID  `json:"userId"`
	Username  string         `json:"username"`
	Text      string         `json:"text"`
	RoomKey   domain.RoomKey `json:"roomKey"`
	Timestamp time.Time      `json:"timestamp"`
}

type UserKickedPayload struct {
	KickedUserID domain.UserID  `json:"kickedUserId"`
	Message      string         `json:"message"`
	RoomKey      domain.RoomKey `json:"roomKey"`
	Timestamp    time.Time      `json:"timestamp"`
}

type KickedPayload struct {
	RoomKey domain.RoomKey `json:"roomKey"`
	Message string         `json:"message"`
}

type RoomClosedPayload struct {
	RoomKey   domain.RoomKey `json:"roomKey"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

type RoomStatePayload struct {
	RoomKey domain.RoomKey  `json:"roomKey"`
	Name    string          `json:"name"`
	OwnerID domain.UserID   `json:"ownerId"`
	Members []domain.UserID `json:"members"`
	Online  []domain.UserID `json:"online"`
}

type ErrorPayload struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
