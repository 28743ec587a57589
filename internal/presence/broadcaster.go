package presence

import "github.com/cwrk-planet/room-chat/internal/domain"

// ConnID identifies one transport connection.
type ConnID string

// Broadcaster delivers events to connections. It carries no business rules:
// Broadcast reaches the connections attached to the room at call time and
// SendTo silently drops frames for connections that are already gone.
type Broadcaster interface {
	Attach(room domain.RoomKey, conn ConnID)
	Detach(room domain.RoomKey, conn ConnID)
	Broadcast(room domain.RoomKey, ev Event) int
	SendTo(conn ConnID, ev Event)
}
