package ws

import "encoding/json"

// Типы входящих событий
const (
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeMessage  = "message"
	TypeKickUser = "kick_user"
)

// Inbound is a client frame. Payload is decoded according to Type.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type MessagePayload struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

type KickPayload struct {
	Room         string `json:"room"`
	TargetUserID string `json:"target_user_id"`
	// старые клиенты шлют camelCase
	TargetUserIDAlt string `json:"targetUserId,omitempty"`
}

func (p KickPayload) Target() string {
	if p.TargetUserID != "" {
		return p.TargetUserID
	}
	return p.TargetUserIDAlt
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
