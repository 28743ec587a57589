package domain

import "errors"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotMember      = errors.New("user is not a member of the room")
	ErrAlreadyMember  = errors.New("user is already a member of the room")
	ErrNotOwner       = errors.New("user is not the room owner")
	ErrForbidden      = errors.New("forbidden")
	ErrCannotKickSelf = errors.New("owner cannot kick themselves")
	ErrNotInRoom      = errors.New("session is not in a room")
	ErrInvalidInput   = errors.New("invalid input")
	ErrStorage        = errors.New("storage unavailable")
	ErrConflict       = errors.New("already exists")
)

// Code returns a stable identifier of err for private error replies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrCannotKickSelf):
		return "cannot_kick_self"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrStorage):
		return "storage_unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
