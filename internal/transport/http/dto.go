package http

import (
	"time"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

type UpdateProfileRequest struct {
	Field string `json:"field" validate:"required,oneof=username email password"`
	Value string `json:"value" validate:"required"`
}

type UserResponse struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	CreatedAt time.Time     `json:"createdAt"`
}

type CreateRoomRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type RoomResponse struct {
	Key       domain.RoomKey  `json:"key"`
	Name      string          `json:"name"`
	OwnerID   domain.UserID   `json:"ownerId"`
	Members   []domain.UserID `json:"members"`
	Online    []domain.UserID `json:"online"`
	CreatedAt time.Time       `json:"createdAt"`
}

type RoomsListResponse struct {
	Items []RoomResponse `json:"items"`
}

func toUser(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}
