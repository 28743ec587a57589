package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Создает нового пользователя
// Ожидает уже посчитанный хеш пароля
func NewUser(id UserID, username, email, passwordHash string, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if id == "" || username == "" || email == "" || strings.TrimSpace(passwordHash) == "" {
		return nil, ErrInvalidInput
	}

	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
