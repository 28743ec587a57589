package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/security"
	"github.com/cwrk-planet/room-chat/internal/store"
)

// Поля профиля, которые можно менять через UpdateProfile
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

var ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", domain.ErrUnauthorized)

type AccountService struct {
	store  store.Store
	bcrypt security.BcryptConfig
	log    *slog.Logger

	now   func() time.Time
	newID func() domain.UserID
}

func NewAccountService(st store.Store, bcrypt security.BcryptConfig, log *slog.Logger) *AccountService {
	return &AccountService{
		store:  st,
		bcrypt: bcrypt,
		log:    log,
		now:    time.Now,
		newID:  func() domain.UserID { return domain.UserID(uuid.NewString()) },
	}
}

func (s *AccountService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	if err := validEmail(email); err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u, err := domain.NewUser(s.newID(), username, email, hash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, mapStoreErr(err, "username or email already exists")
	}
	s.log.Info("user registered", "user", u.ID, "username", u.Username)
	return u, nil
}

// Login checks credentials. Unknown user and wrong password are reported the same way.
func (s *AccountService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, mapStoreErr(err, "")
	}
	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *AccountService) Me(ctx context.Context, id domain.UserID) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, mapStoreErr(err, "")
	}
	return u, nil
}

// UpdateProfile changes one field of the profile.
func (s *AccountService) UpdateProfile(ctx context.Context, id domain.UserID, field, value string) (*domain.User, error) {
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}

	switch field {
	case FieldUsername:
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("%w: empty username", domain.ErrInvalidInput)
		}
		u.Username = value
	case FieldEmail:
		if err := validEmail(value); err != nil {
			return nil, err
		}
		u.Email = domain.NormalizeEmail(value)
	case FieldPassword:
		hash, err := s.hash(value)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	default:
		return nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidInput, field)
	}
	u.UpdatedAt = s.now()

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, mapStoreErr(err, field+" already exists")
	}
	s.log.Info("profile updated", "user", u.ID, "field", field)
	return u, nil
}

func (s *AccountService) hash(password string) (string, error) {
	hash, err := security.HashPassword(password, &s.bcrypt)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return "", err
	}
	return hash, nil
}

// validate разделяет правила с DTO-тегами http-слоя ("required,email")
var validate = validator.New()

func validEmail(v string) error {
	if err := validate.Var(strings.TrimSpace(v), "required,email"); err != nil {
		return fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return nil
}

func mapStoreErr(err error, conflict string) error {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return fmt.Errorf("%w: %s", domain.ErrConflict, conflict)
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrUnauthorized
	case errors.Is(err, domain.ErrStorage):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
}
