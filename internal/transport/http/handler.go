package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/cwrk-planet/room-chat/internal/auth"
	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/presence"
	"github.com/cwrk-planet/room-chat/internal/registry"
	"github.com/cwrk-planet/room-chat/internal/service"
	httpmw "github.com/cwrk-planet/room-chat/internal/transport/http/middleware"
)

type Handler struct {
	accounts *service.AccountService
	coord    *presence.Coordinator
	reg      *registry.Registry
	tokens   *auth.Provider
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(accounts *service.AccountService, coord *presence.Coordinator, reg *registry.Registry, tokens *auth.Provider, log *slog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		coord:    coord,
		reg:      reg,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStorage):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("handler."+op, "err", err, "path", r.URL.Path)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: domain.Code(err)})
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: "invalid_input"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_input"})
		return false
	}
	return true
}

// POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, "Register", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(u))
}

// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, "Login", err)
		return
	}
	token, exp, err := h.tokens.Issue(u)
	if err != nil {
		h.writeError(w, r, "Login.Issue", err)
		return
	}
	http.SetCookie(w, h.tokens.Cookie(token, exp))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp, User: toUser(u)})
}

// POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.tokens.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}

// GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Me(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, "Me", err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

// PATCH /me
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.UpdateProfile(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.Field, req.Value)
	if err != nil {
		h.writeError(w, r, "UpdateProfile", err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	rm, err := h.coord.CreateRoom(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.Name)
	if err != nil {
		h.writeError(w, r, "CreateRoom", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toRoom(rm))
}

// GET /rooms: комнаты, которыми владеет пользователь
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.reg.RoomsOwnedBy(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		h.writeError(w, r, "ListRooms", err)
		return
	}
	writeJSON(w, http.StatusOK, RoomsListResponse{
		Items: lo.Map(rooms, func(rm domain.Room, _ int) RoomResponse { return h.toRoom(rm) }),
	})
}

// GET /rooms/{key}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.reg.GetRoom(r.Context(), domain.RoomKey(chi.URLParam(r, "key")))
	if err != nil {
		h.writeError(w, r, "GetRoom", err)
		return
	}
	if !rm.IsMember(httpmw.UserIDFromCtx(r.Context())) {
		h.writeError(w, r, "GetRoom", domain.ErrNotMember)
		return
	}
	writeJSON(w, http.StatusOK, h.toRoom(rm))
}

// DELETE /rooms/{key}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	key := domain.RoomKey(chi.URLParam(r, "key"))
	if err := h.coord.DeleteRoom(r.Context(), httpmw.UserIDFromCtx(r.Context()), key); err != nil {
		h.writeError(w, r, "DeleteRoom", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toRoom(rm domain.Room) RoomResponse {
	members := rm.Members
	if members == nil {
		members = []domain.UserID{}
	}
	return RoomResponse{
		Key:       rm.Key,
		Name:      rm.Name,
		OwnerID:   rm.OwnerID,
		Members:   members,
		Online:    lo.Intersect(members, h.coord.Online(rm.Key)),
		CreatedAt: rm.CreatedAt,
	}
}
