package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cwrk-planet/room-chat/internal/auth"
	"github.com/cwrk-planet/room-chat/internal/presence"
	"github.com/cwrk-planet/room-chat/internal/registry"
	"github.com/cwrk-planet/room-chat/internal/security"
	"github.com/cwrk-planet/room-chat/internal/service"
	"github.com/cwrk-planet/room-chat/internal/store"
	"github.com/cwrk-planet/room-chat/internal/transport/ws"
)

type api struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	tokens, err := auth.NewProvider(auth.Config{Secret: "0123456789abcdef0123456789abcdef", TTL: time.Hour})
	require.NoError(t, err)

	// монотонные часы, чтобы порядок создания комнат был детерминирован
	var tick time.Duration
	clock := func() time.Time {
		tick += time.Millisecond
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(tick)
	}
	reg := registry.New(st, log, registry.WithClock(clock))
	hub := ws.NewHub(log)
	coord := presence.NewCoordinator(reg, st, hub, log)
	accounts := service.NewAccountService(st, security.BcryptConfig{Cost: bcrypt.MinCost}, log)
	wsSrv := ws.NewServer(hub, coord, tokens, log, ws.Options{})

	router := NewRouter(RouterDeps{
		Handler: NewHandler(accounts, coord, reg, tokens, log),
		Auth:    tokens,
		WS:      wsSrv.HandleWS,
		Store:   st,
		Log:     log,
	})
	return &api{t: t, router: router}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

// signup registers and logs in, returning the bearer token.
func (a *api) signup(username string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/register", "", RegisterRequest{
		Username: username, Email: username + "@example.com", Password: "secret123",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/login", "", LoginRequest{Username: username, Password: "secret123"})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var resp LoginResponse
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(a.t, resp.Token)
	return resp.Token
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAccounts(t *testing.T) {
	a := newAPI(t)
	token := a.signup("alice")

	t.Run("should set the token cookie on login", func(t *testing.T) {
		w := a.do(http.MethodPost, "/login", "", LoginRequest{Username: "alice", Password: "secret123"})
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, auth.DefaultCookieName, cookies[0].Name)
		require.True(t, cookies[0].HttpOnly)
	})

	t.Run("should refuse bad credentials", func(t *testing.T) {
		w := a.do(http.MethodPost, "/login", "", LoginRequest{Username: "alice", Password: "wrong-pass"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should return the profile", func(t *testing.T) {
		w := a.do(http.MethodGet, "/me", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		me := decodeBody[UserResponse](t, w)
		require.Equal(t, "alice", me.Username)
	})

	t.Run("should require auth for the profile", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/me", "", nil).Code)
	})

	t.Run("should validate registration", func(t *testing.T) {
		w := a.do(http.MethodPost, "/register", "", RegisterRequest{Username: "bob", Email: "nope", Password: "secret123"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		w = a.do(http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Email: "a2@example.com", Password: "secret123"})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("should update one profile field", func(t *testing.T) {
		w := a.do(http.MethodPatch, "/me", token, UpdateProfileRequest{Field: "email", Value: "alice@new.example.com"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Equal(t, "alice@new.example.com", decodeBody[UserResponse](t, w).Email)

		w = a.do(http.MethodPatch, "/me", token, UpdateProfileRequest{Field: "role", Value: "admin"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should clear the cookie on logout", func(t *testing.T) {
		w := a.do(http.MethodPost, "/logout", "", nil)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Negative(t, w.Result().Cookies()[0].MaxAge)
	})
}

func TestRooms(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")

	w := a.do(http.MethodPost, "/rooms", alice, CreateRoomRequest{Name: "general"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decodeBody[RoomResponse](t, w)
	require.Equal(t, "general", first.Name)
	require.Len(t, first.Members, 1)

	w = a.do(http.MethodPost, "/rooms", alice, CreateRoomRequest{})
	require.Equal(t, http.StatusCreated, w.Code)
	second := decodeBody[RoomResponse](t, w)
	require.Equal(t, string(second.Key), second.Name)

	t.Run("should list owned rooms in creation order", func(t *testing.T) {
		w := a.do(http.MethodGet, "/rooms", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decodeBody[RoomsListResponse](t, w)
		require.Len(t, list.Items, 2)
		require.Equal(t, first.Key, list.Items[0].Key)
		require.Equal(t, second.Key, list.Items[1].Key)

		require.Empty(t, decodeBody[RoomsListResponse](t, a.do(http.MethodGet, "/rooms", bob, nil)).Items)
	})

	t.Run("should show a room to members only", func(t *testing.T) {
		require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/rooms/"+string(first.Key), alice, nil).Code)
		require.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/rooms/"+string(first.Key), bob, nil).Code)
		require.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/rooms/missing", alice, nil).Code)
	})

	t.Run("should let only the owner delete", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, a.do(http.MethodDelete, "/rooms/"+string(first.Key), bob, nil).Code)
		require.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/rooms/"+string(first.Key), alice, nil).Code)
		require.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/rooms/"+string(first.Key), alice, nil).Code)
	})
}

func TestOps(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/readyz", "", nil).Code)

	a.do(http.MethodGet, "/healthz", "", nil)
	w := a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "roomchat_http_requests_total")
}
