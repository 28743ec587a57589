package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/room-chat/internal/auth"
	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/presence"
	"github.com/cwrk-planet/room-chat/internal/registry"
	"github.com/cwrk-planet/room-chat/internal/store"
)

type wsEnv struct {
	srv    *httptest.Server
	coord  *presence.Coordinator
	reg    *registry.Registry
	tokens map[string]string
}

func newWSEnv(t *testing.T, users ...string) *wsEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	provider, err := auth.NewProvider(auth.Config{Secret: "0123456789abcdef0123456789abcdef", TTL: time.Hour})
	require.NoError(t, err)

	tokens := make(map[string]string)
	for _, name := range users {
		u, err := domain.NewUser(domain.UserID(name), name, name+"@example.com", "hash", time.Now())
		require.NoError(t, err)
		require.NoError(t, st.CreateUser(context.Background(), u))
		tok, _, err := provider.Issue(u)
		require.NoError(t, err)
		tokens[name] = tok
	}

	reg := registry.New(st, log)
	hub := NewHub(log)
	coord := presence.NewCoordinator(reg, st, hub, log)
	wsSrv := NewServer(hub, coord, provider, log, Options{PingEvery: time.Second, SendBuffer: 16})

	srv := httptest.NewServer(http.HandlerFunc(wsSrv.HandleWS))
	t.Cleanup(srv.Close)
	return &wsEnv{srv: srv, coord: coord, reg: reg, tokens: tokens}
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *wsEnv) dial(t *testing.T, user string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	h := http.Header{}
	h.Set("Authorization", "Bearer "+e.tokens[user])
	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(typ string, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

// expect reads frames until one of type typ arrives.
func (c *client) expect(typ string) frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}

func TestServer_RejectsWithoutToken(t *testing.T) {
	env := newWSEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RoomLifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	env := newWSEnv(t, "A", "B")

	rm, err := env.coord.CreateRoom(ctx, "A", "general")
	req.NoError(err)
	k := string(rm.Key)

	a := env.dial(t, "A")
	b := env.dial(t, "B")
	waitFor(t, func() bool { return env.coord.SessionCount() == 2 })

	a.send(TypeJoin, RoomPayload{Room: k})
	a.expect(presence.TypeRoomState)

	b.send(TypeJoin, RoomPayload{Room: k})
	var joined presence.MembershipPayload
	req.NoError(json.Unmarshal(a.expect(presence.TypeJoined).Payload, &joined))
	req.Equal(domain.UserID("B"), joined.UserID)
	var state presence.RoomStatePayload
	req.NoError(json.Unmarshal(b.expect(presence.TypeRoomState).Payload, &state))
	req.ElementsMatch([]domain.UserID{"A", "B"}, state.Members)

	a.send(TypeMessage, MessagePayload{Room: k, Text: "hi"})
	for _, c := range []*client{a, b} {
		var msg presence.MessagePayload
		req.NoError(json.Unmarshal(c.expect(presence.TypeMessage).Payload, &msg))
		req.Equal("A", msg.Username)
		req.Equal("hi", msg.Text)
	}

	b.send(TypeKickUser, KickPayload{Room: k, TargetUserID: "A"})
	var denied presence.ErrorPayload
	req.NoError(json.Unmarshal(b.expect(presence.TypeError).Payload, &denied))
	req.Equal("forbidden", denied.Code)

	a.send(TypeKickUser, KickPayload{Room: k, TargetUserID: "B"})
	b.expect(presence.TypeKicked)
	var kicked presence.UserKickedPayload
	req.NoError(json.Unmarshal(a.expect(presence.TypeUserKicked).Payload, &kicked))
	req.Equal(domain.UserID("B"), kicked.KickedUserID)

	snap, err := env.reg.GetRoom(ctx, rm.Key)
	req.NoError(err)
	req.Equal([]domain.UserID{"A"}, snap.Members)

	a.send(TypeLeave, RoomPayload{Room: k})
	a.expect(presence.TypeRoomClosed)
	_, err = env.reg.GetRoom(ctx, rm.Key)
	req.ErrorIs(err, domain.ErrRoomNotFound)
}

func TestServer_DisconnectLeavesRoom(t *testing.T) {
	ctx := context.Background()
	env := newWSEnv(t, "A", "B")
	rm, err := env.coord.CreateRoom(ctx, "A", "")
	require.NoError(t, err)
	k := string(rm.Key)

	a := env.dial(t, "A")
	b := env.dial(t, "B")
	a.send(TypeJoin, RoomPayload{Room: k})
	a.expect(presence.TypeRoomState)
	b.send(TypeJoin, RoomPayload{Room: k})
	b.expect(presence.TypeRoomState)

	require.NoError(t, b.conn.Close())
	a.expect(presence.TypeLeft)
	waitFor(t, func() bool {
		snap, err := env.reg.GetRoom(ctx, rm.Key)
		return err == nil && len(snap.Members) == 1
	})
	waitFor(t, func() bool { return env.coord.SessionCount() == 1 })
}

func TestServer_MalformedFrame(t *testing.T) {
	env := newWSEnv(t, "A")
	a := env.dial(t, "A")

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var p presence.ErrorPayload
	require.NoError(t, json.Unmarshal(a.expect(presence.TypeError).Payload, &p))
	require.Equal(t, "invalid_input", p.Code)

	a.send("dance", nil)
	a.expect(presence.TypeError)
}
