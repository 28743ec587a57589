package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/room-chat/internal/presence"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func drain(c *Conn) []presence.Event {
	var out []presence.Event
	for {
		select {
		case frame := <-c.send:
			var ev presence.Event
			_ = json.Unmarshal(frame, &ev)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_BroadcastReachesAttachedOnly(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a, b, c := newConn("a", nil, 4), newConn("b", nil, 4), newConn("c", nil, 4)
	h.Register(a)
	h.Register(b)
	h.Register(c)
	h.Attach("k1", "a")
	h.Attach("k1", "b")
	h.Attach("k2", "c")

	n := h.Broadcast("k1", presence.Event{Type: presence.TypeMessage})
	req.Equal(2, n)
	req.Len(drain(a), 1)
	req.Len(drain(b), 1)
	req.Empty(drain(c))

	h.Detach("k1", "b")
	req.Equal(1, h.Broadcast("k1", presence.Event{Type: presence.TypeLeft}))
	req.Empty(drain(b))
	req.ElementsMatch([]presence.ConnID{"a"}, h.Members("k1"))
}

func TestHub_AttachUnknownConnIsIgnored(t *testing.T) {
	h := newTestHub()
	h.Attach("k1", "ghost")
	require.Empty(t, h.Members("k1"))
	require.Zero(t, h.Broadcast("k1", presence.Event{Type: presence.TypeMessage}))
}

func TestHub_DropsWhenBufferFullOrClosed(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	slow := newConn("slow", nil, 1)
	gone := newConn("gone", nil, 1)
	h.Register(slow)
	h.Register(gone)
	h.Attach("k1", "slow")
	h.Attach("k1", "gone")
	gone.Close()

	req.Equal(1, h.Broadcast("k1", presence.Event{Type: presence.TypeMessage}))
	req.Equal(0, h.Broadcast("k1", presence.Event{Type: presence.TypeMessage}))
	req.Len(drain(slow), 1)

	// SendTo на неизвестный conn не паникует
	h.SendTo("nobody", presence.Event{Type: presence.TypeError})
}

func TestHub_UnregisterLeavesAllRooms(t *testing.T) {
	h := newTestHub()
	a := newConn("a", nil, 4)
	h.Register(a)
	h.Attach("k1", "a")
	h.Attach("k2", "a")

	h.Unregister("a")
	require.Empty(t, h.Members("k1"))
	require.Empty(t, h.Members("k2"))
	require.Zero(t, h.ConnCount())
}

func TestKickPayload_Target(t *testing.T) {
	var p KickPayload
	require.NoError(t, json.Unmarshal([]byte(`{"room":"k1","targetUserId":"u2"}`), &p))
	require.Equal(t, "u2", p.Target())
	require.NoError(t, json.Unmarshal([]byte(`{"room":"k1","target_user_id":"u3"}`), &p))
	require.Equal(t, "u3", p.Target())
}
