package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-s.Send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBindAndUnicast(t *testing.T) {
	h := NewHub()
	s := NewSession("s1")
	h.Bind(s, "p1", "g1")

	h.Unicast("p1", []byte("hello"))
	msgs := drain(s)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", string(msgs[0]))
}

func TestUnicastOfflineIsNoop(t *testing.T) {
	h := NewHub()
	h.Unicast("nobody", []byte("hello"))
}

func TestBroadcastReachesGameMembers(t *testing.T) {
	h := NewHub()
	s1, s2, s3 := NewSession("s1"), NewSession("s2"), NewSession("s3")
	h.Bind(s1, "p1", "g1")
	h.Bind(s2, "p2", "g1")
	h.Bind(s3, "p3", "other-game")

	h.Broadcast("g1", []byte("round"))
	assert.Len(t, drain(s1), 1)
	assert.Len(t, drain(s2), 1)
	assert.Empty(t, drain(s3))
}

func TestUnbindRemovesMembership(t *testing.T) {
	h := NewHub()
	s1, s2 := NewSession("s1"), NewSession("s2")
	h.Bind(s1, "p1", "g1")
	h.Bind(s2, "p2", "g1")

	h.Unbind(s1)
	assert.ElementsMatch(t, []string{"p2"}, h.GamePlayers("g1"))

	h.Broadcast("g1", []byte("still here"))
	assert.Len(t, drain(s2), 1)

	h.Unbind(s2)
	assert.Empty(t, h.GamePlayers("g1"))
}

func TestUnbindIsIdempotent(t *testing.T) {
	h := NewHub()
	s := NewSession("s1")
	h.Bind(s, "p1", "g1")
	h.Unbind(s)
	h.Unbind(s)
}

func TestRebindReplacesAssociation(t *testing.T) {
	h := NewHub()
	s := NewSession("s1")
	h.Bind(s, "p1", "g1")
	h.Bind(s, "p2", "g2")

	assert.Empty(t, h.GamePlayers("g1"))
	assert.ElementsMatch(t, []string{"p2"}, h.GamePlayers("g2"))

	h.Unicast("p2", []byte("hi"))
	assert.Len(t, drain(s), 1)
}

func TestReconnectSupersedesOldSession(t *testing.T) {
	h := NewHub()
	old := NewSession("s1")
	h.Bind(old, "p1", "g1")

	fresh := NewSession("s2")
	h.Bind(fresh, "p1", "g1")

	h.Unicast("p1", []byte("hello again"))
	assert.Empty(t, drain(old))
	assert.Len(t, drain(fresh), 1)

	// Closing the stale transport must not evict the fresh binding.
	h.Unbind(old)
	assert.ElementsMatch(t, []string{"p1"}, h.GamePlayers("g1"))
	h.Unicast("p1", []byte("still bound"))
	assert.Len(t, drain(fresh), 1)
}

func TestBroadcastDropsStalledSession(t *testing.T) {
	h := NewHub()
	stalled := &Session{ID: "s1", Send: make(chan []byte)} // no buffer, never drained
	healthy := NewSession("s2")
	h.Bind(stalled, "p1", "g1")
	h.Bind(healthy, "p2", "g1")

	h.Broadcast("g1", []byte("tick"))
	assert.Len(t, drain(healthy), 1)
	assert.ElementsMatch(t, []string{"p2"}, h.GamePlayers("g1"))
}

func TestCloseSession(t *testing.T) {
	h := NewHub()
	s := NewSession("s1")
	h.Bind(s, "p1", "g1")

	h.CloseSession("p1")
	assert.Empty(t, h.GamePlayers("g1"))

	_, open := <-s.Send
	assert.False(t, open)
}

func TestDropGame(t *testing.T) {
	h := NewHub()
	s1, s2 := NewSession("s1"), NewSession("s2")
	h.Bind(s1, "p1", "g1")
	h.Bind(s2, "p2", "g1")

	h.DropGame("g1")
	assert.Empty(t, h.GamePlayers("g1"))
}
