package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) dial(t *testing.T, path, subprotocol string, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   header,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// await reads until a message of msgType arrives.
func await(t *testing.T, c *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	return awaitWhere(t, c, msgType, func(map[string]interface{}) bool { return true })
}

func awaitWhere(t *testing.T, c *websocket.Conn, msgType string, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg map[string]interface{}
		require.NoError(t, wsjson.Read(ctx, c, &msg), "waiting for %s", msgType)
		if msg["type"] == msgType && match(msg) {
			return msg
		}
	}
}

// closeStatus reads until the server closes the socket.
func closeStatus(t *testing.T, c *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func writeMsg(t *testing.T, c *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, msg))
}

func (e *testEnv) newDuel(t *testing.T) string {
	t.Helper()
	r, err := e.api.registry.CreateDuel("")
	require.NoError(t, err)
	return r.ID
}

func TestDuelSocketEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	id := e.newDuel(t)

	host := e.dial(t, "/ws/duel/"+id+"?role=host&name=Ann&playerId=p-host", "duel", nil)
	joined := await(t, host, "room_joined")
	assert.Equal(t, "host", joined["role"])
	assert.NotEmpty(t, joined["identity"])

	guest := e.dial(t, "/ws/duel/"+id+"?role=guest&name=Bob&playerId=p-guest", "duel", nil)
	await(t, guest, "room_joined")
	peer := await(t, host, "peer_joined")
	assert.Equal(t, "Bob", peer["name"])
	await(t, host, "both_connected")

	writeMsg(t, host, map[string]interface{}{"type": "set_code", "code": "1234"})
	await(t, host, "code_set")
	writeMsg(t, guest, map[string]interface{}{"type": "set_code", "code": "5678"})
	start := await(t, guest, "game_start")
	require.Equal(t, "host", start["turn"])

	// out of turn
	writeMsg(t, guest, map[string]interface{}{"type": "guess", "guess": "1234"})
	assert.Equal(t, "It is not your turn", await(t, guest, "error")["message"])

	writeMsg(t, host, map[string]interface{}{"type": "guess", "guess": "5678"})
	over := await(t, guest, "game_over")
	assert.Equal(t, "host", over["winner"])

	_, ok := e.api.registry.Duel(id)
	assert.False(t, ok, "finished duel leaves the registry")

	e.sessions.Wait()
	winner, err := e.store.LoadPlayer(context.Background(), "p-host")
	require.NoError(t, err)
	assert.Greater(t, winner.MMR, 1500)
	assert.Len(t, e.store.Matches(), 1)
}

func TestSocketKeepsRunningAfterBadJSON(t *testing.T) {
	e := newTestEnv(t)
	id := e.newDuel(t)

	c := e.dial(t, "/ws/duel/"+id+"?role=host", "duel", nil)
	await(t, c, "room_joined")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, "Invalid JSON format", await(t, c, "error")["message"])

	writeMsg(t, c, map[string]interface{}{"type": "set_code", "code": "12"})
	assert.Equal(t, "Code must be exactly 4 digits", await(t, c, "error")["message"])
}

func TestSocketRejections(t *testing.T) {
	e := newTestEnv(t)
	duelID := e.newDuel(t)
	free, err := e.api.registry.CreateFree("secret", "pw", 0)
	require.NoError(t, err)

	t.Run("unknown room closes with 3003", func(t *testing.T) {
		c := e.dial(t, "/ws/duel/nope?role=host", "duel", nil)
		msg := await(t, c, "error")
		assert.NotEmpty(t, msg["message"])
		assert.Equal(t, RoomNotFoundError, closeStatus(t, c))
	})

	t.Run("wrong password closes with 3004", func(t *testing.T) {
		c := e.dial(t, "/ws/free/"+free.ID+"?name=Ann&playerId=p1&password=nope", "free", nil)
		assert.Equal(t, "Wrong room password", await(t, c, "error")["message"])
		assert.Equal(t, JoinRejectedError, closeStatus(t, c))
	})

	t.Run("taken role closes with 3004", func(t *testing.T) {
		first := e.dial(t, "/ws/duel/"+duelID+"?role=guest", "duel", nil)
		await(t, first, "room_joined")
		second := e.dial(t, "/ws/duel/"+duelID+"?role=guest", "duel", nil)
		await(t, second, "error")
		assert.Equal(t, JoinRejectedError, closeStatus(t, second))
	})

	t.Run("one player in both seats closes with 3004", func(t *testing.T) {
		id := e.newDuel(t)
		host := e.dial(t, "/ws/duel/"+id+"?role=host&playerId=twin", "duel", nil)
		await(t, host, "room_joined")
		guest := e.dial(t, "/ws/duel/"+id+"?role=guest&playerId=twin", "duel", nil)
		assert.Equal(t, "You already hold the other seat in this room", await(t, guest, "error")["message"])
		assert.Equal(t, JoinRejectedError, closeStatus(t, guest))
	})

	t.Run("bad token closes with 3001", func(t *testing.T) {
		header := http.Header{}
		header.Set("Cookie", authCookieName+"=garbage")
		c := e.dial(t, "/ws/free/"+free.ID+"?name=Ann&password=pw", "free", header)
		assert.Equal(t, InvalidAuthTokenError, closeStatus(t, c))
	})

	t.Run("wrong subprotocol closes with 3000", func(t *testing.T) {
		c := e.dial(t, "/ws/free/"+free.ID+"?name=Ann&password=pw&playerId=p9", "duel", nil)
		assert.Equal(t, BadSubprotocolError, closeStatus(t, c))
	})
}

func TestFreeSocketCookieIdentity(t *testing.T) {
	e := newTestEnv(t)
	free, err := e.api.registry.CreateFree("", "", 0)
	require.NoError(t, err)

	token, err := e.issuer.Issue("cookie-player")
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Cookie", authCookieName+"="+token)

	c := e.dial(t, "/ws/free/"+free.ID+"?name=Ann&playerId=spoofed", "free", header)
	joined := await(t, c, "joined")
	assert.Equal(t, "cookie-player", joined["playerId"])
	assert.Equal(t, true, joined["isHost"])

	other := e.dial(t, "/ws/free/"+free.ID+"?name=Bob&playerId=p2", "free", nil)
	await(t, other, "joined")
	awaitWhere(t, c, "player_list", func(m map[string]interface{}) bool {
		players, _ := m["players"].([]interface{})
		return len(players) == 2
	})

	// host leaves; Bob inherits the room
	c.Close(websocket.StatusNormalClosure, "")
	left := awaitWhere(t, other, "player_list", func(m map[string]interface{}) bool {
		return m["left"] != nil
	})
	assert.Equal(t, "p2", left["hostId"])
	assert.Equal(t, true, left["hostChanged"])

	other.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		_, ok := e.api.registry.Get(free.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWritePumpStopsOnClosedOutbox(t *testing.T) {
	conn := room.NewConn("p", nil, quietLogger())
	conn.Close()
	done := make(chan struct{})
	go func() {
		writePump(context.Background(), nil, conn, quietLogger())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
}
