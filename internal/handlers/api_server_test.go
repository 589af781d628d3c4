package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/database"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/jason-s-yu/codebreak/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	api      *APIServer
	sessions *session.Handler
	store    *database.MemoryStore
	issuer   *auth.Issuer
	srv      *httptest.Server
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := quietLogger()
	reg := room.NewRegistry(room.DefaultLimits(), game.DefaultTriviaBank(), logger)
	store := database.NewMemoryStore(map[string]int{string(game.ItemRevealDigit): 2})
	sessions := session.NewHandler(reg, logger,
		session.WithPlayers(store),
		session.WithRecorders(store),
		session.WithInventory(store),
	)
	issuer, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)

	api := NewAPIServer(sessions, issuer, logger, WithInventoryLister(store))
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(func() {
		srv.Close()
		sessions.Wait()
	})
	return &testEnv{api: api, sessions: sessions, store: store, issuer: issuer, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["rooms"])
}

func TestCreateDuelRoom(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
		rule   string
	}{
		{"empty body defaults to unique", "", http.StatusCreated, "unique"},
		{"repeat", `{"rule":"repeat"}`, http.StatusCreated, "repeat"},
		{"trivia", `{"rule":"trivia"}`, http.StatusCreated, "trivia"},
		{"unknown rule", `{"rule":"chess"}`, http.StatusBadRequest, ""},
		{"malformed", `{"rule":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.do(t, http.MethodPost, "/rooms/duel", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusCreated {
				assert.NotEmpty(t, body["error"])
				return
			}
			id, _ := body["roomId"].(string)
			require.Len(t, id, 12)
			assert.Equal(t, tt.rule, body["rule"])
			assert.Equal(t, "/ws/duel/"+id, body["wsPath"])

			_, ok := e.api.registry.Duel(id)
			assert.True(t, ok)
		})
	}
}

func TestCreateAndListFreeRooms(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/rooms/free", `{"name":"Lunch","password":"pw","guessLimit":99}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Lunch", body["name"])
	assert.EqualValues(t, room.DefaultLimits().GuessLimitMax, body["guessLimit"])
	id := body["roomId"].(string)
	assert.Equal(t, "/ws/free/"+id, body["wsPath"])

	resp, _ = e.do(t, http.MethodPost, "/rooms/free", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	res, err := http.Get(e.srv.URL + "/rooms/free")
	require.NoError(t, err)
	defer res.Body.Close()
	var rooms []room.Summary
	require.NoError(t, json.NewDecoder(res.Body).Decode(&rooms))
	require.Len(t, rooms, 2)

	var lunch room.Summary
	for _, r := range rooms {
		if r.ID == id {
			lunch = r
		}
	}
	assert.Equal(t, "Lunch", lunch.Name)
	assert.True(t, lunch.HasPassword)
	assert.Equal(t, room.StateWaiting, lunch.State)
}

func TestListFreeRoomsEmpty(t *testing.T) {
	e := newTestEnv(t)
	res, err := http.Get(e.srv.URL + "/rooms/free")
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestSessionCookie(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	playerID, _ := body["playerId"].(string)
	require.NotEmpty(t, playerID)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == authCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	sub, err := e.issuer.Authenticate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, playerID, sub)

	// a valid cookie keeps its identity
	resp, body = e.do(t, http.MethodPost, "/session", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, playerID, body["playerId"])
}

func TestInventoryRequiresCookie(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/inventory", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/inventory", "", &http.Cookie{Name: authCookieName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := e.issuer.Issue("p1")
	require.NoError(t, err)
	res, err := func() (*http.Response, error) {
		req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/inventory", nil)
		req.AddCookie(&http.Cookie{Name: authCookieName, Value: token})
		return http.DefaultClient.Do(req)
	}()
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var items []models.InventoryItem
	require.NoError(t, json.NewDecoder(res.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, string(game.ItemRevealDigit), items[0].ItemID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodDelete, "/rooms/duel", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
