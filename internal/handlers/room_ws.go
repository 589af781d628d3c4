// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/codebreak/internal/middleware"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/jason-s-yu/codebreak/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 8 << 10
)

// seatHandle is what a successful join hands back to the socket loop.
type seatHandle struct {
	handle func(ctx context.Context, packet map[string]interface{})
	leave  func()
}

type joinFunc func(conn *room.Conn, playerID string) (*seatHandle, error)

// duelSocket serves GET /ws/duel/{roomId}?role=&identity=&name=.
func (s *APIServer) duelSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := r.PathValue("roomId")
	s.serveSocket(w, r, "duel", func(conn *room.Conn, playerID string) (*seatHandle, error) {
		seat, err := s.sessions.JoinDuel(session.DuelJoin{
			RoomID:   roomID,
			Role:     q.Get("role"),
			Identity: strings.TrimSpace(q.Get("identity")),
			PlayerID: playerID,
			Name:     strings.TrimSpace(q.Get("name")),
		}, conn)
		if err != nil {
			return nil, err
		}
		return &seatHandle{
			handle: func(ctx context.Context, packet map[string]interface{}) {
				s.sessions.HandleDuelMessage(ctx, seat, packet)
			},
			leave: func() { s.sessions.LeaveDuel(seat) },
		}, nil
	})
}

// freeSocket serves GET /ws/free/{roomId}?name=&password=&playerId=.
func (s *APIServer) freeSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := r.PathValue("roomId")
	s.serveSocket(w, r, "free", func(conn *room.Conn, playerID string) (*seatHandle, error) {
		seat, err := s.sessions.JoinFree(session.FreeJoin{
			RoomID:   roomID,
			PlayerID: playerID,
			Name:     q.Get("name"),
			Password: q.Get("password"),
		}, conn)
		if err != nil {
			return nil, err
		}
		return &seatHandle{
			handle: func(ctx context.Context, packet map[string]interface{}) {
				s.sessions.HandleFreeMessage(ctx, seat, packet)
			},
			leave: func() { s.sessions.LeaveFree(seat) },
		}, nil
	})
}

// serveSocket upgrades the request, joins a seat, and pumps messages until
// either side goes away.
func (s *APIServer) serveSocket(w http.ResponseWriter, r *http.Request, subprotocol string, join joinFunc) {
	remoteAddr, path := r.RemoteAddr, r.URL.Path

	// a verified cookie wins over the client-persisted id in the query
	playerID, authErr := s.cookieIdentity(r)
	if authErr == nil && playerID == "" {
		playerID = strings.TrimSpace(r.URL.Query().Get("playerId"))
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")
	c.SetReadLimit(readLimit)

	if c.Subprotocol() != subprotocol {
		c.Close(BadSubprotocolError, "client must speak the "+subprotocol+" subprotocol")
		return
	}
	if authErr != nil {
		s.logger.WithError(authErr).WithField("remote", remoteAddr).Warn("rejected socket with bad auth token")
		c.Close(InvalidAuthTokenError, "invalid auth token")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := room.NewConn(playerID, cancel, s.logger)

	seat, err := join(conn, playerID)
	if err != nil {
		s.rejectJoin(ctx, c, err, path)
		return
	}

	middleware.LogWebSocketConnect(s.logger, remoteAddr, path)
	go writePump(ctx, c, conn, s.logger)

	readErr := readPump(ctx, c, conn, seat.handle, s.logger)
	seat.leave()
	c.Close(websocket.StatusNormalClosure, "")
	middleware.LogWebSocketDisconnect(s.logger, remoteAddr, path, readErr)
}

// rejectJoin tells the client why and closes: 3003 for an unknown room,
// 3004 for every other refusal.
func (s *APIServer) rejectJoin(ctx context.Context, c *websocket.Conn, err error, path string) {
	code, reason := JoinRejectedError, "join rejected"
	if errors.Is(err, session.ErrRoomNotFound) {
		code, reason = RoomNotFoundError, "room does not exist"
	}
	s.logger.WithError(err).WithField("path", path).Info("socket join rejected")

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(writeCtx, c, map[string]interface{}{
		"type":    "error",
		"message": session.Describe(err),
	})
	c.Close(code, reason)
}

// readPump decodes inbound frames and hands them to handle. It returns nil
// on an orderly close.
func readPump(ctx context.Context, c *websocket.Conn, conn *room.Conn, handle func(context.Context, map[string]interface{}), logger *logrus.Logger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			conn.WriteError("Only text frames are supported")
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.WithField("conn", conn.ID.String()).Debugf("invalid json: %v", err)
			conn.WriteError("Invalid JSON format")
			continue
		}
		handle(ctx, packet)
	}
}

// writePump drains conn's outbox onto the socket and keeps it alive with
// pings. It stops once the outbox is closed or ctx ends.
func writePump(ctx context.Context, c *websocket.Conn, conn *room.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithError(err).WithField("conn", conn.ID.String()).Warn("failed to marshal outgoing message")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", conn.ID.String()).Debug("write failed, closing socket")
				conn.Close()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", conn.ID.String()).Debug("ping failed, closing socket")
				conn.Close()
				return
			}
		}
	}
}
