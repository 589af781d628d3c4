// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the room sockets.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // auth_token cookie was present but did not verify.
	RoomNotFoundError     websocket.StatusCode = 3003 // Room id in the WS URL does not exist or has finished.
	JoinRejectedError     websocket.StatusCode = 3004 // Room exists but refused the join (role taken, full, wrong password...).
)
