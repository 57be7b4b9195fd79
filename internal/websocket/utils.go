package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ErrMalformed marks a message that arrived intact but could not be decoded.
var ErrMalformed = errors.New("malformed message")

// ReadIdleTimeout closes a telemetry stream that stays silent this long.
const ReadIdleTimeout = 5 * time.Minute

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadEnvelope reads one message and peeks at its action. The raw bytes are
// returned for decoding into the action's request type.
func ReadEnvelope(conn *websocket.Conn) (RequestEnvelope, []byte, error) {
	conn.SetReadDeadline(time.Now().Add(ReadIdleTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return RequestEnvelope{}, nil, err
	}
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RequestEnvelope{}, raw, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, raw, nil
}
