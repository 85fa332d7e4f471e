package conn

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the part of *websocket.Conn the manager relies on.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// pongSetter is implemented by *websocket.Conn.
type pongSetter interface {
	SetPongHandler(h func(appData string) error)
}

// Dialer opens a Transport to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebSocketDialer dials with gorilla/websocket. A nil Dialer uses websocket.DefaultDialer.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial performs the WebSocket handshake.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}
