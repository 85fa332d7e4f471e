package conn

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when there is no live connection.
var ErrNotConnected = errors.New("websocket not connected")

// ConnectError wraps a failed dial or handshake. It only drives backoff.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ReadError ends a connection: a transport failure or a close from the peer.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read frame: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// SendError is a transport write failure surfaced to the caller of Send.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send frame: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
