package store

import "errors"

// Status is the delivery state of a locally stored message.
type Status string

const (
	StatusPending Status = "PENDING" // created locally, not yet handed to the transport
	StatusSent    Status = "SENT"    // handed to the transport; the relay sends no ack
	StatusFailed  Status = "FAILED"  // an attempt during a live connection errored
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

var (
	ErrNotFound          = errors.New("message not found")
	ErrDuplicate         = errors.New("message with same sender and timestamp already stored")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Message is one stored chat message. Only Status changes after insertion.
type Message struct {
	ID        int64
	SenderID  string
	Text      string
	Timestamp int64
	Status    Status
	IsMine    bool
}
