package bus

import "time"

// Event kinds published by the client.
const (
	KindStateChanged        = "conn.state_changed"
	KindMessageInserted     = "message.inserted"
	KindMessageStatusChange = "message.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies the message a message.* event refers to.
type MessageRef struct {
	ID     int64
	Status string
}
