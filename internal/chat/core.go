// Package chat ties the connection, the outbox and the local store into the
// operations the user interfaces call.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/store"
)

// Outbox is the reconciler as seen by the core.
type Outbox interface {
	Submit(ctx context.Context, text, senderID string, now time.Time) (int64, error)
	Resubmit(ctx context.Context, id int64) error
}

// History lists stored messages in display order.
type History interface {
	ListAll() ([]store.Message, error)
}

// StateSource reports the connection state.
type StateSource interface {
	Current() status.State
}

// Core is the single entry point for sending, receiving and observing messages.
type Core struct {
	inbox   *Inbox
	history History
	outbox  Outbox
	state   StateSource
	bus     *bus.Bus
	now     func() time.Time
}

// NewCore creates a core acting as the inbox's session id.
func NewCore(inbox *Inbox, h History, o Outbox, state StateSource, b *bus.Bus) *Core {
	return &Core{
		inbox:   inbox,
		history: h,
		outbox:  o,
		state:   state,
		bus:     b,
		now:     time.Now,
	}
}

// SessionID returns the local sender identity.
func (c *Core) SessionID() string { return c.inbox.sessionID }

// State returns the current connection state.
func (c *Core) State() status.State { return c.state.Current() }

// Send queues text from the local session and tries to deliver it.
func (c *Core) Send(ctx context.Context, text string) (int64, error) {
	return c.outbox.Submit(ctx, text, c.inbox.sessionID, c.now())
}

// Retry resubmits a FAILED message.
func (c *Core) Retry(ctx context.Context, id int64) error {
	return c.outbox.Resubmit(ctx, id)
}

// RetryFailed resubmits every FAILED message among msgs and returns how many
// went out. Failures do not stop the remaining retries and are joined.
func (c *Core) RetryFailed(ctx context.Context, msgs []store.Message) (int, error) {
	sent := 0
	var errs []error
	for _, m := range msgs {
		if m.Status != store.StatusFailed {
			continue
		}
		if err := c.Retry(ctx, m.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Messages returns every stored message in display order.
func (c *Core) Messages() ([]store.Message, error) {
	msgs, err := c.history.ListAll()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Watch subscribes to message and connection events. Consumers re-read
// Messages or State when an event arrives.
func (c *Core) Watch(bufSize int) (<-chan bus.Event, func()) {
	return c.bus.SubscribeAll(bufSize, "message.", "conn.")
}

// HandleFrame ingests one inbound frame through the inbox.
func (c *Core) HandleFrame(frame string) {
	c.inbox.HandleFrame(frame)
}
