package chat

import (
	"strings"
	"time"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/store"
	"github.com/matheus3301/haptalk/internal/wire"
	"go.uber.org/zap"
)

// InboxStore is the part of the local store inbound messages go through.
type InboxStore interface {
	Exists(senderID string, timestamp int64) (bool, error)
	InsertIfAbsent(m *store.Message) (bool, error)
}

// Inbox stores frames relayed from other senders, once each. It is the
// session manager's frame handler.
type Inbox struct {
	sessionID string
	store     InboxStore
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewInbox creates an inbox for the local sessionID.
func NewInbox(sessionID string, s InboxStore, b *bus.Bus, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{
		sessionID: sessionID,
		store:     s,
		bus:       b,
		logger:    logger.Named("inbox"),
	}
}

// HandleFrame ingests one inbound frame. Malformed frames, blank texts and our
// own echoes are dropped; a frame already stored under the same sender and timestamp is
// ignored.
func (in *Inbox) HandleFrame(frame string) {
	f, err := wire.Decode(frame)
	if err != nil {
		in.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}
	if f.SenderID == in.sessionID {
		in.logger.Debug("dropping own echo", zap.Int64("timestamp", f.Timestamp))
		return
	}
	if strings.TrimSpace(f.Text) == "" {
		in.logger.Debug("dropping blank frame", zap.String("sender", f.SenderID), zap.Int64("timestamp", f.Timestamp))
		return
	}

	exists, err := in.store.Exists(f.SenderID, f.Timestamp)
	if err != nil {
		in.logger.Error("failed to check for duplicate", zap.Error(err))
		return
	}
	if exists {
		in.logger.Debug("duplicate frame", zap.String("sender", f.SenderID), zap.Int64("timestamp", f.Timestamp))
		return
	}

	m := &store.Message{
		SenderID:  f.SenderID,
		Text:      f.Text,
		Timestamp: f.Timestamp,
		Status:    store.StatusSent,
		IsMine:    false,
	}
	// The unique index still guards against a racing duplicate.
	inserted, err := in.store.InsertIfAbsent(m)
	if err != nil {
		in.logger.Error("failed to store inbound message", zap.Error(err), zap.String("sender", f.SenderID))
		return
	}
	if !inserted {
		return
	}
	in.logger.Debug("message received", zap.Int64("id", m.ID), zap.String("sender", f.SenderID))
	if in.bus != nil {
		in.bus.Publish(bus.Event{
			Kind:      bus.KindMessageInserted,
			Timestamp: time.Now(),
			Payload:   bus.MessageRef{ID: m.ID, Status: string(m.Status)},
		})
	}
}
