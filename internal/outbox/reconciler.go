// Package outbox makes sure locally written messages reach the relay across
// connection churn without being sent twice in one pass.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/conn"
	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/store"
	"github.com/matheus3301/haptalk/internal/wire"
	"go.uber.org/zap"
)

var (
	ErrEmptyText = errors.New("message text is empty")
	ErrNotFailed = errors.New("only failed messages can be resubmitted")
	ErrInFlight  = errors.New("message is already being sent")
)

// MessageStore is the part of the local store the reconciler writes to.
type MessageStore interface {
	Insert(m *store.Message) (int64, error)
	UpdateStatus(id int64, s store.Status) error
	ListByStatus(s store.Status) ([]store.Message, error)
	Get(id int64) (*store.Message, error)
}

// Connection is the send side of the session manager.
type Connection interface {
	Send(frame string) error
	State() status.State
}

// Reconciler owns the PENDING/SENT/FAILED lifecycle of outgoing messages.
type Reconciler struct {
	store  MessageStore
	conn   Connection
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex // guards inflight, deferred and orders inserts against flush loads
	inflight map[int64]struct{}
	// deferred holds claimed ids a flush pass skipped. The claim holder owes
	// them the attempt that pass would have made.
	deferred map[int64]struct{}

	flushMu sync.Mutex

	lifeMu sync.Mutex // guards cancel and done
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler creates a reconciler. b may be nil in tests that do not observe events.
func NewReconciler(s MessageStore, c Connection, b *bus.Bus, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    s,
		conn:     c,
		bus:      b,
		logger:   logger.Named("outbox"),
		inflight: make(map[int64]struct{}),
		deferred: make(map[int64]struct{}),
	}
}

// Submit stores text as a PENDING message from senderID and, when connected,
// makes one attempt to send it. A failed attempt leaves the message PENDING
// for the next flush. If a flush pass skipped the message during the attempt
// and the connection is still up, Submit makes that pass's attempt itself:
// success marks it SENT, failure FAILED. The returned id is valid whenever err is nil or the
// failure happened after the insert.
func (r *Reconciler) Submit(ctx context.Context, text, senderID string, now time.Time) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyText
	}
	msg := &store.Message{
		SenderID:  senderID,
		Text:      text,
		Timestamp: now.UnixMilli(),
		Status:    store.StatusPending,
		IsMine:    true,
	}

	// The state is read under mu: a flush triggered by a later CONNECTED
	// loads this row only after the insert, and skips it only while claimed.
	r.mu.Lock()
	id, err := r.store.Insert(msg)
	if err != nil {
		r.mu.Unlock()
		return 0, fmt.Errorf("insert pending message: %w", err)
	}
	connected := r.conn.State() == status.Connected
	if connected {
		r.inflight[id] = struct{}{}
	}
	r.mu.Unlock()

	r.publish(bus.KindMessageInserted, id, store.StatusPending)
	r.logger.Debug("message queued", zap.Int64("id", id), zap.Bool("connected", connected))
	if !connected {
		return id, nil
	}

	if ctx.Err() == nil {
		err := r.transmit(msg)
		if err == nil {
			defer r.release(id)
			return id, r.setStatus(id, store.StatusSent)
		}
		r.logger.Warn("send failed", zap.Int64("id", id), zap.Error(err))
	}
	if !r.releasePending(id) {
		return id, nil
	}

	// A flush pass skipped the message while the attempt above was running.
	defer r.release(id)
	next := store.StatusSent
	if err := r.transmit(msg); err != nil {
		r.logger.Warn("deferred flush send failed", zap.Int64("id", id), zap.Error(err))
		next = store.StatusFailed
	}
	return id, r.setStatus(id, next)
}

// FlushPending attempts every PENDING message once. Success marks it SENT,
// failure marks it FAILED. Messages another caller is already sending are
// skipped and left to that caller. Passes never overlap.
func (r *Reconciler) FlushPending(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	pending, err := r.store.ListByStatus(store.StatusPending)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("load pending messages: %w", err)
	}
	batch := pending[:0]
	for _, m := range pending {
		if _, busy := r.inflight[m.ID]; busy {
			r.deferred[m.ID] = struct{}{}
			continue
		}
		r.inflight[m.ID] = struct{}{}
		batch = append(batch, m)
	}
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	r.logger.Info("flushing pending messages", zap.Int("count", len(batch)))

	var errs []error
	for i := range batch {
		m := &batch[i]
		if ctx.Err() != nil {
			r.release(m.ID)
			continue
		}
		next := store.StatusSent
		if err := r.transmit(m); err != nil {
			r.logger.Warn("send failed", zap.Int64("id", m.ID), zap.Error(err))
			next = store.StatusFailed
		}
		if err := r.setStatus(m.ID, next); err != nil {
			errs = append(errs, err)
		}
		r.release(m.ID)
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Resubmit makes one new attempt for a FAILED message. It requires a live
// connection; on failure the message stays FAILED and the send error is returned.
func (r *Reconciler) Resubmit(ctx context.Context, id int64) error {
	r.mu.Lock()
	m, err := r.store.Get(id)
	switch {
	case err != nil:
		r.mu.Unlock()
		return fmt.Errorf("load message %d: %w", id, err)
	case m == nil:
		r.mu.Unlock()
		return store.ErrNotFound
	case m.Status != store.StatusFailed:
		r.mu.Unlock()
		return fmt.Errorf("%w: message %d is %s", ErrNotFailed, id, m.Status)
	}
	if _, busy := r.inflight[id]; busy {
		r.mu.Unlock()
		return ErrInFlight
	}
	if r.conn.State() != status.Connected {
		r.mu.Unlock()
		return fmt.Errorf("resubmit message %d: %w", id, conn.ErrNotConnected)
	}
	r.inflight[id] = struct{}{}
	r.mu.Unlock()
	defer r.release(id)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.transmit(m); err != nil {
		r.logger.Warn("resubmit failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("resubmit message %d: %w", id, err)
	}
	return r.setStatus(id, store.StatusSent)
}

// Start flushes once per transition into CONNECTED until ctx ends or Stop is
// called. It needs the bus the connection state is published on.
// Calling Start while running is a no-op.
func (r *Reconciler) Start(ctx context.Context) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	ch, unsub := r.bus.Subscribe("conn.", 64)
	go func() {
		defer close(done)
		defer unsub()
		r.loop(ctx, ch)
	}()
}

// Stop ends the subscriber and waits for an in-progress flush to finish.
func (r *Reconciler) Stop() {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil
}

func (r *Reconciler) loop(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok || change.To != status.Connected {
				continue
			}
			if err := r.FlushPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("flush failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) transmit(m *store.Message) error {
	frame, err := wire.Encode(wire.Frame{SenderID: m.SenderID, Text: m.Text, Timestamp: m.Timestamp})
	if err != nil {
		return err
	}
	return r.conn.Send(frame)
}

func (r *Reconciler) setStatus(id int64, s store.Status) error {
	if err := r.store.UpdateStatus(id, s); err != nil {
		r.logger.Error("failed to update status", zap.Int64("id", id), zap.String("status", string(s)), zap.Error(err))
		return fmt.Errorf("mark message %d %s: %w", id, s, err)
	}
	r.publish(bus.KindMessageStatusChange, id, s)
	return nil
}

func (r *Reconciler) release(id int64) {
	r.mu.Lock()
	delete(r.inflight, id)
	delete(r.deferred, id)
	r.mu.Unlock()
}

// releasePending drops the claim on a message left PENDING. It reports true,
// keeping the claim, when a flush pass skipped the message and the connection
// is up, so no later pass would pick it up.
func (r *Reconciler) releasePending(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, skipped := r.deferred[id]
	delete(r.deferred, id)
	if skipped && r.conn.State() == status.Connected {
		return true
	}
	delete(r.inflight, id)
	return false
}

func (r *Reconciler) publish(kind string, id int64, s store.Status) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   bus.MessageRef{ID: id, Status: string(s)},
	})
}
