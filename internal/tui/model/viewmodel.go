package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/outbox"
	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/store"
)

const flashDuration = 4 * time.Second

// Core is the chat core as seen by the presentation layer.
type Core interface {
	Messages() ([]store.Message, error)
	State() status.State
	SessionID() string
	Send(ctx context.Context, text string) (int64, error)
	RetryFailed(ctx context.Context, msgs []store.Message) (int, error)
	Watch(bufSize int) (<-chan bus.Event, func())
}

// ViewModel caches the core's message list and connection state for rendering.
type ViewModel struct {
	mu sync.RWMutex

	core     Core
	Messages []store.Message
	State    status.State
	Flash    Flash
}

// NewViewModel creates a view model over core.
func NewViewModel(core Core) *ViewModel {
	return &ViewModel{
		core:  core,
		State: status.Disconnected,
	}
}

// Refresh reloads messages and the connection state.
func (vm *ViewModel) Refresh() error {
	msgs, err := vm.core.Messages()
	if err != nil {
		return err
	}
	state := vm.core.State()
	vm.mu.Lock()
	vm.Messages = msgs
	vm.State = state
	vm.mu.Unlock()
	return nil
}

// Send submits text. Blank input is ignored. Failures and offline queueing
// are reported through the flash line.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	_, err := vm.core.Send(ctx, text)
	switch {
	case errors.Is(err, outbox.ErrEmptyText):
		return nil
	case err != nil:
		vm.Flash.Set("Send failed: "+err.Error(), flashDuration)
		return err
	}
	if vm.core.State() != status.Connected {
		vm.Flash.Set("Offline: message queued", flashDuration)
	}
	return nil
}

// RetryFailed resubmits every FAILED message currently loaded.
func (vm *ViewModel) RetryFailed(ctx context.Context) (int, error) {
	msgs := vm.GetMessages()
	if CountFailed(msgs) == 0 {
		vm.Flash.Set("Nothing to retry", flashDuration)
		return 0, nil
	}
	n, err := vm.core.RetryFailed(ctx, msgs)
	if err != nil {
		vm.Flash.Set("Retry failed: "+err.Error(), flashDuration)
	} else {
		vm.Flash.Set(pluralize(n, "message")+" resent", flashDuration)
	}
	return n, err
}

// Watch forwards the core's change notifications.
func (vm *ViewModel) Watch(bufSize int) (<-chan bus.Event, func()) {
	return vm.core.Watch(bufSize)
}

// SessionID returns the local sender identity.
func (vm *ViewModel) SessionID() string {
	return vm.core.SessionID()
}

// GetMessages returns a snapshot of the current messages.
func (vm *ViewModel) GetMessages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetState returns the last loaded connection state.
func (vm *ViewModel) GetState() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.State
}
