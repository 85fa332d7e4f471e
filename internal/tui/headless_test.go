package tui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/store"
)

// scriptedCore is a chat core whose store and events the test drives.
type scriptedCore struct {
	mu      sync.Mutex
	msgs    []store.Message
	state   status.State
	events  chan bus.Event
	retried int
}

func newScriptedCore(msgs ...store.Message) *scriptedCore {
	return &scriptedCore{msgs: msgs, state: status.Connected, events: make(chan bus.Event, 16)}
}

func (c *scriptedCore) Messages() ([]store.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Message(nil), c.msgs...), nil
}

func (c *scriptedCore) State() status.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *scriptedCore) SessionID() string { return "u1234567" }

func (c *scriptedCore) Send(_ context.Context, text string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := int64(len(c.msgs) + 1)
	c.msgs = append(c.msgs, store.Message{ID: id, SenderID: "u1234567", Text: text, Status: store.StatusSent, IsMine: true})
	return id, nil
}

func (c *scriptedCore) RetryFailed(_ context.Context, msgs []store.Message) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if m.Status == store.StatusFailed {
			c.retried++
		}
	}
	return c.retried, nil
}

func (c *scriptedCore) Watch(int) (<-chan bus.Event, func()) {
	return c.events, func() {}
}

func (c *scriptedCore) receive(m store.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	c.events <- bus.Event{Kind: bus.KindMessageInserted, Payload: bus.MessageRef{ID: m.ID, Status: string(m.Status)}}
}

func (c *scriptedCore) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		if m.IsMine {
			out = append(out, m.Text)
		}
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHeadlessSendsLinesUntilEOF(t *testing.T) {
	core := newScriptedCore()
	out := &syncBuffer{}
	in := strings.NewReader("hello\n\n   \n//slash first\n")

	if err := RunHeadless(context.Background(), core, in, out); err != nil {
		t.Fatal(err)
	}
	got := core.sentTexts()
	if len(got) != 2 || got[0] != "hello" || got[1] != "/slash first" {
		t.Errorf("sent = %q", got)
	}
	if !strings.Contains(out.String(), "* CONNECTED as u1234567") {
		t.Errorf("missing banner:\n%s", out.String())
	}
}

func TestHeadlessPrintsHistoryAndInbound(t *testing.T) {
	core := newScriptedCore(store.Message{ID: 1, SenderID: "server", Text: "Welcome to HapTalk!", Status: store.StatusSent})
	out := &syncBuffer{}
	inR, inW := io.Pipe()
	defer func() { _ = inW.Close() }()

	done := make(chan error, 1)
	go func() { done <- RunHeadless(context.Background(), core, inR, out) }()

	waitForOutput(t, out, "server: Welcome to HapTalk!")

	core.receive(store.Message{ID: 2, SenderID: "u999", Text: "hello", Timestamp: 2000, Status: store.StatusSent})
	waitForOutput(t, out, "u999: hello")

	core.events <- bus.Event{Kind: bus.KindStateChanged, Payload: status.StatusChange{From: status.Connected, To: status.Disconnected}}
	waitForOutput(t, out, "* DISCONNECTED")

	core.events <- bus.Event{Kind: bus.KindMessageStatusChange, Payload: bus.MessageRef{ID: 7, Status: string(store.StatusFailed)}}
	waitForOutput(t, out, "message 7 failed")

	if _, err := io.WriteString(inW, "/quit\n"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunHeadless() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("/quit did not end the session")
	}

	if strings.Count(out.String(), "u999: hello") != 1 {
		t.Errorf("inbound message printed more than once:\n%s", out.String())
	}
}

func TestHeadlessCommands(t *testing.T) {
	core := newScriptedCore(store.Message{ID: 1, SenderID: "u1234567", Text: "x", Status: store.StatusFailed, IsMine: true})
	out := &syncBuffer{}
	in := strings.NewReader("/retry\n/bogus\n")

	if err := RunHeadless(context.Background(), core, in, out); err != nil {
		t.Fatal(err)
	}
	if core.retried != 1 {
		t.Errorf("retried = %d, want 1", core.retried)
	}
	for _, want := range []string{"* resent 1", "! unknown command /bogus"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestHeadlessStopsOnCancel(t *testing.T) {
	core := newScriptedCore()
	inR, inW := io.Pipe()
	defer func() { _ = inW.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunHeadless(ctx, core, inR, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunHeadless() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunHeadless ignored cancellation")
	}
}
