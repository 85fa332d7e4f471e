package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type fakeFrame struct {
	kind int
	data []byte
	err  error
}

// fakeTransport is an in-memory Transport. Reads block until a frame is
// queued or the transport is closed.
type fakeTransport struct {
	inbound   chan fakeFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  []string
	pings    int
	writeErr error
	pingErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan fakeFrame, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.inbound:
		return fr.kind, fr.data, fr.err
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeTransport) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if kind == websocket.TextMessage {
		f.written = append(f.written, string(data))
	}
	return nil
}

func (f *fakeTransport) WriteControl(kind int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return f.pingErr
	}
	if kind == websocket.PingMessage {
		f.pings++
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// fakeDialer hands out scripted results in order. Once the script runs out,
// Dial blocks until its context ends.
type fakeDialer struct {
	mu      sync.Mutex
	script  []dialResult
	dials   int
	dialed  chan int
}

type dialResult struct {
	t   *fakeTransport
	err error
}

func newFakeDialer(script ...dialResult) *fakeDialer {
	return &fakeDialer{script: script, dialed: make(chan int, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	var next *dialResult
	if len(d.script) > 0 {
		next = &d.script[0]
		d.script = d.script[1:]
	}
	d.mu.Unlock()
	d.dialed <- n

	if next == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.t, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// frameRecorder is a Handler collecting frames.
type frameRecorder struct {
	mu     sync.Mutex
	frames []string
	got    chan string
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{got: make(chan string, 64)}
}

func (r *frameRecorder) HandleFrame(frame string) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	r.got <- frame
}

func (r *frameRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// delayRecorder replaces Manager.wait: it records the requested delays and
// returns immediately unless ctx is done.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) wait(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func (r *delayRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}
