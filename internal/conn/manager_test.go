package conn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/status"
	"go.uber.org/zap"
)

func newTestManager(d Dialer, h Handler) (*Manager, *status.Machine) {
	machine := status.NewMachine(bus.New())
	m := New("ws://relay.test/", d, h, machine, zap.NewNop())
	return m, machine
}

func waitForState(t *testing.T, m *Manager, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.State(), want)
}

func waitForDial(t *testing.T, d *fakeDialer, n int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-d.dialed:
			if got >= n {
				return
			}
		case <-timeout:
			t.Fatalf("timeout waiting for dial %d (dials: %d)", n, d.count())
		}
	}
}

func TestBackoffSequence(t *testing.T) {
	want := []time.Duration{
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for n, w := range want {
		if got := Backoff(n); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, w)
		}
	}
	if got := Backoff(1000); got != MaxRetryDelay {
		t.Errorf("Backoff(1000) = %v, want %v", got, MaxRetryDelay)
	}
}

// TestReconnectBackoffResetsAfterSuccess drives five failed dials, one
// successful connection that then drops, and another failure. The delay
// sequence restarts at 2s after the success.
func TestReconnectBackoffResetsAfterSuccess(t *testing.T) {
	dropped := newFakeTransport()
	dialErr := errors.New("connection refused")
	d := newFakeDialer(
		dialResult{err: dialErr},
		dialResult{err: dialErr},
		dialResult{err: dialErr},
		dialResult{err: dialErr},
		dialResult{err: dialErr},
		dialResult{t: dropped},
		dialResult{err: dialErr},
	)
	m, _ := newTestManager(d, newFrameRecorder())
	delays := &delayRecorder{}
	m.wait = delays.wait

	dropped.inbound <- fakeFrame{err: errors.New("connection reset by peer")}
	m.Start()
	defer m.Stop()

	// The eighth dial blocks because the script is exhausted.
	waitForDial(t, d, 8)

	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second,
		2 * time.Second,
		4 * time.Second,
	}
	got := delays.all()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if m.State() != status.Connecting {
		t.Errorf("state = %s, want CONNECTING while dialing", m.State())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d, newFrameRecorder())

	m.Start()
	m.Start()
	defer m.Stop()

	waitForDial(t, d, 1)
	time.Sleep(50 * time.Millisecond)
	if n := d.count(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	if !m.Running() {
		t.Error("Running() = false after Start")
	}
	if m.State() != status.Connecting {
		t.Errorf("state = %s, want CONNECTING", m.State())
	}
}

func TestStateChangesPublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 16)
	defer unsub()

	tr := newFakeTransport()
	d := newFakeDialer(dialResult{t: tr})
	m := New("ws://relay.test/", d, newFrameRecorder(), status.NewMachine(b), nil)

	m.Start()
	waitForState(t, m, status.Connected)
	m.Stop()

	var got []status.State
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case evt := <-ch:
			got = append(got, evt.Payload.(status.StatusChange).To)
		case <-timeout:
			t.Fatalf("transitions = %v, want 3", got)
		}
	}
	want := []status.State{status.Connecting, status.Connected, status.Disconnected}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSendRequiresConnection(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d, newFrameRecorder())

	if err := m.Send("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() before Start error = %v, want ErrNotConnected", err)
	}

	m.Start()
	defer m.Stop()
	waitForDial(t, d, 1)
	if err := m.Send("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() while CONNECTING error = %v, want ErrNotConnected", err)
	}
}

func TestSendWritesTextFrame(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(newFakeDialer(dialResult{t: tr}), newFrameRecorder())

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)

	if err := m.Send(`{"u":"a","m":"b","t":1}`); err != nil {
		t.Fatal(err)
	}
	if got := tr.sent(); len(got) != 1 || got[0] != `{"u":"a","m":"b","t":1}` {
		t.Errorf("written = %v", got)
	}
}

func TestSendSurfacesWriteError(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("broken pipe")
	m, _ := newTestManager(newFakeDialer(dialResult{t: tr}), newFrameRecorder())

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)

	err := m.Send("x")
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("Send() error = %v, want *SendError", err)
	}
	// A failed write does not by itself tear down the connection.
	if m.State() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", m.State())
	}
}

func TestReadLoopForwardsOnlyTextFrames(t *testing.T) {
	tr := newFakeTransport()
	rec := newFrameRecorder()
	m, _ := newTestManager(newFakeDialer(dialResult{t: tr}), rec)

	tr.inbound <- fakeFrame{kind: websocket.TextMessage, data: []byte("one")}
	tr.inbound <- fakeFrame{kind: websocket.BinaryMessage, data: []byte{0x01, 0x02}}
	tr.inbound <- fakeFrame{kind: websocket.TextMessage, data: []byte("not json at all")}
	tr.inbound <- fakeFrame{kind: websocket.TextMessage, data: []byte("two")}

	m.Start()
	defer m.Stop()

	for _i := 0; _i < 3; _i++ {
		select {
		case <-rec.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("frames = %v, want 3", rec.all())
		}
	}
	got := rec.all()
	want := []string{"one", "not json at all", "two"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadErrorTriggersReconnect(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	d := newFakeDialer(dialResult{t: first}, dialResult{t: second})
	m, _ := newTestManager(d, newFrameRecorder())
	delays := &delayRecorder{}
	m.wait = delays.wait

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)

	first.inbound <- fakeFrame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
	waitForDial(t, d, 2)
	waitForState(t, m, status.Connected)

	if !first.isClosed() {
		t.Error("dropped transport was not closed")
	}
	if got := delays.all(); len(got) != 1 || got[0] != InitialRetryDelay {
		t.Errorf("delays = %v, want [%v]", got, InitialRetryDelay)
	}
}

func TestHeartbeatPings(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(newFakeDialer(dialResult{t: tr}), newFrameRecorder())
	m.pingInterval = 10 * time.Millisecond

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)

	deadline := time.Now().Add(2 * time.Second)
	for tr.pingCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("pings = %d, want >= 3", tr.pingCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHeartbeatFailureLeavesStateToReadLoop(t *testing.T) {
	tr := newFakeTransport()
	tr.pingErr = errors.New("write: broken pipe")
	m, _ := newTestManager(newFakeDialer(dialResult{t: tr}), newFrameRecorder())
	m.pingInterval = 5 * time.Millisecond

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)

	time.Sleep(50 * time.Millisecond)
	if m.State() != status.Connected {
		t.Errorf("state = %s, want CONNECTED after failed ping", m.State())
	}
	if tr.isClosed() {
		t.Error("heartbeat closed the transport")
	}
}

func TestStopWhileConnected(t *testing.T) {
	tr := newFakeTransport()
	d := newFakeDialer(dialResult{t: tr})
	m, _ := newTestManager(d, newFrameRecorder())

	m.Start()
	waitForState(t, m, status.Connected)
	m.Stop()

	if m.State() != status.Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", m.State())
	}
	if !tr.isClosed() {
		t.Error("transport not closed by Stop")
	}
	if m.Running() {
		t.Error("Running() = true after Stop")
	}
	if err := m.Send("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() after Stop error = %v, want ErrNotConnected", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := d.count(); n != 1 {
		t.Errorf("dials = %d after Stop, want 1", n)
	}

	// Second Stop is a no-op.
	m.Stop()
}

func TestStopInterruptsBackoff(t *testing.T) {
	d := newFakeDialer(dialResult{err: errors.New("refused")})
	m, _ := newTestManager(d, newFrameRecorder())
	m.initialDelay = time.Hour

	m.Start()
	waitForDial(t, d, 1)
	waitForState(t, m, status.Disconnected)

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the backoff wait")
	}
	if m.State() != status.Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", m.State())
	}
}

func TestRestartAfterStop(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	d := newFakeDialer(dialResult{t: first}, dialResult{t: second})
	m, _ := newTestManager(d, newFrameRecorder())

	m.Start()
	waitForState(t, m, status.Connected)
	m.Stop()

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)
	if n := d.count(); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
}

// TestWebSocketRoundTrip runs the manager against a real gorilla server that
// echoes text frames and then drops the connection once.
func TestWebSocketRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- c
		for {
			kind, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	rec := newFrameRecorder()
	m := New(url, WebSocketDialer{}, rec, status.NewMachine(bus.New()), zap.NewNop())
	m.initialDelay = 10 * time.Millisecond

	m.Start()
	defer m.Stop()
	waitForState(t, m, status.Connected)

	if err := m.Send(`{"u":"u1","m":"hi","t":1000}`); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-rec.got:
		if got != `{"u":"u1","m":"hi","t":1000}` {
			t.Errorf("echo = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo")
	}

	// Server drops the first connection; the manager reconnects.
	serverSide := <-accepted
	_ = serverSide.Close()
	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not reconnect")
	}
	waitForState(t, m, status.Connected)
}

func TestWebSocketDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tr, err := WebSocketDialer{}.Dial(ctx, url)
	if err == nil {
		t.Fatal("Dial() to closed server should fail")
	}
	if tr != nil {
		t.Errorf("Dial() transport = %v, want nil", tr)
	}
}
