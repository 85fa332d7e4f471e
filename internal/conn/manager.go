// Package conn keeps a single WebSocket connection to the relay alive:
// connect, reconnect with exponential backoff, heartbeat, and publish the
// connection state.
package conn

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/haptalk/internal/status"
	"go.uber.org/zap"
)

// Reconnect backoff bounds and the heartbeat period.
const (
	InitialRetryDelay = 2 * time.Second
	MaxRetryDelay     = 30 * time.Second
	PingInterval      = 30 * time.Second

	writeWait = 10 * time.Second
)

// Handler receives every inbound text frame, in arrival order, on the read goroutine.
type Handler interface {
	HandleFrame(frame string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(frame string)

// HandleFrame calls f(frame).
func (f HandlerFunc) HandleFrame(frame string) { f(frame) }

// Backoff returns the delay before reconnect attempt retryCount (0-based).
func Backoff(retryCount int) time.Duration {
	return backoff(InitialRetryDelay, MaxRetryDelay, retryCount)
}

func backoff(initial, maxDelay time.Duration, retryCount int) time.Duration {
	d := initial
	for i := 0; i < retryCount && d < maxDelay; i++ {
		d *= 2
	}
	return min(d, maxDelay)
}

// Manager owns the connection to one relay endpoint. It is the only writer
// of the connection state held by its status.Machine.
type Manager struct {
	url     string
	dialer  Dialer
	handler Handler
	machine *status.Machine
	logger  *zap.Logger

	initialDelay time.Duration
	maxDelay     time.Duration
	pingInterval time.Duration
	wait         func(ctx context.Context, d time.Duration) bool

	lifeMu sync.Mutex // serializes Start and Stop

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	conn    Transport

	writeMu sync.Mutex
}

// New creates a stopped manager for url. handler may not be nil.
func New(url string, dialer Dialer, handler Handler, machine *status.Machine, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		url:          url,
		dialer:       dialer,
		handler:      handler,
		machine:      machine,
		logger:       logger.Named("conn"),
		initialDelay: InitialRetryDelay,
		maxDelay:     MaxRetryDelay,
		pingInterval: PingInterval,
		wait:         sleepCtx,
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Running reports whether the connect loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the connect loop. Calling Start on a running manager does nothing.
func (m *Manager) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Debug("already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	_ = m.machine.Transition(status.Connecting)

	go m.run(ctx, m.done)
}

// Stop ends the connect loop, the heartbeat and the current connection, then
// forces DISCONNECTED. It blocks until those goroutines exit, so it must not
// be called from a Handler. Calling Stop on a stopped manager does nothing.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.logger.Info("disconnecting")
	m.running = false
	m.cancel()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	done := m.done
	m.mu.Unlock()

	<-done
	m.machine.Reset()
}

// Send writes one text frame to the relay. It fails with ErrNotConnected
// unless the state is CONNECTED, and never retries.
func (m *Manager) Send(frame string) error {
	m.mu.Lock()
	t := m.conn
	connected := m.machine.Current() == status.Connected
	m.mu.Unlock()
	if t == nil || !connected {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = t.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		m.logger.Error("error sending frame", zap.Error(err))
		return &SendError{Err: err}
	}
	m.logger.Debug("sent", zap.Int("bytes", len(frame)))
	return nil
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	retryCount := 0
	for ctx.Err() == nil {
		_ = m.machine.Transition(status.Connecting)
		m.logger.Info("attempting to connect", zap.String("url", m.url))

		var err error
		t, dialErr := m.dialer.Dial(ctx, m.url)
		if dialErr != nil {
			err = &ConnectError{URL: m.url, Err: dialErr}
		} else {
			retryCount = 0
			err = m.serve(ctx, t)
		}
		if ctx.Err() != nil {
			return
		}

		m.logger.Warn("connection error", zap.Error(err))
		_ = m.machine.Transition(status.Disconnected)

		delay := backoff(m.initialDelay, m.maxDelay, retryCount)
		retryCount++
		m.logger.Info("reconnecting", zap.Duration("delay", delay), zap.Int("attempt", retryCount))
		if !m.wait(ctx, delay) {
			return
		}
	}
}

// serve runs one connection lifetime: publish the handle, heartbeat, read
// until the transport fails, then release the handle.
func (m *Manager) serve(ctx context.Context, t Transport) error {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		_ = t.Close()
		return ctx.Err()
	}
	m.conn = t
	_ = m.machine.Transition(status.Connected)
	m.mu.Unlock()
	m.logger.Info("connected", zap.String("url", m.url))

	if p, ok := t.(pongSetter); ok {
		p.SetPongHandler(func(string) error {
			m.logger.Debug("pong")
			return nil
		})
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.heartbeat(hbCtx, t)
	}()

	err := m.readLoop(t)

	hbCancel()
	wg.Wait()

	m.mu.Lock()
	if m.conn == t {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = t.Close()
	return err
}

func (m *Manager) readLoop(t Transport) error {
	for {
		kind, data, err := t.ReadMessage()
		if err != nil {
			return &ReadError{Err: err}
		}
		if kind != websocket.TextMessage {
			continue
		}
		m.handler.HandleFrame(string(data))
	}
}

// heartbeat pings until ctx ends or a ping fails. A failed ping leaves the
// state alone: the read loop owns failure detection.
func (m *Manager) heartbeat(ctx context.Context, t Transport) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				m.logger.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
