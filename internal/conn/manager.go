package conn

import (
	"errors"
	"time"

	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
	"github.com/erilali/rayvtt/internal/observability"
)

// IdentitySource supplies the client id announced on every open.
type IdentitySource interface {
	Current() string
}

// Options wires a Manager. Dialer and Identity are required.
type Options struct {
	Endpoint string
	Config   Config
	Dialer   Dialer
	Identity IdentitySource
	Clock    Clock
	Executor Executor
	Logger   *logger.Logger

	// OnEvent receives every decoded inbound event except pongs.
	OnEvent func(message.Event)
	// OnStateChange observes transitions after they happen.
	OnStateChange func(from, to State)
}

// Manager owns the transport and runs the reconnect/heartbeat state machine.
// Every method, and every callback it schedules, runs on the Executor.
type Manager struct {
	endpoint string
	cfg      Config
	dialer   Dialer
	identity IdentitySource
	clock    Clock
	exec     Executor
	logger   *logger.Logger
	onEvent  func(message.Event)
	onState  func(from, to State)

	state     State
	closed    bool
	gen       uint64
	transport Transport
	delay     time.Duration

	timerSeq    uint64
	heartbeat   Timer
	heartbeatID uint64
	backoff     Timer
	backoffID   uint64

	lastPong     time.Time
	awaitingPong bool
}

func NewManager(opts Options) *Manager {
	cfg := opts.Config.withDefaults()
	m := &Manager{
		endpoint: opts.Endpoint,
		cfg:      cfg,
		dialer:   opts.Dialer,
		identity: opts.Identity,
		clock:    opts.Clock,
		exec:     opts.Executor,
		logger:   opts.Logger,
		onEvent:  opts.OnEvent,
		onState:  opts.OnStateChange,
		state:    Disconnected,
		delay:    cfg.BackoffFloor,
	}
	if m.clock == nil {
		m.clock = RealClock()
	}
	if m.logger == nil {
		m.logger = logger.Discard()
	}
	if m.exec == nil {
		m.exec = inline{}
	}
	return m
}

type inline struct{}

func (inline) Post(fn func()) { fn() }

func (m *Manager) State() State { return m.state }

// Endpoint returns the configured server URL.
func (m *Manager) Endpoint() string { return m.endpoint }

// NextBackoff is the delay the next reconnect will wait.
func (m *Manager) NextBackoff() time.Duration { return m.delay }

// LastPong is when liveness was last proven on the current connection.
func (m *Manager) LastPong() time.Time { return m.lastPong }

// AwaitingPong reports whether a ping is outstanding.
func (m *Manager) AwaitingPong() bool { return m.awaitingPong }

// Start performs the first connect. It is a no-op after Close, while a
// connection is in progress, or while a reconnect is already scheduled.
func (m *Manager) Start() {
	if m.closed || m.state != Disconnected || m.backoff != nil {
		return
	}
	m.connect()
}

// Send writes cmd if connected. Commands issued in any other state are
// dropped with a warning; there is no queue.
func (m *Manager) Send(cmd message.Command) bool {
	kind := commandType(cmd)
	if m.state != Connected || m.transport == nil {
		m.logger.Warnf("Not connected (%s), dropping %s", m.state, kind)
		observability.RecordDropped(kind, "disconnected")
		return false
	}
	data, err := message.Encode(cmd)
	if err != nil {
		m.logger.Warnf("Cannot encode %s: %v", kind, err)
		observability.RecordDropped(kind, "encode")
		return false
	}
	if err := m.transport.Write(data); err != nil {
		m.logger.Warnf("Write of %s failed: %v", kind, err)
		observability.RecordDropped(kind, "write")
		return false
	}
	observability.RecordSent(kind)
	return true
}

// Close shuts the manager down for good: timers are cancelled, the transport
// is closed and no reconnect follows.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.stopBackoff()
	m.stopHeartbeat()
	t := m.transport
	m.transport = nil
	m.gen++
	if t != nil {
		if err := t.Close(); err != nil {
			m.logger.Debugf("Transport close: %v", err)
		}
	}
	m.setState(Disconnected)
	m.logger.Info("Session closed")
}

func (m *Manager) connect() {
	if m.closed {
		return
	}
	m.gen++
	m.setState(Connecting)
	m.logger.Infof("Connecting to %s", m.endpoint)
	m.transport = m.dialer.Dial(m.endpoint, &listener{m: m, gen: m.gen})
}

func (m *Manager) handleOpen(gen uint64) {
	if gen != m.gen || m.closed || m.state != Connecting {
		return
	}
	m.setState(Connected)
	m.logger.Info("Connected")
	m.delay = m.cfg.BackoffFloor
	m.lastPong = m.clock.Now()
	m.awaitingPong = false
	m.armHeartbeat()
	id := ""
	if m.identity != nil {
		id = m.identity.Current()
	}
	m.Send(message.ReconnectRequest{ClientID: id})
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	if gen != m.gen || m.closed {
		return
	}
	ev, err := message.Decode(data)
	if err != nil {
		m.logger.Warnf("Dropping inbound message: %v", err)
		observability.RecordReceived("malformed")
		return
	}
	if ev == nil {
		m.logger.Debugf("Ignoring unrecognized message: %.120s", data)
		observability.RecordReceived("unknown")
		return
	}
	observability.RecordReceived(ev.EventType())
	if _, ok := ev.(message.Pong); ok {
		m.lastPong = m.clock.Now()
		m.awaitingPong = false
		return
	}
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

func (m *Manager) handleClose(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.transport = nil
	m.disconnected(err)
}

func (m *Manager) disconnected(cause error) {
	m.stopHeartbeat()
	m.setState(Disconnected)
	if m.closed {
		return
	}
	delay := m.delay
	m.timerSeq++
	id := m.timerSeq
	m.backoffID = id
	m.backoff = m.clock.AfterFunc(delay, func() {
		m.exec.Post(func() { m.handleBackoff(id) })
	})
	m.delay = nextBackoff(delay, m.cfg.BackoffCap)
	m.logger.Warnf("Connection lost (%v). Reconnecting in %s", describe(cause), delay)
	observability.RecordReconnectScheduled(delay)
}

func (m *Manager) handleBackoff(id uint64) {
	if id != m.backoffID || m.backoff == nil || m.closed {
		return
	}
	m.backoff = nil
	m.connect()
}

func (m *Manager) armHeartbeat() {
	m.timerSeq++
	id := m.timerSeq
	m.heartbeatID = id
	m.heartbeat = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.exec.Post(func() { m.handleHeartbeat(id) })
	})
}

func (m *Manager) handleHeartbeat(id uint64) {
	if id != m.heartbeatID || m.heartbeat == nil || m.state != Connected {
		return
	}
	m.heartbeat = nil
	m.Send(message.Ping{})
	m.awaitingPong = true
	if elapsed := m.clock.Now().Sub(m.lastPong); elapsed > m.cfg.PongTimeout {
		m.logger.Warnf("No pong for %s, closing connection", elapsed)
		observability.RecordLivenessFailure()
		m.dropTransport(errPongTimeout)
		return
	}
	m.armHeartbeat()
}

// dropTransport abandons the current transport without waiting for its close
// callback, which will then be ignored as stale.
func (m *Manager) dropTransport(cause error) {
	t := m.transport
	m.transport = nil
	m.gen++
	if t != nil {
		if err := t.Close(); err != nil {
			m.logger.Debugf("Transport close: %v", err)
		}
	}
	m.disconnected(cause)
}

func (m *Manager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	m.heartbeatID = 0
}

func (m *Manager) stopBackoff() {
	if m.backoff != nil {
		m.backoff.Stop()
		m.backoff = nil
	}
	m.backoffID = 0
}

func (m *Manager) setState(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	observability.RecordState(prev.String(), next.String())
	if m.onState != nil {
		m.onState(prev, next)
	}
}

func commandType(cmd message.Command) string {
	if cmd == nil {
		return "nil"
	}
	return cmd.CommandType()
}

func describe(err error) string {
	switch {
	case err == nil:
		return "closed by peer"
	case errors.Is(err, errPongTimeout):
		return "liveness check failed"
	default:
		return err.Error()
	}
}

// listener forwards transport callbacks for one connection generation onto
// the executor.
type listener struct {
	m   *Manager
	gen uint64
}

func (l *listener) OnOpen() {
	l.m.exec.Post(func() { l.m.handleOpen(l.gen) })
}

func (l *listener) OnMessage(data []byte) {
	l.m.exec.Post(func() { l.m.handleMessage(l.gen, data) })
}

func (l *listener) OnClose(err error) {
	l.m.exec.Post(func() { l.m.handleClose(l.gen, err) })
}
