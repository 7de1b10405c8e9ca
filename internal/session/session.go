// Package session is the application-facing surface of the tabletop client:
// it owns the run loop and wires identity, codec, connection manager and
// dispatcher together.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/erilali/rayvtt/internal/conn"
	"github.com/erilali/rayvtt/internal/dispatch"
	"github.com/erilali/rayvtt/internal/identity"
	"github.com/erilali/rayvtt/internal/journal"
	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
)

var ErrInvalidEndpoint = errors.New("session: endpoint must be a ws:// or wss:// URL")

// Options configures Init. Everything is optional; the zero value dials with
// gorilla/websocket on a private run loop and keeps the identity in memory.
type Options struct {
	Config   conn.Config
	Store    identity.Store
	Handlers dispatch.Handlers
	Journal  *journal.Journal
	Logger   *logger.Logger

	Dialer   conn.Dialer
	Clock    conn.Clock
	Executor conn.Executor
}

// Snapshot is a point-in-time view of the session, safe to read from any
// goroutine.
type Snapshot struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	ClientID string `json:"client_id"`
	Room     string `json:"room"`
	Ready    bool   `json:"ready"`
}

type Session struct {
	exec       conn.Executor
	loop       *conn.Loop
	cancel     context.CancelFunc
	manager    *conn.Manager
	dispatcher *dispatch.Dispatcher
	identity   *identity.Identity
	logger     *logger.Logger

	// owned by the run loop
	room  string
	ready bool

	mu   sync.RWMutex
	snap Snapshot

	closeOnce sync.Once
}

// Init builds the session and starts connecting to endpoint.
func Init(endpoint string, opts Options) (*Session, error) {
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger("session")
	}

	s := &Session{logger: log}
	s.identity = identity.New(opts.Store, log.WithField("part", "identity"))

	handlers := opts.Handlers
	if handlers == nil {
		handlers = dispatch.HandlerFuncs{}
	}
	if opts.Journal != nil {
		handlers = opts.Journal.Wrap(handlers)
	}
	s.dispatcher = dispatch.New(&tracker{s: s, next: handlers}, s.identity, log.WithField("part", "dispatch"))

	s.exec = opts.Executor
	if s.exec == nil {
		s.loop = conn.NewLoop()
		s.exec = s.loop
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.loop.Run(ctx)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = conn.NewWebsocketDialer(opts.Config)
	}
	s.manager = conn.NewManager(conn.Options{
		Endpoint:      endpoint,
		Config:        opts.Config,
		Dialer:        dialer,
		Identity:      s.identity,
		Clock:         opts.Clock,
		Executor:      s.exec,
		Logger:        log.WithField("part", "conn"),
		OnEvent:       s.dispatcher.Dispatch,
		OnStateChange: s.stateChanged,
	})

	s.snap = Snapshot{Endpoint: endpoint, State: conn.Disconnected.String(), ClientID: s.identity.Current()}
	s.exec.Post(s.manager.Start)
	return s, nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

// Send transmits an application payload verbatim. Like every outbound call it
// is best effort: while disconnected the payload is dropped.
func (s *Session) Send(raw []byte) {
	payload := append(message.Raw(nil), raw...)
	s.SendCommand(payload)
}

// SendCommand encodes and transmits cmd on the run loop.
func (s *Session) SendCommand(cmd message.Command) {
	s.exec.Post(func() { s.manager.Send(cmd) })
}

// JoinRoom asks the server to move this client into room. Membership changes
// only when the server confirms with room_joined.
func (s *Session) JoinRoom(room string) error {
	if room == "" {
		return message.ErrEmptyRoom
	}
	s.SendCommand(message.JoinRoom{RoomID: room})
	return nil
}

func (s *Session) LeaveRoom() {
	s.SendCommand(message.LeaveRoom{})
}

func (s *Session) Broadcast(text string) {
	s.SendCommand(message.Broadcast{Message: text})
}

// Close stops reconnecting, closes the transport and clears room membership.
// It waits for the run loop, so it must not be called from a handler.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		done := make(chan struct{})
		s.exec.Post(func() {
			s.manager.Close()
			s.room = ""
			s.ready = false
			s.publish()
			close(done)
		})
		if s.loop != nil {
			select {
			case <-done:
			case <-s.loop.Done():
			}
			s.cancel()
			<-s.loop.Done()
		}
	})
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Session) Room() string      { return s.Snapshot().Room }
func (s *Session) Ready() bool       { return s.Snapshot().Ready }
func (s *Session) ClientID() string  { return s.identity.Current() }
func (s *Session) State() conn.State { return parseState(s.Snapshot().State) }

func parseState(v string) conn.State {
	switch v {
	case conn.Connected.String():
		return conn.Connected
	case conn.Connecting.String():
		return conn.Connecting
	default:
		return conn.Disconnected
	}
}

func (s *Session) stateChanged(from, to conn.State) {
	if to == conn.Disconnected && s.ready {
		s.ready = false
		s.logger.Info("Session no longer ready")
	}
	s.publish()
}

// publish copies loop-owned state into the snapshot.
func (s *Session) publish() {
	s.mu.Lock()
	s.snap.State = s.manager.State().String()
	s.snap.ClientID = s.identity.Current()
	s.snap.Room = s.room
	s.snap.Ready = s.ready
	s.mu.Unlock()
}

// tracker keeps room membership and readiness before handing events to the
// application.
type tracker struct {
	s    *Session
	next dispatch.Handlers
}

func (t *tracker) OnTokenUpdate(ev message.TokenUpdate) { t.next.OnTokenUpdate(ev) }
func (t *tracker) OnChat(ev message.Chat)               { t.next.OnChat(ev) }
func (t *tracker) OnUserJoined(ev message.UserJoined)   { t.next.OnUserJoined(ev) }
func (t *tracker) OnUserLeft(ev message.UserLeft)       { t.next.OnUserLeft(ev) }

func (t *tracker) OnRoomJoined(ev message.RoomJoined) {
	t.s.room = ev.RoomID
	t.s.logger.Infof("Joined room: %s", ev.RoomID)
	t.s.publish()
	t.next.OnRoomJoined(ev)
}

func (t *tracker) OnRoomLeft() {
	t.s.logger.Infof("Left room: %s", t.s.room)
	t.s.room = ""
	t.s.publish()
	t.next.OnRoomLeft()
}

func (t *tracker) OnReady() {
	t.s.ready = true
	t.s.publish()
	t.s.logger.Info("Network is ready to send messages")
	t.next.OnReady()
}
