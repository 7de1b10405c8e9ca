// Package dispatch routes decoded inbound events to application callbacks.
package dispatch

import (
	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/message"
)

// Handlers is the application's side of the protocol: one method per inbound
// event variant plus OnReady, signalled after each init_state snapshot.
type Handlers interface {
	OnTokenUpdate(ev message.TokenUpdate)
	OnChat(ev message.Chat)
	OnRoomJoined(ev message.RoomJoined)
	OnRoomLeft()
	OnUserJoined(ev message.UserJoined)
	OnUserLeft(ev message.UserLeft)
	OnReady()
}

// HandlerFuncs adapts plain functions to Handlers. Nil fields are skipped.
type HandlerFuncs struct {
	TokenUpdate func(message.TokenUpdate)
	Chat        func(message.Chat)
	RoomJoined  func(message.RoomJoined)
	RoomLeft    func()
	UserJoined  func(message.UserJoined)
	UserLeft    func(message.UserLeft)
	Ready       func()
}

func (h HandlerFuncs) OnTokenUpdate(ev message.TokenUpdate) {
	if h.TokenUpdate != nil {
		h.TokenUpdate(ev)
	}
}

func (h HandlerFuncs) OnChat(ev message.Chat) {
	if h.Chat != nil {
		h.Chat(ev)
	}
}

func (h HandlerFuncs) OnRoomJoined(ev message.RoomJoined) {
	if h.RoomJoined != nil {
		h.RoomJoined(ev)
	}
}

func (h HandlerFuncs) OnRoomLeft() {
	if h.RoomLeft != nil {
		h.RoomLeft()
	}
}

func (h HandlerFuncs) OnUserJoined(ev message.UserJoined) {
	if h.UserJoined != nil {
		h.UserJoined(ev)
	}
}

func (h HandlerFuncs) OnUserLeft(ev message.UserLeft) {
	if h.UserLeft != nil {
		h.UserLeft(ev)
	}
}

func (h HandlerFuncs) OnReady() {
	if h.Ready != nil {
		h.Ready()
	}
}

// IdentitySink accepts a server-issued client id.
type IdentitySink interface {
	Adopt(id string)
}

type Dispatcher struct {
	handlers Handlers
	identity IdentitySink
	logger   *logger.Logger
}

func New(handlers Handlers, identity IdentitySink, log *logger.Logger) *Dispatcher {
	if handlers == nil {
		handlers = HandlerFuncs{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{handlers: handlers, identity: identity, logger: log}
}

// Dispatch calls the handler matching ev on the calling goroutine.
func (d *Dispatcher) Dispatch(ev message.Event) {
	switch e := ev.(type) {
	case message.InitState:
		d.initState(e)
	case message.TokenUpdate:
		d.handlers.OnTokenUpdate(e)
	case message.Chat:
		d.handlers.OnChat(e)
	case message.RoomJoined:
		d.handlers.OnRoomJoined(e)
	case message.RoomLeft:
		d.handlers.OnRoomLeft()
	case message.UserJoined:
		d.handlers.OnUserJoined(e)
	case message.UserLeft:
		d.handlers.OnUserLeft(e)
	case message.Pong:
		// liveness belongs to the connection manager
	default:
		d.logger.Debugf("No handler for %T", ev)
	}
}

func (d *Dispatcher) initState(e message.InitState) {
	d.logger.Infof("Received init_state with %d tokens", len(e.Tokens))
	if e.ClientID != "" && d.identity != nil {
		d.identity.Adopt(e.ClientID)
	}
	for _, tok := range e.Tokens {
		d.handlers.OnTokenUpdate(message.TokenUpdate{SenderID: message.Unknown, Token: tok})
	}
	d.handlers.OnReady()
}
