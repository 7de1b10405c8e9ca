package conn

import "errors"

var (
	ErrTransportClosed = errors.New("conn: transport closed")
	ErrNotOpen         = errors.New("conn: transport not open")
	errPongTimeout     = errors.New("conn: pong timeout")
)

// Listener receives transport lifecycle callbacks. OnClose is delivered at
// most once and also reports failed dials.
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(err error)
}

// Dialer opens a transport to endpoint. Dial returns immediately; the
// outcome arrives later through the listener, never before Dial returns.
type Dialer interface {
	Dial(endpoint string, l Listener) Transport
}

// Transport is one connection attempt. It is owned by the Manager.
type Transport interface {
	Write(data []byte) error
	Close() error
}
