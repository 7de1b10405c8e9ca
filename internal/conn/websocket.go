package conn

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebsocketDialer opens gorilla/websocket connections.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
	Config Config
}

func NewWebsocketDialer(cfg Config) *WebsocketDialer {
	cfg = cfg.withDefaults()
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		Config: cfg,
	}
}

func (d *WebsocketDialer) Dial(endpoint string, l Listener) Transport {
	cfg := d.Config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{cancel: cancel, writeTimeout: cfg.WriteTimeout}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	go t.run(ctx, dialer, endpoint, d.Header, cfg, l)
	return t
}

type wsTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	closed       bool
	cancel       context.CancelFunc
	writeTimeout time.Duration
}

// run dials, reports the open, then pumps inbound frames until the
// connection fails or is closed locally.
func (t *wsTransport) run(ctx context.Context, dialer *websocket.Dialer, endpoint string, header http.Header, cfg Config, l Listener) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	conn, _, err := dialer.DialContext(dialCtx, endpoint, header)
	cancel()
	if err != nil {
		l.OnClose(err)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		l.OnClose(ErrTransportClosed)
		return
	}
	t.conn = conn
	t.mu.Unlock()

	conn.SetReadLimit(cfg.ReadLimit)
	l.OnOpen()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			local := t.closed
			t.mu.Unlock()
			if local {
				err = ErrTransportClosed
			}
			l.OnClose(err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		l.OnMessage(data)
	}
}

func (t *wsTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.conn == nil {
		return ErrNotOpen
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.cancel()
	if t.conn == nil {
		return nil
	}
	t.conn.SetWriteDeadline(time.Now().Add(closeGracePeriod))
	t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
