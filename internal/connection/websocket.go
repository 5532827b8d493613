package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the WebSocket uplink transport.
type WSConfig struct {
	URL              string        // ws:// or wss:// endpoint
	HandshakeTimeout time.Duration // dial handshake limit (default 10s)
	WriteTimeout     time.Duration // per-write deadline (default 5s)
}

func (c *WSConfig) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// NewWebSocketDialer returns a Dialer for the duplex audio uplink. The
// token is attached as a query parameter. Binary frames carry one audio
// chunk each; text frames carry JSON control messages.
func NewWebSocketDialer(cfg WSConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return func(ctx context.Context, token string, cb Callbacks) (Transport, error) {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse uplink URL: %w", err)
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()

		dialer := websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
		conn, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("dial uplink: %w", err)
		}

		t := &wsTransport{
			conn:         conn,
			cb:           cb,
			writeTimeout: cfg.WriteTimeout,
			done:         make(chan struct{}),
		}
		go t.readLoop()

		logger.Debug("uplink connected", "url", cfg.URL)
		return t, nil
	}
}

// wsTransport wraps a gorilla connection behind the Transport interface.
type wsTransport struct {
	conn         *websocket.Conn
	cb           Callbacks
	writeTimeout time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (t *wsTransport) Send(f Frame) error {
	msgType := websocket.TextMessage
	if f.Binary {
		msgType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(msgType, f.Data)
}

func (t *wsTransport) Close(normal bool) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if normal {
			t.writeMu.Lock()
			t.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			t.writeMu.Unlock()
		}
		err = t.conn.Close()
	})
	return err
}

// readLoop delivers inbound frames until the connection drops. A locally
// initiated Close is not reported through OnClose.
func (t *wsTransport) readLoop() {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			normal := websocket.IsCloseError(err, websocket.CloseNormalClosure)
			if t.cb.OnClose != nil {
				t.cb.OnClose(err, normal)
			}
			return
		}

		if t.cb.OnFrame == nil {
			continue
		}
		switch msgType {
		case websocket.BinaryMessage:
			t.cb.OnFrame(Frame{Binary: true, Data: data})
		case websocket.TextMessage:
			t.cb.OnFrame(Frame{Data: data})
		}
	}
}
