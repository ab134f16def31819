package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tripchat/logger"
	"tripchat/module/chat/model"
	"tripchat/tools/errs"
	"tripchat/tools/safe"
)

// Transport is the subset of the socket the connection manager needs.
// Satisfied by *websocket.Conn; tests substitute a fake.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a Transport. The default dials the gateway's /chat endpoint
// over websocket with the session token in the query string.
type Dialer func(ctx context.Context, url, token string) (Transport, error)

func wsDialer(ctx context.Context, url, token string) (Transport, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, h)
	if err != nil {
		return nil, errs.ErrChannelClosed.WrapMsg(err.Error())
	}
	return ws, nil
}

// Connection owns the single realtime socket for one client session. It is
// created by the top-level chat view and injected into the controllers, with
// an explicit Connect/Close lifecycle.
type Connection struct {
	URL   string
	Token string
	Dial  Dialer

	mu       sync.Mutex
	tr       Transport
	handlers map[string]func(*model.Frame)
	done     chan struct{}
	closed   bool
}

func NewConnection(url, token string) *Connection {
	return &Connection{
		URL:      url,
		Token:    token,
		Dial:     wsDialer,
		handlers: make(map[string]func(*model.Frame)),
	}
}

// On registers the handler for one inbound event type. Register everything
// before Connect; the read loop dispatches without further locking.
func (c *Connection) On(event string, fn func(*model.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
}

// Connect dials and starts the read loop.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil {
		return nil
	}
	tr, err := c.Dial(ctx, c.URL, c.Token)
	if err != nil {
		return err
	}
	c.tr = tr
	c.done = make(chan struct{})
	c.closed = false
	safe.Go(c.readLoop)
	return nil
}

// Emit sends one client-to-server event.
func (c *Connection) Emit(event string, payload any) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return errs.ErrChannelClosed.WrapMsg("emit " + event)
	}
	data, err := model.BuildFrame(event, payload)
	if err != nil {
		return err
	}
	if err := tr.WriteMessage(websocket.TextMessage, data); err != nil {
		return errs.ErrChannelClosed.WrapMsg(err.Error())
	}
	return nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil || c.closed {
		return nil
	}
	c.closed = true
	err := c.tr.Close()
	c.tr = nil
	return err
}

// Done is closed when the read loop ends, however it ends.
func (c *Connection) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// readLoop dispatches each inbound frame to completion before reading the
// next, so handlers for one connection never interleave.
func (c *Connection) readLoop() {
	c.mu.Lock()
	tr, done := c.tr, c.done
	c.mu.Unlock()
	defer close(done)

	for {
		_, data, err := tr.ReadMessage()
		if err != nil {
			c.mu.Lock()
			quiet := c.closed
			c.mu.Unlock()
			if !quiet {
				logger.Infof("[Connection] read err=%v", err)
			}
			return
		}
		f, err := model.ParseFrame(data)
		if err != nil {
			logger.Infof("[Connection] bad frame err=%v", err)
			continue
		}
		c.mu.Lock()
		fn := c.handlers[f.Type]
		c.mu.Unlock()
		if fn != nil {
			fn(f)
		}
	}
}
