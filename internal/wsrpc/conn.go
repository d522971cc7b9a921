package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/rpcpool/internal/channel"
)

// Conn is one live WebSocket RPC connection. Calls may be issued
// concurrently; replies are matched to callers by request ID.
type Conn struct {
	cfg    Config
	logger *slog.Logger
	ws     *websocket.Conn

	// Write serialization
	writeMu sync.Mutex
	nextID  atomic.Uint64

	// State
	mu       sync.Mutex
	pending  map[uint64]chan response
	lastPong time.Time
	closed   bool

	done chan error    // loss signal to the owning channel
	stop chan struct{} // tells loops and waiting calls to exit
}

var _ channel.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	c := &Conn{
		cfg:      cfg,
		logger:   logger,
		ws:       ws,
		pending:  make(map[uint64]chan response),
		lastPong: time.Now(),
		done:     make(chan error, 1),
		stop:     make(chan struct{}),
	}

	// Server pings get a pong back; both directions count as liveness.
	ws.SetPingHandler(func(data string) error {
		c.touch()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	return c
}

// Done signals connection loss to the owner. It receives exactly one error:
// deliberate Close never fires it.
func (c *Conn) Done() <-chan error { return c.done }

// Close gracefully closes the connection. Safe to call more than once and
// after a loss.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// Call sends one request and waits for its reply, decoding the result into
// result when non-nil. A *RemoteError means the server rejected this call;
// ErrClosed means the connection died while waiting.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	respCh := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := c.send(data); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrClosed
	case resp := <-respCh:
		if resp.Error != nil {
			return &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
}

func (c *Conn) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

// fail records connection loss once: it wakes waiting calls, signals the
// owner, and releases the socket. Loss after a deliberate Close is ignored.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	c.done <- err
	_ = c.ws.Close()
}

// readLoop reads reply frames and routes them to waiting calls.
func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			// Read errors after Close are expected teardown noise.
			select {
			case <-c.stop:
			default:
				c.fail(err)
			}
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Debug("dropping malformed frame", "err", err)
			continue
		}
		c.deliver(resp)
	}
}

// deliver hands a reply to the call waiting on its ID. Replies to abandoned
// calls and unrecognized server frames land here with no waiter and are
// dropped.
func (c *Conn) deliver(resp response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping frame with no waiting call", "id", resp.ID)
		return
	}
	ch <- resp
}

// heartbeatLoop pings the server and fails the connection when pongs stop.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "err", err)
			}

			c.mu.Lock()
			last := c.lastPong
			c.mu.Unlock()

			if time.Since(last) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", last,
					"timeout", c.cfg.PongTimeout,
				)
				c.fail(ErrStale)
				return
			}
		}
	}
}
