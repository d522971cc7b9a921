package wsrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rickgao/rpcpool/internal/channel"
)

// Dialer produces wsrpc connections. It satisfies the connector contract
// consumed by channels and pools.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

var _ channel.Connector[*Conn] = (*Dialer)(nil)

// NewDialer creates a Dialer. Zero config fields fall back to defaults.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg.withDefaults(), logger: logger}
}

// Connect performs the WebSocket handshake against addr and starts the
// connection's read and heartbeat loops.
func (d *Dialer) Connect(ctx context.Context, addr string) (*Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if d.cfg.AuthKey != "" {
		header.Set("Authorization", "Bearer "+d.cfg.AuthKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	d.logger.Debug("websocket connected", "addr", addr)
	return newConn(ws, d.cfg, d.logger), nil
}
