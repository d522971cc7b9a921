package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type serverRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// echoServer replies to every request with a result mirroring its params.
func echoServer(t *testing.T) *httptest.Server {
	return mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req serverRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			reply, _ := json.Marshal(map[string]any{"id": req.ID, "result": req.Params})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	})
}

func dialTest(t *testing.T, server *httptest.Server, cfg Config) *Conn {
	t.Helper()
	conn, err := NewDialer(cfg, nil).Connect(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return conn
}

func TestDialer_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// Second close should be a no-op.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestDialer_ConnectRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewDialer(DefaultConfig(), nil).Connect(context.Background(), wsURL(server))
	if err == nil {
		t.Fatal("Connect to a closed server succeeded, want error")
	}
}

func TestConn_Call(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var result struct {
		N int `json:"n"`
	}
	if err := conn.Call(ctx, "echo", map[string]int{"n": 7}, &result); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result.N != 7 {
		t.Errorf("result.N = %d, want 7", result.N)
	}
}

func TestConn_CallConcurrentOutOfOrder(t *testing.T) {
	// The server answers a pair of requests in reverse arrival order, so
	// replies can only be matched by ID.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		var reqs []serverRequest
		for len(reqs) < 2 {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req serverRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			reqs = append(reqs, req)
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			reply, _ := json.Marshal(map[string]any{"id": reqs[i].ID, "result": reqs[i].Params})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for n := 1; n <= 2; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var result struct {
				N int `json:"n"`
			}
			if err := conn.Call(ctx, "echo", map[string]int{"n": n}, &result); err != nil {
				t.Errorf("Call %d failed: %v", n, err)
				return
			}
			if result.N != n {
				t.Errorf("call %d: result.N = %d, want %d", n, result.N, n)
			}
		}(n)
	}
	wg.Wait()
}

func TestConn_CallRemoteError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req serverRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			reply, _ := json.Marshal(map[string]any{
				"id":    req.ID,
				"error": map[string]string{"code": "bad_method", "message": "no such method"},
			})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := conn.Call(ctx, "nope", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Call error = %v, want *RemoteError", err)
	}
	if remote.Code != "bad_method" {
		t.Errorf("Code = %s, want bad_method", remote.Code)
	}
}

func TestConn_CallContextTimeout(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Swallow requests without answering.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := conn.Call(ctx, "echo", nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call error = %v, want DeadlineExceeded", err)
	}
}

func TestConn_DoneOnServerClose(t *testing.T) {
	release := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-release
	})
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())
	defer conn.Close()

	close(release)

	select {
	case err := <-conn.Done():
		if err == nil {
			t.Error("Done delivered nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Done after server close")
	}
}

func TestConn_CloseDoesNotSignalDone(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-conn.Done():
		t.Fatalf("Done fired after deliberate Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConn_CallAfterClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn := dialTest(t, server, DefaultConfig())
	conn.Close()

	if err := conn.Call(context.Background(), "echo", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Call after Close = %v, want ErrClosed", err)
	}
}

func TestConn_StaleWithoutPongs(t *testing.T) {
	// The server never reads, so client pings are never answered.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(2 * time.Second)
	})
	defer server.Close()

	cfg := DefaultConfig()
	cfg.PingInterval = 10 * time.Millisecond
	cfg.PongTimeout = 30 * time.Millisecond

	conn := dialTest(t, server, cfg)
	defer conn.Close()

	select {
	case err := <-conn.Done():
		if !errors.Is(err, ErrStale) {
			t.Errorf("Done error = %v, want ErrStale", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for staleness detection")
	}
}

func TestResponse_ErrorFrame(t *testing.T) {
	data := `{"id":3,"error":{"code":"busy","message":"try later"}}`

	var resp response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.ID != 3 {
		t.Errorf("ID = %d, want 3", resp.ID)
	}
	if resp.Error == nil || resp.Error.Code != "busy" {
		t.Errorf("Error = %+v, want code busy", resp.Error)
	}

	remote := &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
	if got := remote.Error(); got != "remote error busy: try later" {
		t.Errorf("Error() = %q, want %q", got, "remote error busy: try later")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s", cfg.PingInterval)
	}
	if cfg.PongTimeout != 90*time.Second {
		t.Errorf("PongTimeout = %v, want 90s", cfg.PongTimeout)
	}

	var zero Config
	filled := zero.withDefaults()
	if filled.HandshakeTimeout != cfg.HandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", filled.HandshakeTimeout, cfg.HandshakeTimeout)
	}
}
