// echoserver is a standalone WebSocket RPC upstream for demos and manual
// testing. It answers every call by echoing the request params back as the
// result.
//
// Usage: go run ./cmd/echoserver --addr :8081
//
// Flags for failure drills:
//
//	--latency       delay added before every reply
//	--drop-after    close each connection after this duration, so pool
//	                recovery can be watched live
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	latency := flag.Duration("latency", 0, "delay before every reply")
	dropAfter := flag.Duration("drop-after", 0, "close each connection after this duration (0 = never)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	upgrader := websocket.Upgrader{}
	var nextConn atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade failed", "err", err)
			return
		}

		id := nextConn.Add(1)
		connLogger := logger.With("conn", id)
		connLogger.Info("connection accepted", "remote", r.RemoteAddr)

		if *dropAfter > 0 {
			timer := time.AfterFunc(*dropAfter, func() {
				connLogger.Info("dropping connection", "after", *dropAfter)
				ws.Close()
			})
			defer timer.Stop()
		}

		serve(ws, *latency, connLogger)
		connLogger.Info("connection closed")
	})

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info("echo server listening", "addr", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("echo server stopped")
}

// serve answers calls on one connection until it closes.
func serve(ws *websocket.Conn, latency time.Duration, logger *slog.Logger) {
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			logger.Debug("ignoring malformed frame", "err", err)
			continue
		}

		if latency > 0 {
			time.Sleep(latency)
		}

		resp := response{ID: req.ID}
		if req.Method == "" {
			resp.Error = &wireError{Code: "bad_request", Message: "missing method"}
		} else {
			resp.Result = req.Params
		}

		out, err := json.Marshal(resp)
		if err != nil {
			logger.Warn("marshal reply failed", "err", err)
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}

		logger.Debug("answered call", "id", req.ID, "method", req.Method)
	}
}
