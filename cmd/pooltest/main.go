// pooltest dials a pool against a configured upstream and streams lifecycle
// and selection activity to the console. Point it at cmd/echoserver (or a
// real upstream) and kill connections to watch recovery live.
//
// Usage: go run ./cmd/pooltest --config configs/prober.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/rpcpool/internal/backoff"
	"github.com/rickgao/rpcpool/internal/config"
	"github.com/rickgao/rpcpool/internal/event"
	"github.com/rickgao/rpcpool/internal/pool"
	"github.com/rickgao/rpcpool/internal/version"
	"github.com/rickgao/rpcpool/internal/wsrpc"
)

func main() {
	configPath := flag.String("config", "configs/prober.example.yaml", "path to config file")
	getInterval := flag.Duration("get-interval", 500*time.Millisecond, "how often to select and call")
	method := flag.String("call", "ping", "method issued on each selected connection")
	verbose := flag.Bool("verbose", false, "print call payloads and per-get events")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	fmt.Printf("pooltest %s\n", version.String())

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	dialer := wsrpc.NewDialer(wsrpc.Config{
		AuthKey:          cfg.Upstream.AuthKey,
		HandshakeTimeout: cfg.Upstream.HandshakeTimeout.Duration(),
		WriteTimeout:     cfg.Upstream.WriteTimeout.Duration(),
		PingInterval:     cfg.Upstream.PingInterval.Duration(),
		PongTimeout:      cfg.Upstream.PongTimeout.Duration(),
	}, logger)

	p := pool.New(pool.Config{
		Addr:           cfg.Upstream.Addr,
		Size:           cfg.Pool.Size,
		StatusInterval: 10 * time.Second,
	}, dialer,
		pool.WithStrategy[*wsrpc.Conn](backoff.Exponential{
			Min: cfg.Backoff.MinDelay.Duration(),
			Max: cfg.Backoff.MaxDelay.Duration(),
		}),
		pool.WithSink[*wsrpc.Conn](&consoleSink{verbose: *verbose}),
		pool.WithLogger[*wsrpc.Conn](logger),
	)

	fmt.Printf("dialing %s with %d slots - press Ctrl+C to stop\n",
		cfg.Upstream.Addr, cfg.Pool.Size)

	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pool", "error", err)
		os.Exit(1)
	}

	// Selection loop
	go func() {
		ticker := time.NewTicker(*getInterval)
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				seq++
				conn, err := p.GetChannel()
				if err != nil {
					fmt.Println("[GET] no live members")
					continue
				}

				callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
				start := time.Now()
				var result json.RawMessage
				err = conn.Call(callCtx, *method, map[string]uint64{"seq": seq}, &result)
				callCancel()

				if err != nil {
					fmt.Printf("[CALL] seq=%d err=%v\n", seq, err)
					continue
				}
				if *verbose {
					fmt.Printf("[CALL] seq=%d rtt=%s result=%s\n", seq, time.Since(start), result)
				} else {
					fmt.Printf("[CALL] seq=%d rtt=%s\n", seq, time.Since(start))
				}
			}
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	p.Stop(shutdownCtx)

	fmt.Println("shutdown complete")
}

// consoleSink prints pool activity to stdout.
type consoleSink struct {
	verbose bool
}

func (s *consoleSink) ConnectSucceeded(e event.ConnectEvent) {
	fmt.Printf("[CONNECT] slot=%d conn=%s dial=%s\n", e.Slot, shortID(e.ConnID.String()), e.Duration)
}

func (s *consoleSink) ConnectFailed(e event.ConnectFailureEvent) {
	fmt.Printf("[CONNECT FAIL] slot=%d err=%v\n", e.Slot, e.Err)
}

func (s *consoleSink) Disconnected(e event.DisconnectEvent) {
	fmt.Printf("[DISCONNECT] slot=%d conn=%s uptime=%s err=%v\n",
		e.Slot, shortID(e.ConnID.String()), e.Uptime.Round(time.Millisecond), e.Err)
}

func (s *consoleSink) ChannelGet(e event.GetEvent) {
	if s.verbose {
		fmt.Printf("[CHANNEL GET] slot=%d connected=%v\n", e.Slot, e.Connected)
	}
}

func (s *consoleSink) PoolGet(e event.PoolGetEvent) {
	if s.verbose {
		fmt.Printf("[GET] slot=%d live=%d\n", e.Slot, e.Live)
	}
}

func (s *consoleSink) PoolStatus(e event.StatusEvent) {
	fmt.Printf("[STATUS] live=%d/%d\n", e.Current, e.Expected)
}

// shortID trims a conn UUID down to its first group for console output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
