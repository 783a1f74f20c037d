package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/railpay/paymentsd/internal/config"
	"github.com/railpay/paymentsd/internal/core/engine"
	"github.com/railpay/paymentsd/internal/rpc"
	"github.com/railpay/paymentsd/internal/storage"
	"github.com/railpay/paymentsd/internal/storage/eventdb"
	"github.com/railpay/paymentsd/internal/storage/statestore"
)

var (
	// Server flags
	snapshotInterval time.Duration
	eventBuffer      int
)

// serverCmd represents the server command (default action)
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the settlement daemon",
	Long: `Start the paymentsd server which provides:
- HTTP JSON-RPC API endpoints
- WebSocket server for real-time event subscriptions
- Health check endpoint
- Periodic engine snapshots to the state database

The latest stored snapshot is restored on startup, so the engine
resumes from where the previous run left off.

This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Set server as the default command
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	}

	// Server-specific flags
	serverCmd.Flags().DurationVar(&snapshotInterval, "snapshot-interval", 5*time.Minute, "interval between engine snapshots (0 disables periodic snapshots)")
	serverCmd.Flags().IntVar(&eventBuffer, "event-buffer", 1024, "buffered events per sink before shedding")
}

// daemon holds the assembled runtime components so startup wiring can
// be exercised without binding listeners.
type daemon struct {
	cfg       *config.Config
	engine    *engine.Engine
	state     *statestore.Store
	events    *eventdb.Store
	sink      *eventdb.Sink
	publisher *rpc.Publisher
	hub       *rpc.WebSocketServer
	handler   *rpc.Server

	closeStores func()
}

// buildDaemon opens the stores, restores the latest snapshot and wires
// the engine to its event sinks and RPC surface.
func buildDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	engCfg, err := cfg.Engine.ToEngineConfig()
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	manager, err := storage.OpenManager(cfg.Database.Backend, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	db, err := manager.OpenDB("state")
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("open state database: %w", err)
	}
	state := statestore.New(db, cfg.Database.CompressionThreshold)

	events, err := eventdb.Open(cfg.EventDB.Path)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	hub := rpc.NewWebSocketServer(nil, cfg.Server.SendQueueLimit)

	// The sinks need the engine's epoch but the engine needs the sinks
	// at construction; the closure resolves once e is assigned below.
	var e *engine.Engine
	epoch := func() uint64 { return e.CurrentEpoch() }
	sink := eventdb.NewSink(events, epoch, eventBuffer)
	publisher := rpc.NewPublisher(hub, epoch, eventBuffer)
	e = engine.New(engCfg, engine.WithSink(sink), engine.WithSink(publisher))

	snap, snapEpoch, err := state.LoadLatest(ctx)
	switch {
	case err == nil:
		if err := e.Restore(snap); err != nil {
			events.Close()
			manager.Close()
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		if !quiet {
			fmt.Printf("Restored snapshot at epoch %d\n", snapEpoch)
		}
	case errors.Is(err, statestore.ErrNoSnapshot):
		if !quiet {
			fmt.Println("No stored snapshot, starting fresh")
		}
	default:
		events.Close()
		manager.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	svc := rpc.NewService(e, cfg.Server.PageCacheSize,
		rpc.WithStateStore(state),
		rpc.WithEventStore(events),
		rpc.WithSubscriberCount(hub.SubscriberCount),
		rpc.WithVersion(rootCmd.Version),
	)
	handler := rpc.NewServer(svc)
	hub.SetHandler(handler)

	return &daemon{
		cfg:       cfg,
		engine:    e,
		state:     state,
		events:    events,
		sink:      sink,
		publisher: publisher,
		hub:       hub,
		handler:   handler,
		closeStores: func() {
			events.Close()
			manager.Close()
		},
	}, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.DebugLogfile != "" {
		f, err := os.OpenFile(cfg.DebugLogfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open debug logfile: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.closeStores()

	if !quiet {
		fmt.Println("Starting paymentsd")
		fmt.Println("Server Configuration:")
		fmt.Printf("  - HTTP JSON-RPC: http://%s/\n", cfg.Server.RPCListen)
		fmt.Printf("  - WebSocket:     ws://%s/ws\n", cfg.Server.WSListen)
		fmt.Printf("  - Health Check:  http://%s/health\n", cfg.Server.RPCListen)
		fmt.Printf("  - State DB:      %s (%s)\n", cfg.Database.Path, cfg.Database.Backend)
		fmt.Printf("  - Event log:     %s\n", cfg.EventDB.Path)
	}

	rpcMux := http.NewServeMux()
	rpcMux.Handle("/", d.handler)
	rpcMux.Handle("/rpc", d.handler)
	rpcMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"paymentsd"}`))
	})
	rpcSrv := &http.Server{Addr: cfg.Server.RPCListen, Handler: rpcMux}

	wsMux := http.NewServeMux()
	wsMux.Handle("/", d.hub)
	wsMux.Handle("/ws", d.hub)
	wsSrv := &http.Server{Addr: cfg.Server.WSListen, Handler: wsMux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(d.sink.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(d.publisher.Run(gctx)) })

	g.Go(func() error { return ignoreServerClosed(rpcSrv.ListenAndServe()) })
	g.Go(func() error { return ignoreServerClosed(wsSrv.ListenAndServe()) })

	if snapshotInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(snapshotInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := d.state.Save(gctx, d.engine.Snapshot()); err != nil {
						log.Printf("periodic snapshot failed: %v", err)
					}
				}
			}
		})
	}

	// Shutdown sequencing: drain listeners first, then drop subscribers.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rpcSrv.Shutdown(shutdownCtx)
		wsSrv.Shutdown(shutdownCtx)
		d.hub.CloseAll()
		return nil
	})

	err = g.Wait()

	// Final snapshot so a restart resumes from the stopping point.
	if saveErr := d.state.Save(context.Background(), d.engine.Snapshot()); saveErr != nil {
		log.Printf("shutdown snapshot failed: %v", saveErr)
	}
	if !quiet {
		fmt.Println("Shutdown complete")
	}
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
