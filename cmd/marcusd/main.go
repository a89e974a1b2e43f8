// Command marcusd runs the coordination server: it loads configuration,
// opens the ledger and decision store, wires the coordinator and
// reconciler, and serves the control protocol over HTTP.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"

	"github.com/marcus-ai/marcus/internal/agentreg"
	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/config"
	"github.com/marcus-ai/marcus/internal/coordinator"
	"github.com/marcus-ai/marcus/internal/events"
	"github.com/marcus-ai/marcus/internal/ledger"
	"github.com/marcus-ai/marcus/internal/mcpserver"
	"github.com/marcus-ai/marcus/internal/memory"
	"github.com/marcus-ai/marcus/internal/natsbridge"
	"github.com/marcus-ai/marcus/internal/notify"
	"github.com/marcus-ai/marcus/internal/reconciler"
)

func main() {
	configPath := flag.String("config", "configs/marcus.yaml", "YAML configuration file")
	dataDir := flag.String("data", "data", "directory for the ledger and decision store")
	projectID := flag.String("project", "default", "project id to register the board adapter under")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	l, err := ledger.Open(filepath.Join(*dataDir, "ledger.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	store, err := memory.Open(filepath.Join(*dataDir, "memory.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open decision store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	eventsDB, err := sql.Open("sqlite", filepath.Join(*dataDir, "events.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open event database: %v\n", err)
		os.Exit(1)
	}
	defer eventsDB.Close()

	eventStore, err := events.NewSQLiteStore(eventsDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open event store: %v\n", err)
		os.Exit(1)
	}
	bus := events.NewBus(eventStore)

	agents := agentreg.New()

	coord := coordinator.New(l, store, agents, bus, nil, cfg.CoordinatorConfig())
	coord.SetNotifier(notify.NewNotifier(fmt.Sprintf("http://localhost%s", cfg.ListenAddr)))

	adapter, err := buildAdapter(cfg.Adapter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build board adapter: %v\n", err)
		os.Exit(1)
	}
	coord.RegisterProject(*projectID, adapter)

	rec := reconciler.New(l, map[string]board.Adapter{*projectID: adapter}, cfg.ReconcilerConfig())
	rec.SetNotifier(notify.NewNotifier(fmt.Sprintf("http://localhost%s", cfg.ListenAddr)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	var bridge *natsbridge.Bridge
	if cfg.NATS.Enabled {
		bridge, err = startNATS(cfg.NATS, bus)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start NATS bridge: %v\n", err)
		} else {
			defer bridge.Close()
			if err := bridge.SubscribeBoardChanges(coord.InvalidateSnapshot); err != nil {
				fmt.Fprintf(os.Stderr, "failed to subscribe to board-change notifications: %v\n", err)
			}
			coord.SetBoardChangeAnnouncer(func(projectID string) {
				if err := bridge.AnnounceBoardChange(projectID); err != nil {
					fmt.Fprintf(os.Stderr, "failed to announce board change for project %s: %v\n", projectID, err)
				}
			})
		}
	}

	router := mux.NewRouter()
	mcpserver.NewServer(coord).RegisterRoutes(router)
	statusHub := mcpserver.NewStatusHub(nil)
	statusHub.RegisterRoutes(router)
	go statusHub.Run(bus.Subscribe("all", nil))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	fmt.Printf("marcus listening on %s\n", cfg.ListenAddr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println("shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
}

func buildAdapter(cfg config.AdapterConfig) (board.Adapter, error) {
	switch cfg.Provider {
	case "", "local":
		return board.NewLocalAdapter(cfg.Path)
	case "external":
		return board.NewExternalAdapter("external", cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown adapter provider %q", cfg.Provider)
	}
}

func startNATS(cfg config.NATSConfig, bus *events.Bus) (*natsbridge.Bridge, error) {
	url := cfg.URL
	if cfg.Embed {
		srv, err := natsbridge.NewEmbeddedServer(natsbridge.EmbeddedServerConfig{Port: cfg.Port})
		if err != nil {
			return nil, err
		}
		if err := srv.Start(); err != nil {
			return nil, err
		}
		url = srv.URL()
	}
	bridge, err := natsbridge.Connect(url, bus)
	if err != nil {
		return nil, err
	}
	bridge.PublishEvents("all", nil)
	return bridge, nil
}
