// Package natsbridge embeds a NATS server and bridges the coordination
// event bus onto it, so external tooling (dashboards, other processes) can
// subscribe to coordination events without talking the control protocol.
package natsbridge

import (
	"fmt"
	"sync"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig configures the in-process NATS server.
type EmbeddedServerConfig struct {
	Port      int
	JetStream bool
	DataDir   string
}

// EmbeddedServer wraps an in-process NATS server instance.
type EmbeddedServer struct {
	server  *natsserver.Server
	config  EmbeddedServerConfig
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer validates config and returns a not-yet-started server.
func NewEmbeddedServer(config EmbeddedServerConfig) (*EmbeddedServer, error) {
	if config.Port <= 0 {
		config.Port = 4222
	}
	if config.JetStream && config.DataDir == "" {
		return nil, fmt.Errorf("natsbridge: data_dir is required when jetstream is enabled")
	}
	return &EmbeddedServer{config: config}, nil
}

// Start boots the server and blocks until it accepts connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("natsbridge: server already running")
	}

	opts := &natsserver.Options{
		Host:       "127.0.0.1",
		Port:       e.config.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if e.config.JetStream {
		opts.JetStream = true
		opts.StoreDir = e.config.DataDir
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return fmt.Errorf("natsbridge: failed to create server: %w", err)
	}
	e.server = ns
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("natsbridge: server not ready for connections")
	}
	e.running = true
	return nil
}

// Shutdown gracefully stops the server, if running.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
	e.server = nil
}

// URL returns the connection string for clients.
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", e.config.Port)
}

// IsRunning reports whether Start has succeeded and Shutdown has not run.
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
