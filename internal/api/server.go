// Package api provides the HTTP REST API and WebSocket server for defuse-core.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/defuse-core/internal/audit"
	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/history"
	"github.com/nerrad567/defuse-core/internal/infrastructure/config"
	"github.com/nerrad567/defuse-core/internal/infrastructure/logging"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	defaultCommandTimeout   = 2 * time.Second
	defaultSnapshotInterval = 100 * time.Millisecond
)

// GameController is the game loop. *game.Runner satisfies it.
type GameController interface {
	Do(ctx context.Context, cmd game.Command) error
	Snapshot() game.Snapshot
}

// BusStats reports port counters. *bus.Port satisfies it.
type BusStats interface {
	Stats() bus.Stats
}

// ConnectionStatus is satisfied by *mqtt.Client and *influxdb.Client.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Game    GameController
	Bus     BusStats           // optional
	History history.Repository // optional; history endpoints return 503 without it
	Audit   audit.Repository   // optional; commands are not audited without it
	MQTT    ConnectionStatus   // optional
	Version string

	// Panel serves the operator console at the root. Optional.
	Panel http.Handler

	// CommandTimeout bounds each command sent to the game loop.
	CommandTimeout time.Duration

	// SnapshotInterval is how often the snapshot is checked for WebSocket
	// broadcast.
	SnapshotInterval time.Duration
}

// Server is the HTTP API server for defuse-core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	game      GameController
	bus       BusStats
	history   history.Repository
	auditRepo audit.Repository
	auditCh   chan *audit.Entry
	panel     http.Handler
	mqtt      ConnectionStatus
	version   string
	timeout   time.Duration
	interval  time.Duration
	startTime time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Game == nil {
		return nil, fmt.Errorf("game controller is required")
	}
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = defaultCommandTimeout
	}
	if deps.SnapshotInterval <= 0 {
		deps.SnapshotInterval = defaultSnapshotInterval
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		game:      deps.Game,
		bus:       deps.Bus,
		history:   deps.History,
		auditRepo: deps.Audit,
		panel:     deps.Panel,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		timeout:   deps.CommandTimeout,
		interval:  deps.SnapshotInterval,
		startTime: time.Now(),
		hub:       NewHub(deps.Logger),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}
	return s, nil
}

// Start begins listening for HTTP connections and broadcasting snapshots.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.watchSnapshots(srvCtx)
	if s.auditCh != nil {
		go s.drainAudit(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// watchSnapshots broadcasts the game snapshot whenever its Seq moves.
func (s *Server) watchSnapshots(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.game.Snapshot()
			if snap.Seq == last {
				continue
			}
			last = snap.Seq
			s.hub.Broadcast(ChannelSnapshot, snap)
		}
	}
}
