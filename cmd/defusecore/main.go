// defuse-core - bomb defusal game orchestrator
//
// This is the timer unit's daemon. It attaches to the module bus, runs the
// game loop and exposes the game to operators over HTTP, WebSocket and
// MQTT. Finished games are recorded to SQLite and telemetry goes to
// InfluxDB when enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nerrad567/defuse-core/internal/api"
	"github.com/nerrad567/defuse-core/internal/app"
	"github.com/nerrad567/defuse-core/internal/audit"
	"github.com/nerrad567/defuse-core/internal/auth"
	"github.com/nerrad567/defuse-core/internal/bridge"
	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/history"
	"github.com/nerrad567/defuse-core/internal/infrastructure/config"
	"github.com/nerrad567/defuse-core/internal/infrastructure/database"
	"github.com/nerrad567/defuse-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/defuse-core/internal/infrastructure/logging"
	"github.com/nerrad567/defuse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/defuse-core/internal/panel"
	"github.com/nerrad567/defuse-core/internal/telemetry"
	"github.com/nerrad567/defuse-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-pin" {
		if err := hashPIN(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting defuse-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"device", cfg.Device.ID,
		"transport", cfg.Bus.Transport,
	)

	// The sim transport runs the timer alone on an in-memory bus; modules
	// attach from the simulator binary instead.
	var sim *bus.SimBus
	if cfg.Bus.Transport == config.TransportSim {
		sim = bus.NewSimBus()
	}
	transport, err := app.OpenTransport(cfg.Bus, sim, log.With("component", "transport"))
	if err != nil {
		return err
	}

	core, err := app.NewCore(cfg, transport, log)
	if err != nil {
		transport.Close() //nolint:errcheck // already failing
		return err
	}
	defer func() {
		if closeErr := core.Port.Close(); closeErr != nil {
			log.Error("error closing bus port", "error", closeErr)
		}
	}()

	var wg sync.WaitGroup
	loopCtx, stopLoops := context.WithCancel(ctx)
	defer func() {
		stopLoops()
		wg.Wait()
	}()

	var repo history.Repository
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, dbErr := openDatabase(ctx, cfg.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", cfg.Database.Path)

		repo = history.NewSQLiteRepository(db.DB)
		auditRepo = audit.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(repo, history.RecorderOptions{Logger: log.With("component", "history")})
		core.Orchestrator.AddHooks(recorder.Hooks())
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(loopCtx) //nolint:errcheck // returns ctx.Err()
		}()
	} else {
		log.Info("game history disabled")
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without the bridge", "error", err)
			mqttClient = nil
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			mqttClient.SetLogger(log.With("component", "mqtt"))
			mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
			mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

			b, bErr := bridge.New(bridge.Options{
				Client:     mqttClient,
				Controller: core.Runner,
				Topics:     mqttClient.Topics(),
				Logger:     log.With("component", "bridge"),
				Audit:      auditRepo,
			})
			if bErr != nil {
				return fmt.Errorf("creating MQTT bridge: %w", bErr)
			}
			core.Orchestrator.AddHooks(b.Hooks())
			if startErr := b.Start(loopCtx); startErr != nil {
				return fmt.Errorf("starting MQTT bridge: %w", startErr)
			}
			defer b.Stop()
			log.Info("MQTT bridge started",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"prefix", mqttClient.Topics().Prefix(),
			)
		}
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		sampler := telemetry.New(telemetry.Options{
			Writer:    influxClient,
			Game:      core.Runner,
			Bus:       core.Port,
			Bomb:      cfg.Device.ID,
			Transport: cfg.Bus.Transport,
		})
		core.Orchestrator.AddHooks(sampler.Hooks())
		wg.Add(1)
		go func() {
			defer wg.Done()
			sampler.Run(loopCtx)
		}()
		log.Info("InfluxDB telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Game:    core.Runner,
			Bus:     core.Port,
			History: repo,
			Audit:   auditRepo,
			Version: version,
		}
		if cfg.API.Panel.Enabled {
			deps.Panel = panel.Handler(cfg.API.Panel.Dir)
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(loopCtx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Hooks are all registered; the loop owns the orchestrator from here.
	runErr := make(chan error, 1)
	go func() {
		runErr <- core.Runner.Run(loopCtx)
	}()
	log.Info("game loop running", "state", core.Runner.Snapshot().State)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		<-runErr
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("game loop: %w", err)
		}
	}

	log.Info("defuse-core stopped")
	return nil
}

// hashPIN prints the api.auth.pin_hash value for a PIN.
func hashPIN(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: defusecore hash-pin <pin>")
	}
	hash, err := auth.HashPIN(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// getConfigPath returns DEFUSE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("DEFUSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens SQLite, applies migrations and checks the connection.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}
