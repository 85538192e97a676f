// Package app assembles the orchestrator stack from configuration. Both
// binaries use it so the daemon and the simulator run the same game.
package app

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/infrastructure/config"
	"github.com/nerrad567/defuse-core/internal/infrastructure/logging"
	"github.com/nerrad567/defuse-core/internal/negotiation"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

// GameConfig converts the game section of the config file.
func GameConfig(c config.GameConfig) game.Config {
	return game.Config{
		TimeLimit:           c.TimeLimitDuration(),
		MaxStrikes:          c.MaxStrikes,
		StrikeAcceleration:  c.StrikeAcceleration,
		AccelerationEnabled: c.AccelerationEnabled,
		EmergencyThreshold:  c.EmergencyThresholdDuration(),
		CountdownSeconds:    c.CountdownSeconds,
		NeedyEnabled:        c.NeedyEnabled,
		EdgeworkEnabled:     c.EdgeworkEnabled,
		CuesEnabled:         c.CuesEnabled,
		TickInterval:        c.TickInterval(),
		LivenessTimeout:     c.LivenessTimeoutDuration(),
	}
}

// NegotiationConfig converts the negotiation section of the config file.
func NegotiationConfig(c config.NegotiationConfig) negotiation.Config {
	return negotiation.Config{
		InitialDelayMin:  c.InitialDelayMin(),
		InitialDelayMax:  c.InitialDelayMax(),
		ProbeRounds:      c.ProbeRounds,
		ProbeTimeout:     c.ProbeTimeout(),
		ProbeJitter:      c.ProbeJitter(),
		PollInterval:     c.PollInterval(),
		BackoffStep:      c.BackoffStep(),
		BackoffJitter:    c.BackoffJitter(),
		MaxInstance:      protocol.MaxInstance,
		FallbackInstance: uint8(c.FallbackInstance), //nolint:gosec // validated 1-31
		UseNonce:         c.UseNonce,
	}
}

// NewRand returns a PCG generator. A zero seed draws one from the system
// entropy source.
func NewRand(seed uint64) *rand.Rand {
	if seed != 0 {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // game flavour only
	}
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // game flavour only
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))) //nolint:gosec // game flavour only
}

// OpenTransport opens the configured bus. The sim transport attaches to
// sim, which must be non-nil in that case.
func OpenTransport(cfg config.BusConfig, sim *bus.SimBus, logger bus.Logger) (bus.Transport, error) {
	switch cfg.Transport {
	case config.TransportSLCAN:
		t, err := bus.OpenSLCAN(bus.SLCANConfig{
			PortName: cfg.SerialPort,
			BaudRate: cfg.SerialBaud,
			Bitrate:  cfg.Bitrate,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening slcan transport: %w", err)
		}
		return t, nil
	case config.TransportSim:
		if sim == nil {
			return nil, fmt.Errorf("sim transport needs a simulated bus")
		}
		return sim.Attach(), nil
	default:
		return nil, fmt.Errorf("unknown bus transport %q", cfg.Transport)
	}
}

// Core is the timer unit: its bus port, the orchestrator and the loop
// that owns it.
type Core struct {
	Port         *bus.Port
	Orchestrator *game.Orchestrator
	Runner       *game.Runner
}

// NewCore attaches the timer unit to transport and builds the game loop.
// Register extra hooks with Core.Orchestrator.AddHooks before running
// Core.Runner.
func NewCore(cfg *config.Config, transport bus.Transport, log *logging.Logger) (*Core, error) {
	port, err := bus.NewPort(bus.PortOptions{
		Transport: transport,
		Local:     protocol.TimerAddress,
		QueueSize: cfg.Bus.QueueSize,
		Logger:    log.With("component", "bus"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating bus port: %w", err)
	}

	orch, err := game.New(game.Options{
		Config: GameConfig(cfg.Game),
		Sender: port,
		Rand:   NewRand(cfg.Game.Seed),
		Logger: log.With("component", "game"),
	})
	if err != nil {
		port.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return &Core{
		Port:         port,
		Orchestrator: orch,
		Runner:       game.NewRunner(orch, port),
	}, nil
}
