// defusesim - bench simulator for defuse-core
//
// It runs the timer unit and a set of simulated puzzle modules in one
// process over an in-memory bus. The modules negotiate addresses,
// register, then solve themselves (making the odd mistake) while the
// game events print to the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/defuse-core/internal/api"
	"github.com/nerrad567/defuse-core/internal/app"
	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/game"
	"github.com/nerrad567/defuse-core/internal/infrastructure/config"
	"github.com/nerrad567/defuse-core/internal/infrastructure/logging"
	"github.com/nerrad567/defuse-core/internal/module"
	"github.com/nerrad567/defuse-core/internal/panel"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

var version = "dev"

var regularTypes = []protocol.ModuleType{
	protocol.TypeWires,
	protocol.TypeButton,
	protocol.TypeKeypad,
	protocol.TypeSimon,
	protocol.TypeWhosOnFirst,
	protocol.TypeMemory,
	protocol.TypeMorse,
	protocol.TypeComplicatedWires,
	protocol.TypeWireSequences,
	protocol.TypeMaze,
	protocol.TypePassword,
}

var needyTypes = []protocol.ModuleType{
	protocol.TypeVentingGas,
	protocol.TypeCapacitorDischarge,
	protocol.TypeKnob,
}

type options struct {
	configPath      string
	modules         int
	types           []string
	needy           int
	timeLimit       int
	strikes         int
	countdown       int
	seed            uint64
	solveWindow     time.Duration
	strikeChance    float64
	registerTimeout time.Duration
	apiPort         int
	logLevel        string
	noColor         bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("defusesim", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (defaults apply when empty)")
	flagSet.IntVarP(&opts.modules, "modules", "m", 4, "number of regular modules")
	flagSet.StringSliceVar(&opts.types, "types", nil, "explicit module types, e.g. wires,keypad,venting_gas (overrides --modules and --needy)")
	flagSet.IntVar(&opts.needy, "needy", 0, "number of needy modules")
	flagSet.IntVarP(&opts.timeLimit, "time", "t", 0, "time limit in seconds (0 keeps the config value)")
	flagSet.IntVar(&opts.strikes, "strikes", 0, "strike limit (0 keeps the config value)")
	flagSet.IntVar(&opts.countdown, "countdown", -1, "pre-start countdown in seconds (-1 keeps the config value)")
	flagSet.Uint64Var(&opts.seed, "seed", 0, "random seed for serial, edgework and players (0 is random)")
	flagSet.DurationVar(&opts.solveWindow, "solve-window", 20*time.Second, "upper bound on the time to solve one module")
	flagSet.Float64Var(&opts.strikeChance, "strike-chance", 0.02, "chance of a mistake per module per second")
	flagSet.DurationVar(&opts.registerTimeout, "register-timeout", 10*time.Second, "how long to wait for every module to register")
	flagSet.IntVar(&opts.apiPort, "api-port", 0, "serve the HTTP API on this port (0 disables it)")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	help := flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if *help {
		flagSet.PrintDefaults()
		return opts, pflag.ErrHelp
	}
	if opts.modules < 0 || opts.needy < 0 {
		return opts, errors.New("module counts cannot be negative")
	}
	if opts.strikeChance < 0 || opts.strikeChance > 1 {
		return opts, fmt.Errorf("strike chance %v outside [0, 1]", opts.strikeChance)
	}
	if opts.solveWindow <= 0 {
		return opts, errors.New("solve window must be positive")
	}
	return opts, nil
}

// roster resolves the module types to simulate.
func roster(opts options) ([]protocol.ModuleType, error) {
	var types []protocol.ModuleType
	if len(opts.types) > 0 {
		for _, name := range opts.types {
			t, err := protocol.ParseModuleType(name)
			if err != nil {
				return nil, err
			}
			if t.Category() == protocol.CategoryIgnored {
				return nil, fmt.Errorf("%s is not a puzzle module", t)
			}
			types = append(types, t)
		}
		return types, nil
	}
	for i := range opts.modules {
		types = append(types, regularTypes[i%len(regularTypes)])
	}
	for i := range opts.needy {
		types = append(types, needyTypes[i%len(needyTypes)])
	}
	if len(types) == 0 {
		return nil, errors.New("nothing to simulate")
	}
	return types, nil
}

// loadConfig reads the config and applies the command line on top. The
// transport is always the in-memory bus and nothing is persisted.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Bus.Transport = config.TransportSim
	cfg.Database.Enabled = false
	cfg.MQTT.Enabled = false
	cfg.InfluxDB.Enabled = false
	cfg.API.Enabled = opts.apiPort > 0
	if opts.apiPort > 0 {
		cfg.API.Port = opts.apiPort
	}
	if opts.timeLimit > 0 {
		cfg.Game.TimeLimit = opts.timeLimit
	}
	if opts.strikes > 0 {
		cfg.Game.MaxStrikes = opts.strikes
	}
	if opts.countdown >= 0 {
		cfg.Game.CountdownSeconds = opts.countdown
	}
	if opts.seed != 0 {
		cfg.Game.Seed = opts.seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.noColor {
		color.NoColor = true
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	types, err := roster(opts)
	if err != nil {
		return err
	}

	log := logging.NewWithWriter(out, config.LoggingConfig{Level: opts.logLevel, Format: "text"}, version)
	pr := newPrinter(out)

	sim := bus.NewSimBus()
	transport, err := app.OpenTransport(cfg.Bus, sim, log.With("component", "transport"))
	if err != nil {
		return err
	}
	core, err := app.NewCore(cfg, transport, log)
	if err != nil {
		transport.Close() //nolint:errcheck // already failing
		return err
	}
	defer core.Port.Close() //nolint:errcheck // shutting down

	ended := make(chan game.Snapshot, 1)
	core.Orchestrator.AddHooks(pr.hooks())
	core.Orchestrator.AddHooks(game.Hooks{
		OnGameEnded: func(snap game.Snapshot) {
			select {
			case ended <- snap:
			default:
			}
		},
	})

	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	var ports []*bus.Port
	defer func() {
		stop()
		g.Wait() //nolint:errcheck // reported below on the normal path
		for _, p := range ports {
			p.Close() //nolint:errcheck // shutting down
		}
	}()
	g.Go(func() error { return core.Runner.Run(gctx) })

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Game:    core.Runner,
			Bus:     core.Port,
			Version: version,
			Panel:   panel.Handler(cfg.API.Panel.Dir),
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer server.Close() //nolint:errcheck // shutting down
		pr.info("console  http://%s:%d/", cfg.API.Host, cfg.API.Port)
	}

	players := app.NewRand(cfg.Game.Seed)
	behave := behaviour{
		SolveWindow:  opts.solveWindow,
		StrikeChance: opts.strikeChance,
		Step:         10 * time.Millisecond,
	}
	for i, t := range types {
		port, portErr := bus.NewPort(bus.PortOptions{
			Transport: sim.Attach(),
			Local:     protocol.SubChannel(t),
			QueueSize: cfg.Bus.QueueSize,
			Logger:    log.With("component", "bus", "type", t.String()),
		})
		if portErr != nil {
			return portErr
		}
		ports = append(ports, port)

		s, simErr := newSimModule(module.Options{
			Type:              t,
			Port:              port,
			Rand:              rand.New(rand.NewPCG(players.Uint64(), uint64(i))), //nolint:gosec // simulation only
			Negotiation:       app.NegotiationConfig(cfg.Negotiation),
			HeartbeatInterval: time.Second,
			Logger:            log.With("component", "module", "type", t.String()),
		}, rand.New(rand.NewPCG(players.Uint64(), players.Uint64())), behave) //nolint:gosec // simulation only
		if simErr != nil {
			return simErr
		}
		g.Go(func() error { return s.run(gctx) })
	}
	pr.info("modules  %d attached, waiting for registration", len(types))

	result := make(chan error, 1)
	go func() {
		result <- play(gctx, core.Runner, len(types), opts.registerTimeout, pr, ended)
		stop()
	}()

	waitErr := g.Wait()
	playErr := <-result
	if playErr != nil {
		return playErr
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}

// play waits for the roster, starts the game and reports the outcome.
func play(ctx context.Context, runner *game.Runner, want int, timeout time.Duration, pr *printer, ended <-chan game.Snapshot) error {
	regCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for runner.Snapshot().Counts.Total < want {
		select {
		case <-regCtx.Done():
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("only %d of %d modules registered", runner.Snapshot().Counts.Total, want)
		case <-ticker.C:
		}
	}

	snap := runner.Snapshot()
	for _, rec := range snap.Modules {
		pr.info("register %s %s", rec.Address, rec.Type)
	}
	for _, op := range []game.Op{game.OpConfirm, game.OpStart} {
		if err := runner.Do(ctx, game.Command{Op: op}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	pr.info("serial   %s", runner.Snapshot().Serial)

	select {
	case <-ctx.Done():
		return nil
	case final := <-ended:
		pr.summary(final)
		return nil
	}
}
