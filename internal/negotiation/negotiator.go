package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/defuse-core/internal/bus"
	"github.com/nerrad567/defuse-core/internal/clock"
	"github.com/nerrad567/defuse-core/internal/protocol"
)

// Bus is the part of a bus.Port the negotiator needs.
type Bus interface {
	Send(dest protocol.Address, body protocol.Body) error
	Poll() (bus.Received, bool)
	SetLocal(addr protocol.Address)
}

// Rand is the random source. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Logger defines the logging interface used by the negotiator.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Negotiator.
type Options struct {
	Type   protocol.ModuleType
	Bus    Bus
	Clock  clock.Clock
	Rand   Rand
	Config Config
	Logger Logger
}

// Result describes the outcome of a negotiation.
type Result struct {
	Address  protocol.Address
	Instance uint8
	// Fallback is set when every candidate was taken and the configured
	// fallback instance was used. Another module may share the address.
	Fallback bool
	// Candidates is the number of instances tried.
	Candidates int
	// Probes is the number of PROBE messages sent.
	Probes int
}

// Negotiator claims an instance number for one module type.
type Negotiator struct {
	typ    protocol.ModuleType
	bus    Bus
	clock  clock.Clock
	rng    Rand
	cfg    Config
	logger Logger

	nonce  uint16
	probes int
}

// New validates the options and creates a Negotiator.
func New(opts Options) (*Negotiator, error) {
	if opts.Bus == nil {
		return nil, ErrNoBus
	}
	if opts.Type.IsSingleton() || opts.Type == protocol.TypeBroadcast || opts.Type > protocol.MaxType {
		return nil, fmt.Errorf("%w: %s", ErrSingleton, opts.Type)
	}
	n := &Negotiator{
		typ:    opts.Type,
		bus:    opts.Bus,
		clock:  opts.Clock,
		rng:    opts.Rand,
		cfg:    opts.Config.withDefaults(),
		logger: opts.Logger,
	}
	if n.clock == nil {
		n.clock = clock.System{}
	}
	if n.rng == nil {
		n.rng = newRand()
	}
	if n.logger == nil {
		n.logger = noopLogger{}
	}
	return n, nil
}

// Run performs the negotiation, sets the bus's local address to the
// claimed instance and sends REGISTER to the orchestrator.
//
// Negotiation never fails on bus conditions: send errors are logged and
// exhaustion falls back to the configured default instance. The only
// error is ctx.Err() when cancelled.
func (n *Negotiator) Run(ctx context.Context) (Result, error) {
	n.bus.SetLocal(protocol.SubChannel(n.typ))

	if err := n.sleep(ctx, n.between(n.cfg.InitialDelayMin, n.cfg.InitialDelayMax)); err != nil {
		return Result{}, err
	}

	res := Result{}
	claimed := false
	for c := uint8(1); c <= n.cfg.MaxInstance; c++ {
		res.Candidates++
		free, err := n.tryCandidate(ctx, c)
		if err != nil {
			return Result{}, err
		}
		if free {
			res.Instance = c
			claimed = true
			break
		}

		backoff := time.Duration(c)*n.cfg.BackoffStep + n.jitter(n.cfg.BackoffJitter)
		n.logger.Debug("candidate taken, backing off", "type", n.typ, "candidate", c, "backoff", backoff)
		if err := n.sleep(ctx, backoff); err != nil {
			return Result{}, err
		}
	}

	if !claimed {
		res.Instance = n.cfg.FallbackInstance
		res.Fallback = true
		n.logger.Warn("no free instance, using fallback", "type", n.typ, "instance", res.Instance)
	}

	addr, err := protocol.NewAddress(n.typ, res.Instance)
	if err != nil {
		return Result{}, err
	}
	res.Address = addr
	res.Probes = n.probes

	n.bus.SetLocal(addr)
	if err := n.bus.Send(protocol.TimerAddress, protocol.Register{}); err != nil {
		n.logger.Warn("register send failed", "address", addr, "error", err)
	}
	n.logger.Info("instance claimed", "address", addr.Describe(), "fallback", res.Fallback, "probes", res.Probes)
	return res, nil
}

// tryCandidate runs the probe rounds plus the confirmation probe.
func (n *Negotiator) tryCandidate(ctx context.Context, candidate uint8) (bool, error) {
	n.nonce = uint16(n.rng.IntN(1 << 16)) //nolint:gosec // IntN bound fits

	for round := 0; round <= n.cfg.ProbeRounds; round++ {
		probe := protocol.Probe{ModuleType: n.typ, Candidate: candidate}
		if n.cfg.UseNonce {
			probe.Nonce = n.nonce
			probe.HasNonce = true
		}
		n.probes++
		if err := n.bus.Send(protocol.SubChannel(n.typ), probe); err != nil {
			n.logger.Warn("probe send failed", "candidate", candidate, "error", err)
		}

		taken, err := n.listen(ctx, candidate, n.cfg.ProbeTimeout+n.jitter(n.cfg.ProbeJitter))
		if err != nil || taken {
			return false, err
		}
	}
	return true, nil
}

// listen polls the bus until the deadline, returning true as soon as the
// candidate is reported taken or contested by a winning peer.
func (n *Negotiator) listen(ctx context.Context, candidate uint8, timeout time.Duration) (bool, error) {
	deadline := n.clock.Now().Add(timeout)
	for {
		for {
			rx, ok := n.bus.Poll()
			if !ok {
				break
			}
			if n.rejects(rx.Message, candidate) {
				return true, nil
			}
		}
		if !n.clock.Now().Before(deadline) {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n.clock.Sleep(n.cfg.PollInterval)
	}
}

// rejects reports whether msg rules out candidate. Everything else seen
// while negotiating is discarded.
func (n *Negotiator) rejects(msg protocol.Message, candidate uint8) bool {
	switch body := msg.Body.(type) {
	case protocol.Taken:
		return body.ModuleType == n.typ && body.Candidate == candidate
	case protocol.Probe:
		if body.ModuleType != n.typ || body.Candidate != candidate || !body.HasNonce || !n.cfg.UseNonce {
			return false
		}
		// Equal nonce is our own echo; the lower nonce keeps the candidate.
		return body.Nonce < n.nonce
	}
	return false
}

func (n *Negotiator) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		n.clock.Sleep(d)
	}
	return ctx.Err()
}

func (n *Negotiator) jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(n.rng.IntN(int(limit) + 1))
}

func (n *Negotiator) between(lo, hi time.Duration) time.Duration {
	return lo + n.jitter(hi-lo)
}

// Answer returns the TAKEN reply a module operating at own must send for
// msg, if msg probes own's instance. Callers handle probes before any
// other pending message.
func Answer(own protocol.Address, msg protocol.Message) (protocol.Taken, bool) {
	probe, ok := msg.Body.(protocol.Probe)
	if !ok || own.Instance() == 0 {
		return protocol.Taken{}, false
	}
	if probe.ModuleType != own.Type() || probe.Candidate != own.Instance() {
		return protocol.Taken{}, false
	}
	return protocol.Taken{ModuleType: probe.ModuleType, Candidate: probe.Candidate}, true
}
