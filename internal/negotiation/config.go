package negotiation

import (
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// Config holds the negotiation timing parameters.
type Config struct {
	// InitialDelayMin and InitialDelayMax bound the random start delay
	// that desynchronises modules powered on together.
	InitialDelayMin time.Duration
	InitialDelayMax time.Duration

	// ProbeRounds is the number of silent rounds required before the
	// confirmation probe.
	ProbeRounds int

	// ProbeTimeout is how long each round listens for TAKEN; up to
	// ProbeJitter is added at random.
	ProbeTimeout time.Duration
	ProbeJitter  time.Duration

	// PollInterval is the sleep between drains of the bus while listening.
	PollInterval time.Duration

	// BackoffStep is multiplied by the rejected candidate index; up to
	// BackoffJitter is added at random.
	BackoffStep   time.Duration
	BackoffJitter time.Duration

	// MaxInstance is the last candidate tried.
	MaxInstance uint8

	// FallbackInstance is claimed when every candidate is taken.
	FallbackInstance uint8

	// UseNonce attaches a random tie-break nonce to each PROBE.
	UseNonce bool
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		InitialDelayMin:  50 * time.Millisecond,
		InitialDelayMax:  300 * time.Millisecond,
		ProbeRounds:      3,
		ProbeTimeout:     100 * time.Millisecond,
		ProbeJitter:      50 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		BackoffStep:      20 * time.Millisecond,
		BackoffJitter:    20 * time.Millisecond,
		MaxInstance:      protocol.MaxInstance,
		FallbackInstance: 1,
		UseNonce:         true,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialDelayMax < c.InitialDelayMin {
		c.InitialDelayMax = c.InitialDelayMin
	}
	if c.ProbeRounds <= 0 {
		c.ProbeRounds = d.ProbeRounds
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxInstance == 0 || c.MaxInstance > protocol.MaxInstance {
		c.MaxInstance = d.MaxInstance
	}
	if c.FallbackInstance == 0 || c.FallbackInstance > protocol.MaxInstance {
		c.FallbackInstance = d.FallbackInstance
	}
	return c
}
