package registry

import (
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// Record is the orchestrator's view of one module.
type Record struct {
	Address  protocol.Address    `json:"address"`
	Type     protocol.ModuleType `json:"type"`
	Instance uint8               `json:"instance"`
	Category protocol.Category   `json:"category"`

	// Solved is set once for Regular modules and never cleared until the
	// registry is cleared.
	Solved bool `json:"solved"`

	// Active marks a Needy module that is currently triggered.
	Active bool `json:"active"`

	// Online is false once the module has been silent for longer than the
	// liveness timeout. Any later message revives it.
	Online bool `json:"online"`

	// InRoster marks modules present when the roster was frozen. Only
	// roster modules count toward the win condition.
	InRoster bool `json:"in_roster"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	// Needy scheduling. Zero for other categories.
	NeedyInterval    time.Duration `json:"needy_interval"`
	NextActivationAt time.Time     `json:"next_activation_at,omitzero"`
	Activations      int           `json:"activations"`

	// Last module-reported status, if any.
	Report        *protocol.ModuleReport `json:"report,omitempty"`
	ModuleStrikes uint8                  `json:"module_strikes"`
	Messages      uint64                 `json:"messages"`
}

// DeepCopy returns a copy that shares no memory with r.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Report != nil {
		rep := *r.Report
		c.Report = &rep
	}
	return &c
}

// Counts summarises the registry for the win condition and status views.
type Counts struct {
	Total         int `json:"total"`
	Online        int `json:"online"`
	RegularTotal  int `json:"regular_total"`
	RegularSolved int `json:"regular_solved"`
	NeedyTotal    int `json:"needy_total"`
	ActiveNeedy   int `json:"active_needy"`
}

// AllRegularSolved reports whether at least one Regular module counts and
// every counted Regular module is solved.
func (c Counts) AllRegularSolved() bool {
	return c.RegularTotal > 0 && c.RegularSolved == c.RegularTotal
}
