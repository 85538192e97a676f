package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/nerrad567/defuse-core/internal/game"
)

func init() {
	// Colour even when piped; NO_COLOR and --no-color turn it off.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// printer writes game events to the terminal. Hook callbacks run on the
// game loop, so every write takes the lock.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) line(c *color.Color, format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Fprintf(p.out, format+"\n", a...) //nolint:errcheck // terminal output
}

func (p *printer) hooks() game.Hooks {
	return game.Hooks{
		OnStateChange: func(old, new game.State) {
			c := cyan
			switch new {
			case game.StateExploded:
				c = red
			case game.StateDefused, game.StateVictory:
				c = green
			}
			p.line(c, "state    %s -> %s", old, new)
		},
		OnStrikeChange: func(strikes, maxStrikes int) {
			p.line(red, "strike   %d/%d", strikes, maxStrikes)
		},
		OnModuleSolved: func(solved, total int) {
			p.line(green, "solved   %d/%d", solved, total)
		},
		OnTimeUpdate: func(remaining time.Duration) {
			secs := int(remaining / time.Second)
			if secs <= 10 || secs%30 == 0 {
				p.line(yellow, "time     %s", clockFace(remaining))
			}
		},
	}
}

func (p *printer) info(format string, a ...any) {
	p.line(faint, format, a...)
}

func (p *printer) summary(snap game.Snapshot) {
	c := red
	if snap.State == game.StateDefused || snap.State == game.StateVictory {
		c = green
	}
	p.line(c, "\n%s", upper(snap.State.String()))

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "  serial     %s\n", snap.Serial)
	fmt.Fprintf(p.out, "  remaining  %s\n", clockFace(snap.Remaining()))
	fmt.Fprintf(p.out, "  strikes    %d/%d\n", snap.Strikes, snap.MaxStrikes)
	fmt.Fprintf(p.out, "  solved     %d/%d\n", snap.Counts.RegularSolved, snap.Counts.RegularTotal)
	if snap.Stats.NeedyActivations > 0 {
		fmt.Fprintf(p.out, "  needy      %d activations\n", snap.Stats.NeedyActivations)
	}
}

// clockFace renders a duration the way the timer display shows it.
func clockFace(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
