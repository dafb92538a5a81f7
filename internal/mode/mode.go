// Package mode moves the control-surface position between quadrants of the
// engine's XY plane. Each change is announced on MIDI: a sweep note when the
// change starts, and the new mode's note half a sweep later, when positions
// begin to land in the new quadrant.
package mode

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chase3718/gesturebridge/internal/eme"
	"github.com/chase3718/gesturebridge/internal/param"
	"github.com/chase3718/gesturebridge/internal/request"
	"github.com/chase3718/gesturebridge/internal/timeutil"
)

// Mode selects one quadrant of the surface.
type Mode uint8

const (
	A Mode = iota // top-left
	B             // top-right
	C             // bottom-left
	count
)

const (
	// Channel carries every mode note.
	Channel = 0
	// SweepNote starts each change.
	SweepNote = 16

	SweepTime   = time.Second
	MinInterval = 20 * time.Second
	MaxInterval = 45 * time.Second
)

var names = [count]string{"A", "B", "C"}

func (m Mode) String() string {
	if m >= count {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return names[m]
}

// Parse reads "A", "B" or "C", ignoring case.
func Parse(s string) (Mode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q, want A, B or C", s)
}

// Bounds is the surface rectangle positions map into.
func (m Mode) Bounds() eme.Bounds {
	switch m {
	case B:
		return eme.Bounds{X: 0, Y: 0.5, W: 1, H: 0.5}
	case C:
		return eme.Bounds{X: -1, Y: 0, W: 1, H: 0.5}
	}
	return eme.Bounds{X: -1, Y: 0.5, W: 1, H: 0.5}
}

// Note is the MIDI note announcing m.
func (m Mode) Note() uint8 { return uint8(m) }

var _ param.Hook = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, for tests.
func WithClock(c timeutil.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger for mode changes.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithRand sets the source used to pick the next mode and interval.
func WithRand(r *rand.Rand) Option {
	return func(ctl *Controller) { ctl.rng = r }
}

// Static keeps the initial mode for the whole run.
func Static() Option {
	return func(ctl *Controller) { ctl.auto = false }
}

// Controller changes mode at random intervals. It implements param.Hook and
// runs on the engine goroutine; Current is safe from anywhere.
type Controller struct {
	clock  timeutil.Clock
	logger *slog.Logger
	rng    *rand.Rand
	auto   bool

	current  atomic.Uint32
	previous Mode

	lastChange time.Time
	interval   time.Duration

	sweeping   bool
	switched   bool
	sweepStart time.Time

	// note-offs due on the next step
	release []param.Delta
}

// New returns a controller starting in initial.
func New(initial Mode, opts ...Option) (*Controller, error) {
	if initial >= count {
		return nil, fmt.Errorf("mode: invalid initial mode %d", initial)
	}
	c := &Controller{
		clock:    timeutil.RealClock{},
		logger:   slog.Default(),
		auto:     true,
		previous: initial,
		interval: MaxInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.current.Store(uint32(initial))
	return c, nil
}

// Current returns the active mode.
func (c *Controller) Current() Mode { return Mode(c.current.Load()) }

// Step advances the change schedule. It returns the notes to send and asks
// for a resend once positions move to a new quadrant.
func (c *Controller) Step() ([]param.Delta, bool) {
	now := c.clock.Now()
	if c.lastChange.IsZero() {
		c.lastChange = now
	}

	out := c.release
	c.release = nil

	if c.auto && !c.sweeping && now.Sub(c.lastChange) >= c.interval {
		c.sweeping, c.switched, c.sweepStart = true, false, now
		out = append(out, note(SweepNote, true))
		c.logger.Debug("mode: sweep started", "mode", c.Current())
	}
	if !c.sweeping {
		return out, false
	}

	resend := false
	elapsed := now.Sub(c.sweepStart)
	if !c.switched && elapsed >= SweepTime/2 {
		next := c.switchMode(now)
		out = append(out, note(next.Note(), true))
		c.release = append(c.release, note(next.Note(), false), note(SweepNote, false))
		c.switched, resend = true, true
	}
	if elapsed >= SweepTime {
		c.sweeping = false
	}
	return out, resend
}

// Decorate attaches the active quadrant to position requests.
func (c *Controller) Decorate(req *request.Request) {
	if _, ok := req.Payload[eme.KeyPositionX]; ok {
		req.Payload[eme.KeyBounds] = c.Current().Bounds()
	}
}

// switchMode picks a mode other than the current and previous ones.
func (c *Controller) switchMode(now time.Time) Mode {
	cur := c.Current()
	var candidates []Mode
	for m := A; m < count; m++ {
		if m != cur && m != c.previous {
			candidates = append(candidates, m)
		}
	}
	next := candidates[c.rng.IntN(len(candidates))]
	c.previous = cur
	c.current.Store(uint32(next))

	span := int64(MaxInterval - MinInterval)
	c.interval = MinInterval + time.Duration(c.rng.Int64N(span+1))
	c.lastChange = now

	c.logger.Info("mode: changed", "mode", next, "previous", cur, "next_in", c.interval)
	return next
}

func note(n uint8, on bool) param.Delta {
	v := 0.0
	if on {
		v = 1
	}
	return param.Delta{
		ID:          fmt.Sprintf("mode.note%d", n),
		Value:       v,
		Destination: param.NoteDest(Channel, n),
	}
}
