package midiout

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// -------------------- Port selection --------------------

// DefaultExcludedPatterns are virtual/system ports that are never
// auto-connected.
var DefaultExcludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

const defaultRescanInterval = time.Second

// ErrNoOutput is returned by Send while no output port is connected.
var ErrNoOutput = errors.New("no midi output connected")

// outPort is the part of a driver output the port uses.
type outPort interface {
	Open() error
	Close() error
	String() string
	Send([]byte) error
}

// RTMIDIOption configures an RTMIDIPort.
type RTMIDIOption func(*RTMIDIPort)

// WithPreferred sets name substrings matched, in order, against available
// outputs. Matching ignores case.
func WithPreferred(patterns ...string) RTMIDIOption {
	return func(p *RTMIDIPort) { p.preferred = patterns }
}

// WithExcluded replaces DefaultExcludedPatterns.
func WithExcluded(patterns ...string) RTMIDIOption {
	return func(p *RTMIDIPort) { p.excluded = patterns }
}

// WithRescanInterval sets how often a disconnected port looks for outputs.
func WithRescanInterval(d time.Duration) RTMIDIOption {
	return func(p *RTMIDIPort) { p.rescan = d }
}

// WithPortLogger sets the port's logger.
func WithPortLogger(l *slog.Logger) RTMIDIOption {
	return func(p *RTMIDIPort) { p.logger = l }
}

// -------------------- RTMIDIPort --------------------

// RTMIDIPort writes to a native MIDI output through rtmidi. It connects to
// the preferred output lazily, drops the connection on a write error and
// reconnects on a later Send, at most once per rescan interval.
type RTMIDIPort struct {
	mu           sync.Mutex
	list         func() ([]outPort, error)
	closeDriver  func() error
	out          outPort
	selectedName string
	lastRescanAt time.Time

	preferred []string
	excluded  []string
	rescan    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRTMIDIPort initialises the rtmidi driver. Call Close when done.
func NewRTMIDIPort(opts ...RTMIDIOption) (*RTMIDIPort, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	list := func() ([]outPort, error) {
		outs, err := drv.Outs()
		if err != nil {
			return nil, err
		}
		ports := make([]outPort, len(outs))
		for i, o := range outs {
			ports[i] = o
		}
		return ports, nil
	}
	return newRTMIDIPort(list, drv.Close, opts...), nil
}

func newRTMIDIPort(list func() ([]outPort, error), closeDriver func() error, opts ...RTMIDIOption) *RTMIDIPort {
	p := &RTMIDIPort{
		list:        list,
		closeDriver: closeDriver,
		excluded:    DefaultExcludedPatterns,
		rescan:      defaultRescanInterval,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connected returns the name of the connected output, if any.
func (p *RTMIDIPort) Connected() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectedName, p.out != nil
}

// Send writes m, connecting first if needed.
func (p *RTMIDIPort) Send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	for _, raw := range m.Raw() {
		if err := p.out.Send(raw.Bytes()); err != nil {
			name := p.selectedName
			p.logger.Warn("midi: output lost", "device", name, "err", err)
			p.closeConn()
			p.lastRescanAt = time.Time{} // rescan on the next send
			return fmt.Errorf("send to %q: %w", name, err)
		}
	}
	return nil
}

// Close shuts the connection and the driver.
func (p *RTMIDIPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeConn()
	if p.closeDriver != nil {
		return p.closeDriver()
	}
	return nil
}

// -------------------- internal --------------------

func (p *RTMIDIPort) connect() error {
	now := p.now()
	if !p.lastRescanAt.IsZero() && now.Sub(p.lastRescanAt) < p.rescan {
		return ErrNoOutput
	}
	p.lastRescanAt = now

	outs, err := p.list()
	if err != nil {
		p.logger.Error("midi: list outputs failed", "err", err)
		return fmt.Errorf("list outputs: %w", err)
	}
	names := make([]string, 0, len(outs))
	for _, o := range outs {
		names = append(names, o.String())
	}
	cand, ok := pickOutput(names, p.preferred, p.excluded)
	if !ok {
		p.logger.Debug("midi: no suitable output", "available", strings.Join(names, ", "))
		return ErrNoOutput
	}

	var found outPort
	for _, o := range outs {
		if o.String() == cand {
			found = o
			break
		}
	}
	if err := found.Open(); err != nil {
		p.logger.Error("midi: connect failed", "device", cand, "err", err)
		return fmt.Errorf("open %q: %w", cand, err)
	}
	p.out = found
	p.selectedName = cand
	p.logger.Info("midi: connected", "device", cand)
	return nil
}

func (p *RTMIDIPort) closeConn() {
	if p.out != nil {
		_ = p.out.Close()
		p.out = nil
	}
	p.selectedName = ""
}

// pickOutput chooses the first name matching a preferred pattern, in
// pattern order. Without a match it falls back to the only remaining output.
func pickOutput(names, preferred, excluded []string) (string, bool) {
	var candidates []string
	for _, name := range names {
		skip := false
		for _, pat := range excluded {
			if containsCI(name, pat) {
				skip = true
				break
			}
		}
		if !skip {
			candidates = append(candidates, name)
		}
	}
	for _, pat := range preferred {
		for _, name := range candidates {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return "", false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
