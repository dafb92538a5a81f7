// Package param owns the smoothed parameter state: the table of parameters
// built at startup, the frame-to-target mappings, and the engine that
// interpolates every parameter each tick and hands changed values to the
// dispatch queues.
package param

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/chase3718/gesturebridge/internal/gesture"
)

// DefaultThreshold is the dispatch threshold ε used when a spec leaves it unset.
const DefaultThreshold = 0.001

var (
	ErrInvalidCoefficient = errors.New("invalid smoothing coefficient")
	ErrDuplicateID        = errors.New("duplicate parameter id")
	ErrUnknownField       = errors.New("unknown gesture field")
	ErrUnknownParameter   = errors.New("unknown parameter")
	ErrInvalidSpec        = errors.New("invalid parameter spec")

	// ErrDuplicateDestination is returned when two address parameters
	// write the same payload key of the same path.
	ErrDuplicateDestination = errors.New("duplicate address destination")
)

// Spec is one row of the parameter table.
type Spec struct {
	ID string `json:"id" yaml:"id"`

	// Exactly one of Coefficient (0 < c <= 1) or SmoothingTime (seconds,
	// resolved against the update rate) sets the smoothing.
	Coefficient   float64 `json:"coefficient,omitempty" yaml:"coefficient,omitempty"`
	SmoothingTime float64 `json:"smoothing_time,omitempty" yaml:"smoothing_time,omitempty"`

	Destination Destination `json:"destination" yaml:"destination"`

	SourceFields []string  `json:"source_fields,omitempty" yaml:"source_fields,omitempty"`
	Combine      Combine   `json:"combine,omitempty" yaml:"combine,omitempty"`
	Range        []float64 `json:"range,omitempty" yaml:"range,omitempty"`
	Invert       bool      `json:"invert,omitempty" yaml:"invert,omitempty"`
	Curve        Curve     `json:"curve,omitempty" yaml:"curve,omitempty"`

	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Initial   float64 `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// CoefficientFor converts a smoothing time in seconds into the per-tick
// one-pole coefficient at rateHz: the value covers ~63% of a step after
// seconds.
func CoefficientFor(seconds, rateHz float64) float64 {
	if seconds <= 0 || rateHz <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(seconds*rateHz))
}

// Parameter is one smoothed value. Target is written through atomic storage
// by any goroutine; current is advanced only by the engine.
type Parameter struct {
	id        string
	coeff     float64
	threshold float64
	dest      Destination
	mapping   Mapping

	target  atomic.Uint64 // math.Float64bits
	current atomic.Uint64 // math.Float64bits, engine writes only

	// engine goroutine only
	lastSent float64
	dirty    bool
}

func (p *Parameter) ID() string               { return p.id }
func (p *Parameter) Coefficient() float64     { return p.coeff }
func (p *Parameter) Threshold() float64       { return p.threshold }
func (p *Parameter) Destination() Destination { return p.dest }
func (p *Parameter) Target() float64          { return math.Float64frombits(p.target.Load()) }
func (p *Parameter) Current() float64         { return math.Float64frombits(p.current.Load()) }

func (p *Parameter) setTarget(v float64)  { p.target.Store(math.Float64bits(gesture.Clamp01(v))) }
func (p *Parameter) setCurrent(v float64) { p.current.Store(math.Float64bits(v)) }

// Value is a point-in-time reading of one parameter.
type Value struct {
	ID      string
	Current float64
	Target  float64
}

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	rateHz float64
}

// WithUpdateRate sets the engine rate used to resolve SmoothingTime.
func WithUpdateRate(hz float64) StoreOption {
	return func(c *storeConfig) { c.rateHz = hz }
}

// Store is the fixed, ordered set of parameters for a run.
type Store struct {
	params []*Parameter
	byID   map[string]int
}

// NewStore validates every spec and builds the store in table order. All
// problems are reported at once, joined.
func NewStore(specs []Spec, opts ...StoreOption) (*Store, error) {
	var cfg storeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store{byID: make(map[string]int, len(specs))}
	keys := make(map[string]string) // path#field -> owning id
	var errs []error
	for i, spec := range specs {
		p, err := newParameter(spec, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("parameter %d (%q): %w", i, spec.ID, err))
			continue
		}
		if _, dup := s.byID[p.id]; dup {
			errs = append(errs, fmt.Errorf("parameter %d (%q): %w", i, spec.ID, ErrDuplicateID))
			continue
		}
		if p.dest.Kind == DestAddress {
			key := p.dest.String()
			if owner, dup := keys[key]; dup {
				errs = append(errs, fmt.Errorf("parameter %d (%q): %w: %s already written by %q",
					i, spec.ID, ErrDuplicateDestination, key, owner))
				continue
			}
			keys[key] = p.id
		}
		s.byID[p.id] = len(s.params)
		s.params = append(s.params, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func newParameter(spec Spec, cfg storeConfig) (*Parameter, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidSpec)
	}

	c := spec.Coefficient
	switch {
	case spec.Coefficient != 0 && spec.SmoothingTime != 0:
		return nil, fmt.Errorf("%w: both coefficient and smoothing_time set", ErrInvalidCoefficient)
	case spec.SmoothingTime < 0:
		return nil, fmt.Errorf("%w: smoothing_time %v is negative", ErrInvalidCoefficient, spec.SmoothingTime)
	case spec.SmoothingTime > 0:
		if cfg.rateHz <= 0 {
			return nil, fmt.Errorf("%w: smoothing_time needs an update rate", ErrInvalidCoefficient)
		}
		c = CoefficientFor(spec.SmoothingTime, cfg.rateHz)
	}
	if !(c > 0 && c <= 1) {
		return nil, fmt.Errorf("%w: %v not in (0,1]", ErrInvalidCoefficient, c)
	}

	threshold := spec.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if !(threshold > 0 && threshold < 1) {
		return nil, fmt.Errorf("%w: threshold %v not in (0,1)", ErrInvalidSpec, spec.Threshold)
	}
	if !(spec.Initial >= 0 && spec.Initial <= 1) {
		return nil, fmt.Errorf("%w: initial %v not in [0,1]", ErrInvalidSpec, spec.Initial)
	}
	if err := spec.Destination.Validate(); err != nil {
		return nil, err
	}
	m, err := newMapping(spec)
	if err != nil {
		if errors.Is(err, ErrUnknownField) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	p := &Parameter{
		id:        id,
		coeff:     c,
		threshold: threshold,
		dest:      spec.Destination,
		mapping:   m,
		lastSent:  spec.Initial,
	}
	p.setTarget(spec.Initial)
	p.setCurrent(spec.Initial)
	return p, nil
}

// Len is the number of parameters.
func (s *Store) Len() int { return len(s.params) }

// Get looks a parameter up by id.
func (s *Store) Get(id string) (*Parameter, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.params[i], true
}

// SetTarget stores v, clamped to [0,1], as the target of id. Safe from any
// goroutine.
func (s *Store) SetTarget(id string, v float64) error {
	p, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, id)
	}
	p.setTarget(v)
	return nil
}

// Target returns the target of id.
func (s *Store) Target(id string) (float64, bool) {
	p, ok := s.Get(id)
	if !ok {
		return 0, false
	}
	return p.Target(), true
}

// Current returns the smoothed value of id as of the last engine tick.
func (s *Store) Current(id string) (float64, bool) {
	p, ok := s.Get(id)
	if !ok {
		return 0, false
	}
	return p.Current(), true
}

// Snapshot reads every parameter in table order.
func (s *Store) Snapshot() []Value {
	out := make([]Value, len(s.params))
	for i, p := range s.params {
		out[i] = Value{ID: p.id, Current: p.Current(), Target: p.Target()}
	}
	return out
}
