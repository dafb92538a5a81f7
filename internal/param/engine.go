package param

import (
	"errors"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/chase3718/gesturebridge/internal/gesture"
	"github.com/chase3718/gesturebridge/internal/request"
)

// snapEpsilon is the distance below which current jumps to target.
const snapEpsilon = 1e-9

// FrameSource yields the latest gesture frame without blocking.
type FrameSource interface {
	Read() (gesture.Frame, bool)
}

// Sink is the producer side of a bounded dispatch queue.
type Sink[T any] interface {
	TryPush(T) bool
}

// Hook extends the engine tick. Both methods run on the engine goroutine.
type Hook interface {
	// Step runs once per tick before dispatch. It may return MIDI deltas to
	// queue, in order, and ask for every address group to be resent.
	Step() (deltas []Delta, resend bool)
	// Decorate may add keys to an address request before it is queued.
	Decorate(req *request.Request)
}

// EngineStats is a snapshot of the engine counters.
type EngineStats struct {
	Ticks         uint64
	FramesApplied uint64
	Enqueued      uint64
	Dropped       uint64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger for queue saturation reports.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithHook installs h. A hook needs a MIDI queue.
func WithHook(h Hook) EngineOption {
	return func(e *Engine) { e.hook = h }
}

// Engine advances every parameter one smoothing step per Tick and pushes
// the ones that moved past their threshold to the dispatch queues.
type Engine struct {
	store  *Store
	frames FrameSource
	midiQ  Sink[Delta]
	reqQ   Sink[request.Request]
	logger *slog.Logger
	hook   Hook

	force atomic.Bool

	// hook deltas not yet accepted by the MIDI queue
	pending []Delta

	// address parameters grouped by path, in table order
	paths  []string
	groups map[string][]*Parameter

	ticks    atomic.Uint64
	applied  atomic.Uint64
	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// NewEngine builds an engine over store. frames may be nil when targets are
// only set through the store. A queue may be nil only if no parameter
// dispatches to it.
func NewEngine(store *Store, frames FrameSource, midiQ Sink[Delta], reqQ Sink[request.Request], opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("param engine: nil store")
	}
	e := &Engine{
		store:  store,
		frames: frames,
		midiQ:  midiQ,
		reqQ:   reqQ,
		logger: slog.Default(),
		groups: make(map[string][]*Parameter),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.hook != nil && midiQ == nil {
		return nil, errors.New("param engine: a hook needs a midi queue")
	}
	for _, p := range store.params {
		switch p.dest.Kind {
		case DestMIDI:
			if midiQ == nil {
				return nil, errors.New("param engine: midi parameters need a midi queue")
			}
		case DestAddress:
			if reqQ == nil {
				return nil, errors.New("param engine: address parameters need a request queue")
			}
			if _, ok := e.groups[p.dest.Path]; !ok {
				e.paths = append(e.paths, p.dest.Path)
			}
			e.groups[p.dest.Path] = append(e.groups[p.dest.Path], p)
		}
	}

	// everything goes out once on the first tick
	e.force.Store(true)
	return e, nil
}

// ForceResend marks every parameter dirty on the next tick. Safe from any
// goroutine.
func (e *Engine) ForceResend() { e.force.Store(true) }

// Stats returns the current counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Ticks:         e.ticks.Load(),
		FramesApplied: e.applied.Load(),
		Enqueued:      e.enqueued.Load(),
		Dropped:       e.dropped.Load(),
	}
}

// Tick is the engine's timer job. It must only run on one goroutine.
func (e *Engine) Tick() error {
	e.ticks.Add(1)

	if e.frames != nil {
		if fr, ok := e.frames.Read(); ok {
			for _, p := range e.store.params {
				if p.mapping.Driven() {
					p.setTarget(p.mapping.Apply(&fr))
				}
			}
			e.applied.Add(1)
		}
	}

	force := e.force.Swap(false)
	for _, p := range e.store.params {
		cur := step(p.Current(), p.Target(), p.coeff)
		p.setCurrent(cur)
		if force || math.Abs(cur-p.lastSent) > p.threshold {
			p.dirty = true
		}
	}

	if e.hook != nil {
		extra, resend := e.hook.Step()
		e.pending = append(e.pending, extra...)
		if resend {
			for _, path := range e.paths {
				for _, p := range e.groups[path] {
					p.dirty = true
				}
			}
		}
		e.flushPending()
	}

	for _, p := range e.store.params {
		if !p.dirty || p.dest.Kind != DestMIDI {
			continue
		}
		cur := p.Current()
		if !e.midiQ.TryPush(Delta{ID: p.id, Value: cur, Destination: p.dest}) {
			e.dropped.Add(1)
			e.logger.Debug("param: midi queue full, retrying next tick", "param", p.id)
			continue
		}
		p.dirty = false
		p.lastSent = cur
		e.enqueued.Add(1)
	}

	for _, path := range e.paths {
		group := e.groups[path]
		if !anyDirty(group) {
			continue
		}
		// the whole group goes out so the receiver always gets a complete payload
		values := make([]float64, len(group))
		payload := make(map[string]any, len(group))
		for i, p := range group {
			values[i] = p.Current()
			payload[p.dest.Field] = values[i]
		}
		req := request.New(path, payload)
		if e.hook != nil {
			e.hook.Decorate(&req)
		}
		if !e.reqQ.TryPush(req) {
			e.dropped.Add(1)
			e.logger.Debug("param: request queue full, retrying next tick", "path", path)
			continue
		}
		for i, p := range group {
			p.dirty = false
			p.lastSent = values[i]
		}
		e.enqueued.Add(1)
	}
	return nil
}

// flushPending queues hook deltas in order, stopping at the first refusal.
func (e *Engine) flushPending() {
	for len(e.pending) > 0 {
		if !e.midiQ.TryPush(e.pending[0]) {
			e.dropped.Add(1)
			e.logger.Debug("param: midi queue full, hook deltas wait", "pending", len(e.pending))
			return
		}
		e.pending = e.pending[1:]
		e.enqueued.Add(1)
	}
	e.pending = nil
}

func step(cur, target, c float64) float64 {
	cur += c * (target - cur)
	if math.Abs(target-cur) < snapEpsilon {
		return target
	}
	return cur
}

func anyDirty(ps []*Parameter) bool {
	for _, p := range ps {
		if p.dirty {
			return true
		}
	}
	return false
}
