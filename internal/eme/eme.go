// Package eme encodes control-surface requests for the music engine's
// real-time request endpoint: a JSON object carried as the single string
// argument of an OSC message.
package eme

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hypebeast/go-osc/osc"

	"github.com/chase3718/gesturebridge/internal/request"
)

const (
	// DefaultAddress is the OSC address the engine listens on.
	DefaultAddress = "/127.0.0.1/rt_requests"
	// DefaultArrangement is requested once at startup.
	DefaultArrangement = "MAESTRO"
)

// Payload keys understood by Serialize.
const (
	KeyArrangement = "arrangement"
	KeyPlayback    = "playback"
	KeyPositionX   = "position.x"
	KeyPositionY   = "position.y"

	// KeyBounds optionally carries the Bounds a position is mapped into.
	// It is consumed by the encoder and never sent.
	KeyBounds = "position.bounds"
)

const (
	PlaybackStart = "start"
	PlaybackStop  = "stop"
)

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid control-surface request")

// Bounds is a rectangle of the engine's XY surface. A position in [0,1]²
// maps to X..X+W horizontally and Y..Y+H vertically.
type Bounds struct {
	X, Y, W, H float64
}

// FullSurface is the whole surface: x in [-1,1], y in [0,1].
var FullSurface = Bounds{X: -1, Y: 0, W: 2, H: 1}

// Map places a unit position inside b.
func (b Bounds) Map(x, y float64) (float64, float64) {
	return b.X + x*b.W, b.Y + y*b.H
}

// Valid reports whether b is non-empty and lies on the surface.
func (b Bounds) Valid() bool {
	const eps = 1e-9
	return b.W > 0 && b.H > 0 &&
		b.X >= -1-eps && b.X+b.W <= 1+eps &&
		b.Y >= -eps && b.Y+b.H <= 1+eps
}

type position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type message struct {
	Arrangement string    `json:"arrangement,omitempty"`
	Playback    string    `json:"playback,omitempty"`
	Position    *position `json:"position,omitempty"`
}

// Serialize validates req and returns the encoded OSC packet.
func Serialize(req request.Request) ([]byte, error) {
	body, err := JSON(req)
	if err != nil {
		return nil, err
	}
	return osc.NewMessage(req.Address, string(body)).MarshalBinary()
}

// JSON validates req and returns only the JSON body.
func JSON(req request.Request) ([]byte, error) {
	if !strings.HasPrefix(req.Address, "/") {
		return nil, fmt.Errorf("%w: address %q must start with /", ErrInvalidRequest, req.Address)
	}
	m, err := build(req.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func build(payload map[string]any) (message, error) {
	var m message
	if len(payload) == 0 {
		return m, fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	var x, y *float64
	bounds := FullSurface
	hasBounds := false
	for _, k := range keys {
		v := payload[k]
		switch k {
		case KeyArrangement:
			s, ok := v.(string)
			if !ok || strings.TrimSpace(s) == "" {
				errs = append(errs, fmt.Errorf("%w: %s must be a non-empty string, got %v", ErrInvalidRequest, k, v))
				continue
			}
			m.Arrangement = s
		case KeyPlayback:
			s, _ := v.(string)
			if s != PlaybackStart && s != PlaybackStop {
				errs = append(errs, fmt.Errorf("%w: %s must be %q or %q, got %v", ErrInvalidRequest, k, PlaybackStart, PlaybackStop, v))
				continue
			}
			m.Playback = s
		case KeyPositionX, KeyPositionY:
			f, ok := unit(v)
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s must be a number in [0,1], got %v", ErrInvalidRequest, k, v))
				continue
			}
			if k == KeyPositionX {
				x = &f
			} else {
				y = &f
			}
		case KeyBounds:
			b, ok := v.(Bounds)
			if !ok || !b.Valid() {
				errs = append(errs, fmt.Errorf("%w: %s must be Bounds on the surface, got %v", ErrInvalidRequest, k, v))
				continue
			}
			bounds, hasBounds = b, true
		default:
			errs = append(errs, fmt.Errorf("%w: unknown key %q", ErrInvalidRequest, k))
		}
	}
	if (x == nil) != (y == nil) {
		errs = append(errs, fmt.Errorf("%w: position needs both %s and %s", ErrInvalidRequest, KeyPositionX, KeyPositionY))
	}
	if hasBounds && x == nil && y == nil {
		errs = append(errs, fmt.Errorf("%w: %s without a position", ErrInvalidRequest, KeyBounds))
	}
	if err := errors.Join(errs...); err != nil {
		return message{}, err
	}
	if x != nil && y != nil {
		px, py := bounds.Map(*x, *y)
		m.Position = &position{X: px, Y: py}
	}
	return m, nil
}

func unit(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if f != f || f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

// Playback builds a request that starts or stops the engine.
func Playback(address string, start bool) request.Request {
	state := PlaybackStop
	if start {
		state = PlaybackStart
	}
	return request.New(address, map[string]any{KeyPlayback: state})
}

// Arrangement builds a request that switches the engine to the named
// arrangement.
func Arrangement(address, name string) request.Request {
	return request.New(address, map[string]any{KeyArrangement: name})
}
