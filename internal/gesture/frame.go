// Package gesture holds the normalized hand-tracking snapshot and the
// single-slot channel that hands the latest one to the engine.
package gesture

import (
	"fmt"
	"strings"
	"time"
)

// Field indexes one normalized value of a Frame.
type Field int

const (
	FirstX Field = iota
	FirstY
	FirstZ
	FirstOpenness
	FirstProximity
	FirstPinch
	FirstVelocity
	SecondX
	SecondY
	SecondZ
	SecondOpenness
	SecondProximity
	SecondPinch
	SecondVelocity

	NumFields = int(SecondVelocity) + 1
)

// Hands and per-hand measurements, in Field order.
var (
	hands    = [...]string{"first", "second"}
	measures = [...]string{"x", "y", "z", "openness", "proximity", "pinch", "velocity"}
)

// String returns the dotted name, e.g. "first.pinch".
func (f Field) String() string {
	if f < 0 || int(f) >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return hands[int(f)/len(measures)] + "." + measures[int(f)%len(measures)]
}

// ParseField resolves a dotted field name. Matching ignores case.
func ParseField(name string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(key, ".") {
		return 0, fmt.Errorf("gesture field %q: want <hand>.<measure>", name)
	}
	for _, f := range Fields() {
		if f.String() == key {
			return f, nil
		}
	}
	return 0, fmt.Errorf("gesture field %q: unknown", name)
}

// Fields lists every field in index order.
func Fields() []Field {
	out := make([]Field, NumFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Frame is a full-state snapshot of both hands. Every value is normalized to
// [0,1]; a hand that is not tracked reports zeros.
type Frame struct {
	Values    [NumFields]float64
	Timestamp time.Time
	Seq       uint64 // assigned by Channel.Publish
}

// Get returns the value of f, or 0 for an out-of-range field.
func (fr *Frame) Get(f Field) float64 {
	if f < 0 || int(f) >= NumFields {
		return 0
	}
	return fr.Values[f]
}

// Set stores v for f, clamped to [0,1].
func (fr *Frame) Set(f Field, v float64) {
	if f < 0 || int(f) >= NumFields {
		return
	}
	fr.Values[f] = Clamp01(v)
}

// Clamp01 limits v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
