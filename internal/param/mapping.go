package param

import (
	"fmt"
	"math"
	"strings"

	"github.com/chase3718/gesturebridge/internal/gesture"
)

// Combine reduces the source fields of a parameter to one value.
type Combine string

const (
	CombineMean       Combine = "mean"
	CombineMin        Combine = "min"
	CombineMax        Combine = "max"
	CombineProduct    Combine = "product"
	CombineDifference Combine = "difference" // |first - rest|
)

// Curve shapes the normalized value before it becomes the target.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveSine        Curve = "sine"
	CurveGentleUnder Curve = "gentle_under"
	CurveGentleOver  Curve = "gentle_over"
	CurveStrongUnder Curve = "strong_under"
	CurveStrongOver  Curve = "strong_over"
)

// Mapping turns a gesture frame into one parameter target:
//
//	combine(sources) -> remap range to [0,1] -> clamp -> invert -> curve -> clamp
type Mapping struct {
	sources []gesture.Field
	combine Combine
	lo, hi  float64
	invert  bool
	curve   Curve
}

func newMapping(s Spec) (Mapping, error) {
	m := Mapping{
		combine: s.Combine,
		lo:      0,
		hi:      1,
		invert:  s.Invert,
		curve:   s.Curve,
	}
	if m.combine == "" {
		m.combine = CombineMean
	}
	if m.curve == "" {
		m.curve = CurveLinear
	}

	var errs []string
	for _, name := range s.SourceFields {
		f, err := gesture.ParseField(name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		m.sources = append(m.sources, f)
	}
	if len(errs) > 0 {
		return Mapping{}, fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(errs, "; "))
	}

	switch m.combine {
	case CombineMean, CombineMin, CombineMax, CombineProduct, CombineDifference:
	default:
		return Mapping{}, fmt.Errorf("unknown combine %q", m.combine)
	}
	switch m.curve {
	case CurveLinear, CurveSine, CurveGentleUnder, CurveGentleOver, CurveStrongUnder, CurveStrongOver:
	default:
		return Mapping{}, fmt.Errorf("unknown curve %q", m.curve)
	}

	switch len(s.Range) {
	case 0:
	case 2:
		m.lo, m.hi = s.Range[0], s.Range[1]
		if math.IsNaN(m.lo) || math.IsNaN(m.hi) || math.IsInf(m.lo, 0) || math.IsInf(m.hi, 0) {
			return Mapping{}, fmt.Errorf("range %v is not finite", s.Range)
		}
	default:
		return Mapping{}, fmt.Errorf("range needs exactly two values, got %d", len(s.Range))
	}
	return m, nil
}

// Driven reports whether the mapping reads any frame field. Parameters that
// are not driven only change through Store.SetTarget.
func (m Mapping) Driven() bool { return len(m.sources) > 0 }

// Apply computes the target for fr. The result is always in [0,1].
func (m Mapping) Apply(fr *gesture.Frame) float64 {
	if len(m.sources) == 0 {
		return 0
	}

	v := fr.Get(m.sources[0])
	rest := m.sources[1:]
	switch m.combine {
	case CombineMean:
		for _, f := range rest {
			v += fr.Get(f)
		}
		v /= float64(len(m.sources))
	case CombineMin:
		for _, f := range rest {
			v = math.Min(v, fr.Get(f))
		}
	case CombineMax:
		for _, f := range rest {
			v = math.Max(v, fr.Get(f))
		}
	case CombineProduct:
		for _, f := range rest {
			v *= fr.Get(f)
		}
	case CombineDifference:
		for _, f := range rest {
			v -= fr.Get(f)
		}
		v = math.Abs(v)
	}

	v = gesture.Clamp01(normalize(v, m.lo, m.hi))
	if m.invert {
		v = 1 - v
	}
	return gesture.Clamp01(shape(m.curve, v))
}

// normalize maps v from [lo,hi] onto [0,1]. A reversed range flips the
// direction; an empty one yields 0.
func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

func shape(c Curve, x float64) float64 {
	switch c {
	case CurveSine:
		return (math.Cos(x*math.Pi+math.Pi) + 1) * 0.5
	case CurveGentleUnder:
		return 1 - math.Sin(math.Pi/2*(1-x))
	case CurveGentleOver:
		return math.Sin(math.Pi / 2 * x)
	case CurveStrongUnder:
		return x * x * x
	case CurveStrongOver:
		y := 1 - x
		return 1 - y*y*y
	}
	return x
}
