package param

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ccSpec(id string, c float64) Spec {
	return Spec{ID: id, Coefficient: c, Destination: CC(0, 1)}
}

func TestNewStoreRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{name: "zero coefficient", spec: ccSpec("a", 0), want: ErrInvalidCoefficient},
		{name: "coefficient above one", spec: ccSpec("a", 1.5), want: ErrInvalidCoefficient},
		{name: "negative coefficient", spec: ccSpec("a", -0.1), want: ErrInvalidCoefficient},
		{name: "nan coefficient", spec: ccSpec("a", math.NaN()), want: ErrInvalidCoefficient},
		{name: "both smoothing forms", spec: Spec{ID: "a", Coefficient: 0.5, SmoothingTime: 0.1, Destination: CC(0, 1)}, want: ErrInvalidCoefficient},
		{name: "smoothing time without rate", spec: Spec{ID: "a", SmoothingTime: 0.1, Destination: CC(0, 1)}, want: ErrInvalidCoefficient},
		{name: "empty id", spec: ccSpec(" ", 0.5), want: ErrInvalidSpec},
		{name: "threshold too large", spec: Spec{ID: "a", Coefficient: 0.5, Threshold: 1, Destination: CC(0, 1)}, want: ErrInvalidSpec},
		{name: "initial out of range", spec: Spec{ID: "a", Coefficient: 0.5, Initial: 2, Destination: CC(0, 1)}, want: ErrInvalidSpec},
		{name: "unknown field", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC(0, 1), SourceFields: []string{"third.x"}}, want: ErrUnknownField},
		{name: "channel out of range", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC(16, 1)}, want: ErrInvalidDestination},
		{name: "cc index out of range", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC(0, 128)}, want: ErrInvalidDestination},
		{name: "cc14 index out of range", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC14(0, 32)}, want: ErrInvalidDestination},
		{name: "missing kind", spec: Spec{ID: "a", Coefficient: 0.5}, want: ErrInvalidDestination},
		{name: "address without slash", spec: Spec{ID: "a", Coefficient: 0.5, Destination: Address("rt", "position.x")}, want: ErrInvalidDestination},
		{name: "address without field", spec: Spec{ID: "a", Coefficient: 0.5, Destination: Address("/rt", "")}, want: ErrInvalidDestination},
		{name: "bad combine", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC(0, 1), Combine: "median"}, want: ErrInvalidSpec},
		{name: "bad curve", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC(0, 1), Curve: "zigzag"}, want: ErrInvalidSpec},
		{name: "bad range", spec: Spec{ID: "a", Coefficient: 0.5, Destination: CC(0, 1), Range: []float64{1}}, want: ErrInvalidSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore([]Spec{tt.spec})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewStoreJoinsErrors(t *testing.T) {
	_, err := NewStore([]Spec{
		ccSpec("a", 0.5),
		ccSpec("a", 0.5),
		ccSpec("b", 2),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.ErrorIs(t, err, ErrInvalidCoefficient)
}

func TestNewStoreRejectsSharedAddressKey(t *testing.T) {
	_, err := NewStore([]Spec{
		{ID: "left", Coefficient: 0.5, Destination: Address("/rt", "position.x"), Initial: 1},
		{ID: "right", Coefficient: 0.5, Destination: Address("/rt", "position.x")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateDestination)
	assert.Contains(t, err.Error(), `"left"`)

	// same field on another path, or another field on the same path, is fine
	_, err = NewStore([]Spec{
		{ID: "x", Coefficient: 0.5, Destination: Address("/rt", "position.x")},
		{ID: "y", Coefficient: 0.5, Destination: Address("/rt", "position.y")},
		{ID: "other-x", Coefficient: 0.5, Destination: Address("/other", "position.x")},
	})
	assert.NoError(t, err)
}

func TestSmoothingTimeResolution(t *testing.T) {
	s, err := NewStore([]Spec{
		{ID: "move", SmoothingTime: 0.05, Destination: CC14(0, 0)},
	}, WithUpdateRate(110))
	require.NoError(t, err)

	p, ok := s.Get("move")
	require.True(t, ok)
	assert.InDelta(t, 1-math.Exp(-1/(0.05*110)), p.Coefficient(), 1e-12)
	assert.Equal(t, DefaultThreshold, p.Threshold())

	assert.Equal(t, 1.0, CoefficientFor(0, 110))
	assert.InDelta(t, 0.0952, CoefficientFor(0.1, 100), 1e-4)
}

func TestTargetsAreClamped(t *testing.T) {
	s, err := NewStore([]Spec{
		{ID: "a", Coefficient: 0.5, Destination: CC(0, 1), Initial: 0.25},
		ccSpec("b", 0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	cur, ok := s.Current("a")
	require.True(t, ok)
	assert.Equal(t, 0.25, cur)

	require.NoError(t, s.SetTarget("a", 3))
	require.NoError(t, s.SetTarget("b", -1))
	ta, _ := s.Target("a")
	tb, _ := s.Target("b")
	assert.Equal(t, 1.0, ta)
	assert.Equal(t, 0.0, tb)

	assert.ErrorIs(t, s.SetTarget("missing", 0.5), ErrUnknownParameter)
	_, ok = s.Target("missing")
	assert.False(t, ok)

	assert.Equal(t, []Value{
		{ID: "a", Current: 0.25, Target: 1},
		{ID: "b", Current: 0, Target: 0},
	}, s.Snapshot())
}
