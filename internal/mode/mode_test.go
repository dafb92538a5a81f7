package mode

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/gesturebridge/internal/eme"
	"github.com/chase3718/gesturebridge/internal/param"
	"github.com/chase3718/gesturebridge/internal/queue"
	"github.com/chase3718/gesturebridge/internal/request"
	"github.com/chase3718/gesturebridge/internal/timeutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newController(t *testing.T, initial Mode, opts ...Option) (*Controller, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, time.June, 1, 20, 0, 0, 0, time.UTC))
	opts = append([]Option{
		WithClock(clock),
		WithLogger(quiet),
		WithRand(rand.New(rand.NewPCG(7, 11))),
	}, opts...)
	c, err := New(initial, opts...)
	require.NoError(t, err)
	return c, clock
}

func TestParse(t *testing.T) {
	for _, m := range []Mode{A, B, C} {
		got, err := Parse(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := Parse(" b ")
	require.NoError(t, err)
	assert.Equal(t, B, got)

	_, err = Parse("D")
	assert.Error(t, err)
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestBoundsAreQuadrants(t *testing.T) {
	tests := []struct {
		mode           Mode
		x0, y0, x1, y1 float64
	}{
		{A, -1, 0.5, 0, 1},
		{B, 0, 0.5, 1, 1},
		{C, -1, 0, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			b := tt.mode.Bounds()
			require.True(t, b.Valid())
			x, y := b.Map(0, 0)
			assert.Equal(t, [2]float64{tt.x0, tt.y0}, [2]float64{x, y})
			x, y = b.Map(1, 1)
			assert.Equal(t, [2]float64{tt.x1, tt.y1}, [2]float64{x, y})
		})
	}
	assert.Equal(t, uint8(2), C.Note())
}

// change runs one full sweep and returns the new mode.
func change(t *testing.T, c *Controller, clock *timeutil.MockClock) Mode {
	t.Helper()
	before := c.Current()

	clock.Advance(MaxInterval)
	deltas, resend := c.Step()
	if diff := cmp.Diff([]param.Delta{note(SweepNote, true)}, deltas); diff != "" {
		t.Fatalf("sweep start (-want +got):\n%s", diff)
	}
	assert.False(t, resend)
	assert.Equal(t, before, c.Current(), "mode holds for the first half of the sweep")

	clock.Advance(SweepTime / 2)
	deltas, resend = c.Step()
	next := c.Current()
	require.NotEqual(t, before, next)
	assert.Equal(t, []param.Delta{note(next.Note(), true)}, deltas)
	assert.True(t, resend)

	deltas, resend = c.Step()
	assert.Equal(t, []param.Delta{note(next.Note(), false), note(SweepNote, false)}, deltas)
	assert.False(t, resend)

	clock.Advance(SweepTime / 2)
	deltas, _ = c.Step()
	assert.Empty(t, deltas)
	return next
}

func TestAutomaticChanges(t *testing.T) {
	c, clock := newController(t, A)

	deltas, resend := c.Step()
	assert.Empty(t, deltas)
	assert.False(t, resend)

	clock.Advance(MaxInterval - time.Millisecond)
	deltas, _ = c.Step()
	assert.Empty(t, deltas, "first change waits the full interval")

	first := change(t, c, clock)
	second := change(t, c, clock)
	third := change(t, c, clock)

	// never back to the mode just left
	assert.NotEqual(t, A, first)
	assert.NotContains(t, []Mode{A, first}, second)
	assert.NotContains(t, []Mode{first, second}, third)
	assert.Equal(t, A, third)
}

func TestIntervalWithinLimits(t *testing.T) {
	c, clock := newController(t, C)
	c.Step()
	for i := 0; i < 20; i++ {
		change(t, c, clock)
		assert.GreaterOrEqual(t, c.interval, MinInterval)
		assert.LessOrEqual(t, c.interval, MaxInterval)
	}
}

func TestStaticNeverChanges(t *testing.T) {
	c, clock := newController(t, B, Static())
	for i := 0; i < 120; i++ {
		deltas, resend := c.Step()
		assert.Empty(t, deltas)
		assert.False(t, resend)
		clock.Advance(time.Second)
	}
	assert.Equal(t, B, c.Current())
}

func TestDecorateOnlyPositions(t *testing.T) {
	c, _ := newController(t, B)

	pos := request.New("/rt", map[string]any{eme.KeyPositionX: 0.5, eme.KeyPositionY: 0.5})
	c.Decorate(&pos)
	assert.Equal(t, B.Bounds(), pos.Payload[eme.KeyBounds])

	play := eme.Playback("/rt", true)
	c.Decorate(&play)
	assert.NotContains(t, play.Payload, eme.KeyBounds)
}

func TestEnginePositionLandsInQuadrant(t *testing.T) {
	c, _ := newController(t, C)
	store, err := param.NewStore([]param.Spec{
		{ID: "x", Coefficient: 1, Destination: param.Address("/rt", eme.KeyPositionX), Initial: 1},
		{ID: "y", Coefficient: 1, Destination: param.Address("/rt", eme.KeyPositionY), Initial: 1},
	})
	require.NoError(t, err)
	reqs := queue.New[request.Request](4)
	engine, err := param.NewEngine(store, nil, queue.New[param.Delta](4), reqs,
		param.WithHook(c), param.WithEngineLogger(quiet))
	require.NoError(t, err)

	require.NoError(t, engine.Tick())
	req, ok := reqs.TryPop()
	require.True(t, ok)
	body, err := eme.JSON(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"position":{"x":0,"y":0.5}}`, string(body))
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(Mode(3))
	assert.Error(t, err)
}
