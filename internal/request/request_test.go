package request

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewCopiesPayloadAndAssignsID(t *testing.T) {
	payload := map[string]any{"playback": "start"}
	r := New("/127.0.0.1/rt_requests", payload)
	payload["playback"] = "stop"

	assert.Equal(t, "start", r.Payload["playback"])
	assert.Equal(t, "/127.0.0.1/rt_requests", r.Address)
	_, err := uuid.Parse(r.ID)
	assert.NoError(t, err)
	assert.False(t, r.Created.IsZero())

	other := New("/x", nil)
	assert.NotEqual(t, r.ID, other.ID)
}

func TestCheckValidityWindow(t *testing.T) {
	base := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)

	open := New("/a", nil, WithCreated(base))
	assert.NoError(t, open.Check(base.Add(1000*time.Hour)))

	ttl := New("/a", nil, WithCreated(base), WithTTL(time.Second))
	assert.Equal(t, base.Add(time.Second), ttl.NotAfter)
	assert.NoError(t, ttl.Check(base.Add(time.Second)))
	assert.ErrorIs(t, ttl.Check(base.Add(time.Second+time.Nanosecond)), ErrExpired)

	window := New("/a", nil, WithValidity(base.Add(time.Minute), base.Add(2*time.Minute)))
	assert.ErrorIs(t, window.Check(base), ErrNotYetValid)
	assert.NoError(t, window.Check(base.Add(90*time.Second)))
	assert.ErrorIs(t, window.Check(base.Add(3*time.Minute)), ErrExpired)
}
