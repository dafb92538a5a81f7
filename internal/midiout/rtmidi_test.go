package midiout

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOut struct {
	name    string
	opened  bool
	openErr error
	sendErr error
	sent    [][]byte
}

func (o *fakeOut) Open() error {
	if o.openErr != nil {
		return o.openErr
	}
	o.opened = true
	return nil
}

func (o *fakeOut) Close() error   { o.opened = false; return nil }
func (o *fakeOut) String() string { return o.name }

func (o *fakeOut) Send(b []byte) error {
	if o.sendErr != nil {
		return o.sendErr
	}
	o.sent = append(o.sent, append([]byte(nil), b...))
	return nil
}

func TestPickOutput(t *testing.T) {
	tests := []struct {
		name      string
		names     []string
		preferred []string
		want      string
		ok        bool
	}{
		{name: "preferred wins", names: []string{"IAC Bus 1", "Ableton In", "loopMIDI"}, preferred: []string{"loopmidi", "ableton"}, want: "loopMIDI", ok: true},
		{name: "pattern order", names: []string{"Ableton In", "loopMIDI"}, preferred: []string{"ableton", "loopmidi"}, want: "Ableton In", ok: true},
		{name: "single fallback", names: []string{"Midi Through Port-0", "USB MIDI"}, want: "USB MIDI", ok: true},
		{name: "ambiguous", names: []string{"A", "B"}},
		{name: "only excluded", names: []string{"Midi Through Port-0", "Dummy"}},
		{name: "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickOutput(tt.names, tt.preferred, DefaultExcludedPatterns)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newFakePort(outs []*fakeOut, opts ...RTMIDIOption) (*RTMIDIPort, *time.Time) {
	now := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	list := func() ([]outPort, error) {
		ports := make([]outPort, len(outs))
		for i, o := range outs {
			ports[i] = o
		}
		return ports, nil
	}
	p := newRTMIDIPort(list, nil, append([]RTMIDIOption{WithPortLogger(quiet)}, opts...)...)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestRTMIDIPortConnectsLazily(t *testing.T) {
	synth := &fakeOut{name: "Synth"}
	p, _ := newFakePort([]*fakeOut{{name: "Midi Through"}, synth}, WithPreferred("synth"))

	_, ok := p.Connected()
	assert.False(t, ok)

	require.NoError(t, p.Send(Message{Kind: ControlChange14, Index: 0, Value: 16383}))
	name, ok := p.Connected()
	assert.True(t, ok)
	assert.Equal(t, "Synth", name)
	assert.True(t, synth.opened)
	assert.Equal(t, [][]byte{{0xB0, 0x20, 0x7F}, {0xB0, 0x00, 0x7F}}, synth.sent)

	require.NoError(t, p.Close())
	assert.False(t, synth.opened)
}

func TestRTMIDIPortReconnectsAfterFailure(t *testing.T) {
	synth := &fakeOut{name: "Synth"}
	p, _ := newFakePort([]*fakeOut{synth}, WithRescanInterval(time.Second))
	msg := Message{Kind: ControlChange, Index: 1, Value: 1}

	require.NoError(t, p.Send(msg))

	synth.sendErr = errors.New("device gone")
	assert.Error(t, p.Send(msg))
	_, ok := p.Connected()
	assert.False(t, ok)

	synth.sendErr = nil
	require.NoError(t, p.Send(msg), "first send after a loss rescans immediately")
	assert.Len(t, synth.sent, 2)
}

func TestRTMIDIPortThrottlesRescans(t *testing.T) {
	var outs []*fakeOut
	p, now := newFakePort(outs, WithRescanInterval(time.Second))
	msg := Message{Kind: ControlChange, Index: 1, Value: 1}

	assert.ErrorIs(t, p.Send(msg), ErrNoOutput)

	calls := 0
	p.list = func() ([]outPort, error) {
		calls++
		return []outPort{&fakeOut{name: "Late Synth"}}, nil
	}
	*now = now.Add(500 * time.Millisecond)
	assert.ErrorIs(t, p.Send(msg), ErrNoOutput)
	assert.Zero(t, calls, "no rescan inside the interval")

	*now = now.Add(600 * time.Millisecond)
	require.NoError(t, p.Send(msg))
	assert.Equal(t, 1, calls)
}

func TestRTMIDIPortOpenFailure(t *testing.T) {
	p, _ := newFakePort([]*fakeOut{{name: "Synth", openErr: errors.New("busy")}})
	err := p.Send(Message{Kind: ControlChange, Index: 1, Value: 1})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoOutput)
}
