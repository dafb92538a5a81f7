package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/gesturebridge/internal/config"
	"github.com/chase3718/gesturebridge/internal/eme"
	"github.com/chase3718/gesturebridge/internal/mode"
	"github.com/chase3718/gesturebridge/internal/param"
)

func parse(t *testing.T, args ...string) (options, error) {
	t.Helper()
	fs := flag.NewFlagSet("gesturebridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args)
}

func TestParseFlagsDefaults(t *testing.T) {
	o, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, defaultUpdateRate, o.updateRate)
	assert.Equal(t, defaultMIDIRate, o.midiRate)
	assert.Equal(t, defaultOSCRate, o.oscRate)
	assert.Equal(t, eme.DefaultAddress, o.oscAddress)
	assert.Equal(t, "rtmidi", o.midiOut)
}

func TestParseFlagsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"midi faster than update", []string{"-midi-rate", "200"}},
		{"osc faster than update", []string{"-update-rate", "4"}},
		{"zero rate", []string{"-osc-rate", "0"}},
		{"empty queue", []string{"-midi-queue", "0"}},
		{"unknown output", []string{"-midi-out", "usb"}},
		{"relative address", []string{"-osc-address", "rt_requests"}},
		{"unknown dump format", []string{"-dump-config", "toml"}},
		{"unknown mode", []string{"-mode", "D"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestParseFlagsEqualRatesAllowed(t *testing.T) {
	_, err := parse(t, "-update-rate", "100", "-midi-rate", "100", "-osc-rate", "100")
	assert.NoError(t, err)
}

func TestRetargetMovesDefaultAddressOnly(t *testing.T) {
	table := &config.Table{Parameters: []param.Spec{
		{ID: "x", Destination: param.Address(eme.DefaultAddress, eme.KeyPositionX)},
		{ID: "other", Destination: param.Address("/elsewhere", eme.KeyPositionY)},
		{ID: "cc", Destination: param.CC(0, 1)},
	}}
	retarget(table, "/10.0.0.2/rt_requests")

	assert.Equal(t, "/10.0.0.2/rt_requests", table.Parameters[0].Destination.Path)
	assert.Equal(t, "/elsewhere", table.Parameters[1].Destination.Path)
	assert.Equal(t, param.DestMIDI, table.Parameters[2].Destination.Kind)
	assert.Empty(t, table.Parameters[2].Destination.Path)
}

func TestModeController(t *testing.T) {
	o, err := parse(t, "-mode", "off")
	require.NoError(t, err)
	c, err := newModeController(o)
	require.NoError(t, err)
	assert.Nil(t, c)

	o, err = parse(t, "-mode", "c", "-static-mode")
	require.NoError(t, err)
	c, err = newModeController(o)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, mode.C, c.Current())
}

func TestConfigName(t *testing.T) {
	assert.Equal(t, "built-in", configName(""))
	assert.Equal(t, "table.yaml", configName("/etc/gesturebridge/table.yaml"))
}
