package midiout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSerial struct {
	bytes.Buffer
	writeErr error
	closed   bool
}

func (f *fakeSerial) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.Buffer.Write(p)
}

func (f *fakeSerial) Close() error { f.closed = true; return nil }

func TestSerialPortWritesRawMIDI(t *testing.T) {
	dev := &fakeSerial{}
	sp := &SerialPort{port: dev, name: "/dev/ttyUSB0", logger: quiet}

	require.NoError(t, sp.Send(Message{Channel: 0, Kind: ControlChange, Index: 7, Value: 100}))
	require.NoError(t, sp.Send(Message{Channel: 0, Kind: Note, Index: 60, Value: 90}))
	assert.Equal(t, []byte{0xB0, 0x07, 0x64, 0x90, 0x3C, 0x5A}, dev.Bytes())

	dev.writeErr = errors.New("i/o error")
	assert.Error(t, sp.Send(Message{Kind: ControlChange, Index: 1}))

	require.NoError(t, sp.Close())
	assert.True(t, dev.closed)
}

func TestOpenSerialMissingDevice(t *testing.T) {
	_, err := OpenSerial("/dev/does-not-exist-gesturebridge", 115200, quiet)
	assert.Error(t, err)
}
