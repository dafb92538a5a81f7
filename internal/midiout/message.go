// Package midiout turns parameter deltas into MIDI channel-voice messages
// and writes them to an output port on the MIDI sender's tick.
package midiout

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/gesturebridge/internal/param"
)

// Kind is the message family a Message encodes to.
type Kind uint8

const (
	ControlChange Kind = iota + 1
	ControlChange14
	Note
)

func (k Kind) String() string {
	switch k {
	case ControlChange:
		return "cc"
	case ControlChange14:
		return "cc14"
	case Note:
		return "note"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Max values for the two data resolutions.
const (
	Max7  = 127
	Max14 = 16383
)

// Message is one scaled value ready for the wire. Value is 0-127, or
// 0-16383 for ControlChange14.
type Message struct {
	Channel uint8
	Kind    Kind
	Index   uint8
	Value   uint16
}

// SevenBit scales v in [0,1] to [0,127], rounding half away from zero.
// Out-of-range input is clamped.
func SevenBit(v float64) uint8 {
	return uint8(scale(v, Max7))
}

// FourteenBit scales v in [0,1] to [0,16383].
func FourteenBit(v float64) uint16 {
	return uint16(scale(v, Max14))
}

func scale(v, top float64) float64 {
	if v != v || v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return math.Round(v * top)
}

// FromDelta converts a MIDI-destined delta into a Message.
func FromDelta(d param.Delta) (Message, error) {
	dst := d.Destination
	if dst.Kind != param.DestMIDI {
		return Message{}, fmt.Errorf("delta %q: destination %s is not midi", d.ID, dst)
	}
	if err := dst.Validate(); err != nil {
		return Message{}, fmt.Errorf("delta %q: %w", d.ID, err)
	}

	m := Message{Channel: dst.Channel, Index: dst.Index}
	switch dst.Message {
	case param.ControlChange:
		m.Kind = ControlChange
		m.Value = uint16(SevenBit(d.Value))
	case param.ControlChange14:
		m.Kind = ControlChange14
		m.Value = FourteenBit(d.Value)
	case param.Note:
		m.Kind = Note
		m.Value = uint16(SevenBit(d.Value))
	}
	return m, nil
}

// Raw returns the wire messages for m. A 14-bit control change is two
// messages: the LSB controller (Index+32) first, then the MSB.
func (m Message) Raw() []midi.Message {
	switch m.Kind {
	case ControlChange:
		return []midi.Message{midi.ControlChange(m.Channel, m.Index, uint8(m.Value&0x7f))}
	case ControlChange14:
		lsb := uint8(m.Value & 0x7f)
		msb := uint8((m.Value >> 7) & 0x7f)
		return []midi.Message{
			midi.ControlChange(m.Channel, m.Index+32, lsb),
			midi.ControlChange(m.Channel, m.Index, msb),
		}
	case Note:
		if m.Value == 0 {
			return []midi.Message{midi.NoteOff(m.Channel, m.Index)}
		}
		return []midi.Message{midi.NoteOn(m.Channel, m.Index, uint8(m.Value&0x7f))}
	}
	return nil
}

// Bytes is the concatenated wire encoding of Raw.
func (m Message) Bytes() []byte {
	var out []byte
	for _, raw := range m.Raw() {
		out = append(out, raw.Bytes()...)
	}
	return out
}

func (m Message) String() string {
	return fmt.Sprintf("ch%d %s %d=%d", m.Channel+1, m.Kind, m.Index, m.Value)
}
