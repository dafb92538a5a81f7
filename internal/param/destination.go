package param

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDestination wraps every destination validation failure.
var ErrInvalidDestination = errors.New("invalid destination")

// DestKind selects which protocol a parameter is dispatched on.
type DestKind int

const (
	DestMIDI DestKind = iota + 1
	DestAddress
)

func (k DestKind) String() string {
	switch k {
	case DestMIDI:
		return "midi"
	case DestAddress:
		return "address"
	}
	return fmt.Sprintf("destkind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k DestKind) MarshalText() ([]byte, error) {
	if k != DestMIDI && k != DestAddress {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidDestination, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *DestKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "midi":
		*k = DestMIDI
	case "address", "osc":
		*k = DestAddress
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidDestination, string(b))
	}
	return nil
}

// MIDIKind is the channel-voice message a MIDI destination emits.
type MIDIKind string

const (
	ControlChange   MIDIKind = "cc"
	ControlChange14 MIDIKind = "cc14"
	Note            MIDIKind = "note"
)

// Destination says where a parameter's value goes. Exactly one group of
// fields is meaningful, chosen by Kind. Destinations compare with ==.
type Destination struct {
	Kind DestKind `json:"kind" yaml:"kind"`

	// DestMIDI
	Channel uint8    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Message MIDIKind `json:"message,omitempty" yaml:"message,omitempty"`
	Index   uint8    `json:"index,omitempty" yaml:"index,omitempty"`

	// DestAddress
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

// CC is a 7-bit control change destination.
func CC(channel, index uint8) Destination {
	return Destination{Kind: DestMIDI, Channel: channel, Message: ControlChange, Index: index}
}

// CC14 is a 14-bit control change destination. index names the MSB
// controller (0-31); the LSB goes to index+32.
func CC14(channel, index uint8) Destination {
	return Destination{Kind: DestMIDI, Channel: channel, Message: ControlChange14, Index: index}
}

// NoteDest is a note destination; the value becomes the velocity and zero
// releases the note.
func NoteDest(channel, key uint8) Destination {
	return Destination{Kind: DestMIDI, Channel: channel, Message: Note, Index: key}
}

// Address is an address-protocol destination writing field of the request
// sent to path.
func Address(path, field string) Destination {
	return Destination{Kind: DestAddress, Path: path, Field: field}
}

// Validate checks the fields that matter for d.Kind.
func (d Destination) Validate() error {
	switch d.Kind {
	case DestMIDI:
		if d.Channel > 15 {
			return fmt.Errorf("%w: midi channel %d out of range 0-15", ErrInvalidDestination, d.Channel)
		}
		switch d.Message {
		case ControlChange, Note:
			if d.Index > 127 {
				return fmt.Errorf("%w: %s index %d out of range 0-127", ErrInvalidDestination, d.Message, d.Index)
			}
		case ControlChange14:
			if d.Index > 31 {
				return fmt.Errorf("%w: cc14 index %d out of range 0-31", ErrInvalidDestination, d.Index)
			}
		default:
			return fmt.Errorf("%w: midi message %q", ErrInvalidDestination, d.Message)
		}
	case DestAddress:
		if !strings.HasPrefix(d.Path, "/") {
			return fmt.Errorf("%w: address path %q must start with /", ErrInvalidDestination, d.Path)
		}
		if strings.TrimSpace(d.Field) == "" {
			return fmt.Errorf("%w: address field is empty", ErrInvalidDestination)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidDestination, int(d.Kind))
	}
	return nil
}

func (d Destination) String() string {
	switch d.Kind {
	case DestMIDI:
		return fmt.Sprintf("midi ch%d %s %d", d.Channel+1, d.Message, d.Index)
	case DestAddress:
		return d.Path + "#" + d.Field
	}
	return d.Kind.String()
}

// Delta is one value for the MIDI dispatch queue.
type Delta struct {
	ID          string
	Value       float64
	Destination Destination
}
