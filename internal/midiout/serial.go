package midiout

import (
	"fmt"
	"io"
	"log/slog"

	"go.bug.st/serial"
)

// SerialPort writes raw MIDI bytes to a serial device, for USB-serial MIDI
// bridges and microcontrollers speaking MIDI over UART.
type SerialPort struct {
	port   io.WriteCloser
	name   string
	logger *slog.Logger
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int, logger *slog.Logger) (*SerialPort, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s at %d baud: %w", name, baud, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return &SerialPort{port: p, name: name, logger: logger}, nil
}

// Send writes the encoded message.
func (s *SerialPort) Send(m Message) error {
	data := m.Bytes()
	n, err := s.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial: write %s: %w", s.name, err)
	}
	if n != len(data) {
		return fmt.Errorf("serial: short write to %s: %d of %d bytes", s.name, n, len(data))
	}
	return nil
}

// Close closes the underlying serial port.
func (s *SerialPort) Close() error {
	s.logger.Info("serial: closing port", "device", s.name)
	return s.port.Close()
}
