package midiout

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chase3718/gesturebridge/internal/param"
	"github.com/chase3718/gesturebridge/internal/timeutil"
)

// Port is a MIDI output. Send reports whether the message was written.
type Port interface {
	Send(Message) error
}

// Source is the consumer side of the MIDI dispatch queue.
type Source interface {
	TryPop() (param.Delta, bool)
	Len() int
}

// Stats is a snapshot of the sender counters.
type Stats struct {
	Sent   uint64
	Failed uint64
	Bytes  uint64
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithLogger sets the sender's logger.
func WithLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) { s.logger = l }
}

// WithClock sets the clock used for the throughput report.
func WithClock(c timeutil.Clock) SenderOption {
	return func(s *Sender) { s.clock = c }
}

const reportInterval = time.Second

// Sender is the MIDI dispatch stage: each Tick drains the queue in FIFO
// order and writes every message to the port.
type Sender struct {
	src    Source
	port   Port
	logger *slog.Logger
	clock  timeutil.Clock

	sent   atomic.Uint64
	failed atomic.Uint64
	bytes  atomic.Uint64

	// sender goroutine only
	windowStart time.Time
	windowBytes uint64
}

// NewSender wires src to port.
func NewSender(src Source, port Port, opts ...SenderOption) (*Sender, error) {
	if src == nil || port == nil {
		return nil, errors.New("midi sender: source and port are required")
	}
	s := &Sender{
		src:    src,
		port:   port,
		logger: slog.Default(),
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tick is the MIDI sender's timer job. It sends the deltas queued when the
// tick began; later pushes wait for the next tick. A failed send is logged and
// the next delta proceeds.
func (s *Sender) Tick() error {
	for n := s.src.Len(); n > 0; n-- {
		d, ok := s.src.TryPop()
		if !ok {
			break
		}
		msg, err := FromDelta(d)
		if err != nil {
			s.failed.Add(1)
			s.logger.Error("midi: bad delta", "param", d.ID, "err", err)
			continue
		}
		if err := s.port.Send(msg); err != nil {
			s.failed.Add(1)
			s.logger.Warn("midi: send failed", "param", d.ID, "msg", msg.String(), "err", err)
			continue
		}
		n := uint64(len(msg.Bytes()))
		s.sent.Add(1)
		s.bytes.Add(n)
		s.windowBytes += n
	}
	s.report()
	return nil
}

func (s *Sender) report() {
	now := s.clock.Now()
	if s.windowStart.IsZero() {
		s.windowStart = now
		return
	}
	elapsed := now.Sub(s.windowStart)
	if elapsed < reportInterval {
		return
	}
	if s.windowBytes > 0 {
		s.logger.Debug("midi: throughput",
			"bytes", s.windowBytes,
			"bytes_per_sec", float64(s.windowBytes)/elapsed.Seconds(),
		)
	}
	s.windowStart = now
	s.windowBytes = 0
}

// Stats returns the current counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Sent:   s.sent.Load(),
		Failed: s.failed.Load(),
		Bytes:  s.bytes.Load(),
	}
}
