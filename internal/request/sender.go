package request

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/chase3718/gesturebridge/internal/timeutil"
)

// Serializer validates a request and encodes it for the wire. An error means
// the request can never be sent.
type Serializer func(Request) ([]byte, error)

// Socket is the datagram transport the sender writes to.
type Socket interface {
	Write(p []byte) (int, error)
}

// Source is the consumer side of the request queue.
type Source interface {
	TryPop() (Request, bool)
}

// SenderStats is a snapshot of the sender's counters.
type SenderStats struct {
	Sent    uint64
	Expired uint64
	Invalid uint64
	Failed  uint64
	Bytes   uint64
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithSenderLogger sets the logger for dropped and failed requests.
func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) { s.logger = l }
}

// WithSenderClock sets the clock validity windows are checked against.
func WithSenderClock(c timeutil.Clock) SenderOption {
	return func(s *Sender) { s.clock = c }
}

// WithWriteAttempts sets how many times one tick tries a failing write
// before giving up on the request. Values below one mean one.
func WithWriteAttempts(n int) SenderOption {
	return func(s *Sender) {
		if n < 1 {
			n = 1
		}
		s.attempts = n
	}
}

// Sender is the request-queue stage: each Tick sends at most one request.
type Sender struct {
	src      Source
	encode   Serializer
	sock     Socket
	clock    timeutil.Clock
	logger   *slog.Logger
	attempts int

	sent    atomic.Uint64
	expired atomic.Uint64
	invalid atomic.Uint64
	failed  atomic.Uint64
	bytes   atomic.Uint64
}

// NewSender wires a request source through encode onto sock.
func NewSender(src Source, encode Serializer, sock Socket, opts ...SenderOption) (*Sender, error) {
	if src == nil || encode == nil || sock == nil {
		return nil, errors.New("request sender: source, serializer and socket are required")
	}
	s := &Sender{
		src:      src,
		encode:   encode,
		sock:     sock,
		clock:    timeutil.RealClock{},
		logger:   slog.Default(),
		attempts: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tick pops the oldest queued request and, if it is still valid and
// serializes, writes it. Dropped and failed requests are logged; Tick itself
// only fails on a nil receiver.
func (s *Sender) Tick() error {
	if s == nil {
		return errors.New("request sender: nil")
	}
	req, ok := s.src.TryPop()
	if !ok {
		return nil
	}

	if err := req.Check(s.clock.Now()); err != nil {
		s.expired.Add(1)
		s.logger.Error("request: dropped outside validity window", "id", req.ID, "address", req.Address, "err", err)
		return nil
	}

	data, err := s.encode(req)
	if err != nil {
		s.invalid.Add(1)
		s.logger.Error("request: dropped invalid request", "id", req.ID, "address", req.Address, "err", err)
		return nil
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.write(data)
		if err == nil {
			s.sent.Add(1)
			s.bytes.Add(uint64(len(data)))
			s.logger.Debug("request: sent", "id", req.ID, "address", req.Address, "bytes", len(data))
			return nil
		}
		s.logger.Warn("request: write failed", "id", req.ID, "attempt", attempt, "err", err)
	}
	s.failed.Add(1)
	s.logger.Error("request: giving up", "id", req.ID, "address", req.Address, "attempts", s.attempts, "err", err)
	return nil
}

func (s *Sender) write(data []byte) error {
	n, err := s.sock.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes: %w", n, len(data), io.ErrShortWrite)
	}
	return nil
}

// Stats returns the current counters.
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Sent:    s.sent.Load(),
		Expired: s.expired.Load(),
		Invalid: s.invalid.Load(),
		Failed:  s.failed.Load(),
		Bytes:   s.bytes.Load(),
	}
}

// DialUDP connects a datagram socket to addr ("host:port").
func DialUDP(addr string) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", addr, err)
	}
	return conn, nil
}
