// Package ingest receives gesture values over OSC/UDP and publishes them
// into the gesture channel.
//
// Two address forms are understood:
//
//	/gesture/frame            14 numbers, one per gesture field in index order
//	/gesture/<hand>.<measure> one number, e.g. /gesture/first.pinch
//
// Values are clamped to [0,1]. Each packet, including every message of a
// bundle, produces at most one published frame.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"github.com/chase3718/gesturebridge/internal/gesture"
)

const (
	FrameAddress = "/gesture/frame"
	fieldPrefix  = "/gesture/"
	maxPacket    = 65535
)

// Publisher is the writer side of the gesture channel.
type Publisher interface {
	Publish(gesture.Frame)
}

// Stats is a snapshot of the receiver counters.
type Stats struct {
	Packets   uint64
	Published uint64
	Rejected  uint64
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithLogger sets the receiver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Receiver) { r.logger = l }
}

// Receiver owns a UDP socket and the goroutine reading it.
type Receiver struct {
	conn   net.PacketConn
	pub    Publisher
	logger *slog.Logger

	// receiver goroutine only
	state gesture.Frame

	closed atomic.Bool
	wg     sync.WaitGroup

	packets   atomic.Uint64
	published atomic.Uint64
	rejected  atomic.Uint64
}

// Listen binds addr ("host:port") and starts receiving.
func Listen(addr string, pub Publisher, opts ...Option) (*Receiver, error) {
	if pub == nil {
		return nil, errors.New("ingest: nil publisher")
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ingest: listen %s: %w", addr, err)
	}
	r := &Receiver{conn: conn, pub: pub, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.loop()
	r.logger.Info("ingest: listening", "addr", conn.LocalAddr().String())
	return r, nil
}

// Addr is the bound local address.
func (r *Receiver) Addr() net.Addr { return r.conn.LocalAddr() }

// Close stops the receiver and waits for its goroutine to exit.
func (r *Receiver) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	err := r.conn.Close()
	r.wg.Wait()
	return err
}

// Stats returns the current counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Packets:   r.packets.Load(),
		Published: r.published.Load(),
		Rejected:  r.rejected.Load(),
	}
}

func (r *Receiver) loop() {
	defer r.wg.Done()
	buf := make([]byte, maxPacket)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if r.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("ingest: read failed", "err", err)
			continue
		}
		r.packets.Add(1)

		pkt, err := osc.ParsePacket(string(buf[:n]))
		if err == nil && pkt == nil {
			err = errors.New("not an osc message or bundle")
		}
		if err != nil {
			r.rejected.Add(1)
			r.logger.Debug("ingest: bad packet", "from", from, "err", err)
			continue
		}
		if r.apply(pkt) {
			r.pub.Publish(r.state)
			r.published.Add(1)
		}
	}
}

// apply folds pkt into the receiver state and reports whether anything
// changed.
func (r *Receiver) apply(pkt osc.Packet) bool {
	switch p := pkt.(type) {
	case *osc.Message:
		return r.applyMessage(p)
	case *osc.Bundle:
		changed := false
		for _, m := range p.Messages {
			changed = r.applyMessage(m) || changed
		}
		for _, b := range p.Bundles {
			changed = r.apply(b) || changed
		}
		return changed
	}
	return false
}

func (r *Receiver) applyMessage(m *osc.Message) bool {
	if m == nil {
		return false
	}
	if m.Address == FrameAddress {
		if len(m.Arguments) != gesture.NumFields {
			r.reject(m, fmt.Errorf("want %d arguments, got %d", gesture.NumFields, len(m.Arguments)))
			return false
		}
		var next gesture.Frame
		for i, arg := range m.Arguments {
			v, ok := number(arg)
			if !ok {
				r.reject(m, fmt.Errorf("argument %d is %T, not a number", i, arg))
				return false
			}
			next.Set(gesture.Field(i), v)
		}
		r.state.Values = next.Values
		return true
	}

	name, ok := strings.CutPrefix(m.Address, fieldPrefix)
	if !ok {
		r.reject(m, errors.New("unknown address"))
		return false
	}
	f, err := gesture.ParseField(name)
	if err != nil {
		r.reject(m, err)
		return false
	}
	if len(m.Arguments) != 1 {
		r.reject(m, fmt.Errorf("want 1 argument, got %d", len(m.Arguments)))
		return false
	}
	v, ok := number(m.Arguments[0])
	if !ok {
		r.reject(m, fmt.Errorf("argument is %T, not a number", m.Arguments[0]))
		return false
	}
	r.state.Set(f, v)
	return true
}

func (r *Receiver) reject(m *osc.Message, err error) {
	r.rejected.Add(1)
	r.logger.Debug("ingest: message rejected", "address", m.Address, "err", err)
}

func number(arg any) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
