package gesture

import (
	"sync/atomic"
	"time"
)

const (
	indexMask = 0b011
	freshBit  = 0b100
)

// Channel is a single-slot exchange from one writer goroutine to one reader
// goroutine. The reader always sees the most recent complete Frame;
// intermediate frames are overwritten, never queued, and neither side waits
// on the other.
//
// It is a triple buffer: the writer owns one buffer, the reader owns one, and
// the third sits in a shared slot whose index lives in an atomic word together
// with a bit saying whether it holds a frame the reader has not taken yet.
type Channel struct {
	bufs  [3]Frame
	state atomic.Uint32 // shared buffer index | freshBit

	// writer side
	back uint32
	seq  uint64

	// reader side
	front uint32
}

// NewChannel returns a channel that has not seen a frame yet.
func NewChannel() *Channel {
	c := &Channel{back: 0, front: 2}
	c.state.Store(1)
	return c
}

// Publish makes f the latest frame. It stamps Seq, and Timestamp when unset.
// Only one goroutine may publish.
func (c *Channel) Publish(f Frame) {
	c.seq++
	f.Seq = c.seq
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	c.bufs[c.back] = f
	prev := c.state.Swap(c.back | freshBit)
	c.back = prev & indexMask
}

// Read returns the latest frame and whether it is new since the previous
// Read. Without a new frame it returns the last one taken again. Only one
// goroutine may read.
func (c *Channel) Read() (Frame, bool) {
	if c.state.Load()&freshBit == 0 {
		return c.bufs[c.front], false
	}
	prev := c.state.Swap(c.front)
	c.front = prev & indexMask
	return c.bufs[c.front], true
}
