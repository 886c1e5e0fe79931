// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"net"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg/transport"
)

// DefaultMaxBodySize is the largest response body a Conn accepts by default.
const DefaultMaxBodySize = 64 << 20

// Conn adapts a non-blocking transport.Stream to awaitable operations.
// At most one operation may be in flight per Conn; starting a second one
// before the first completes panics with ErrOperationInFlight.
type Conn struct {
	stream   transport.Stream
	maxBody  uint32
	inflight atomix.Uint32
}

// NewConn wraps stream. A zero maxBody selects DefaultMaxBodySize.
func NewConn(stream transport.Stream, maxBody uint32) *Conn {
	if maxBody == 0 {
		maxBody = DefaultMaxBodySize
	}
	return &Conn{stream: stream, maxBody: maxBody}
}

// transfer tracks progress of one read or write across attempts.
type transfer struct {
	buf     []byte
	off     int
	started bool
	done    bool
}

// Write returns a protocol step writing all of p.
func (c *Conn) Write(p []byte) kont.Eff[int] {
	return kont.Perform(Write{conn: c, x: &transfer{buf: p}})
}

// Read returns a protocol step filling all of p.
func (c *Conn) Read(p []byte) kont.Eff[int] {
	return kont.Perform(Read{conn: c, x: &transfer{buf: p}})
}

// ReadHeader returns a protocol step reading one WireHeader.
func (c *Conn) ReadHeader() kont.Eff[WireHeader] {
	return kont.Perform(ReadHeader{conn: c, x: &transfer{buf: make([]byte, HeaderSize)}})
}

// MaxBodySize returns the largest body ReadBodyBind accepts.
func (c *Conn) MaxBodySize() uint32 { return c.maxBody }

// Shutdown interrupts the stream so pending and future attempts fail.
func (c *Conn) Shutdown() error { return c.stream.Shutdown() }

// Close releases the stream.
func (c *Conn) Close() error { return c.stream.Close() }

// RemoteAddr returns the peer address, or nil if unknown.
func (c *Conn) RemoteAddr() net.Addr { return c.stream.RemoteAddr() }

// InFlight reports whether an operation has started and not yet completed.
func (c *Conn) InFlight() bool { return c.inflight.Load() != 0 }

func (c *Conn) begin(x *transfer) {
	if x.started {
		return
	}
	if !c.inflight.CompareAndSwap(0, 1) {
		panic(ErrOperationInFlight)
	}
	x.started = true
}

func (c *Conn) end(x *transfer) {
	if x.done {
		return
	}
	x.done = true
	c.inflight.Store(0)
}

func (c *Conn) cancel(x *transfer) {
	if x.started {
		c.end(x)
	}
}

func (c *Conn) read(x *transfer) error {
	c.begin(x)
	for x.off < len(x.buf) {
		n, err := c.stream.TryRead(x.buf[x.off:])
		if n > 0 {
			x.off += n
		}
		if err != nil {
			if !iox.IsWouldBlock(err) {
				c.end(x)
			}
			return err
		}
		if n == 0 {
			return iox.ErrWouldBlock
		}
	}
	c.end(x)
	return nil
}

func (c *Conn) write(x *transfer) error {
	c.begin(x)
	for x.off < len(x.buf) {
		n, err := c.stream.TryWrite(x.buf[x.off:])
		if n > 0 {
			x.off += n
		}
		if err != nil {
			if !iox.IsWouldBlock(err) {
				c.end(x)
			}
			return err
		}
		if n == 0 {
			return iox.ErrWouldBlock
		}
	}
	c.end(x)
	return nil
}
