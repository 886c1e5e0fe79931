// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"fmt"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg/transport"
)

// WriteThen writes p to c and then continues with next.
// Fuses c.Write(p) + Then.
func WriteThen[B any](c *Conn, p []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(c.Write(p), next)
}

// WriteBind writes p to c and passes the byte count to f.
// Fuses c.Write(p) + Bind.
func WriteBind[B any](c *Conn, p []byte, f func(int) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(c.Write(p), f)
}

// ReadBind fills p from c and passes the byte count to f.
// Fuses c.Read(p) + Bind.
func ReadBind[B any](c *Conn, p []byte, f func(int) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(c.Read(p), f)
}

// ReadHeaderBind reads a WireHeader from c and passes it to f.
// Fuses c.ReadHeader() + Bind.
func ReadHeaderBind[B any](c *Conn, f func(WireHeader) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(c.ReadHeader(), f)
}

// ReadBodyBind reads exactly size bytes from c and passes them to f.
// A size above the connection limit throws ErrBodyTooLarge.
func ReadBodyBind[B any](c *Conn, size uint32, f func([]byte) kont.Eff[B]) kont.Eff[B] {
	if size > c.MaxBodySize() {
		return kont.ThrowError[error, B](fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, size, c.MaxBodySize()))
	}
	body := make([]byte, size)
	return kont.Bind(c.Read(body), func(int) kont.Eff[B] {
		return f(body)
	})
}

// DequeueBind takes the next task from q and passes it to f.
// Fuses q.Dequeue() + Bind.
func DequeueBind[B any](q *TaskQueue, f func(Task) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(q.Dequeue(), f)
}

// AcceptBind accepts the next stream from l and passes the result to f.
// Fuses Perform(Accept{}) + Bind.
func AcceptBind[B any](l transport.Listener, f func(AcceptResult) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Accept{l: l}), f)
}
