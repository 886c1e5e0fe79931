// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"code.hybscloud.com/kont"
)

// Pre-allocated frame to avoid boxing an empty struct on every fused
// constructor.
var exprReturnFrame kont.Frame = kont.ReturnFrame{}

// identityResume is the identity resume function for EffectFrame construction.
func identityResume(v kont.Erased) kont.Erased { return v }

// ExprWriteThen writes p to c and then continues with next.
// Fuses ExprPerform(c.Write(p)) + ExprThen.
func ExprWriteThen[B any](c *Conn, p []byte, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = Write{conn: c, x: &transfer{buf: p}}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

func headerBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(WireHeader) kont.Expr[B])
	result := f(current.(WireHeader))
	return kont.Erased(result.Value), result.Frame
}

// ExprReadHeaderBind reads a WireHeader from c and passes it to f.
// Fuses ExprPerform(c.ReadHeader()) + ExprBind.
func ExprReadHeaderBind[B any](c *Conn, f func(WireHeader) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = headerBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = ReadHeader{conn: c, x: &transfer{buf: make([]byte, HeaderSize)}}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

func dequeueBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(Task) kont.Expr[B])
	result := f(current.(Task))
	return kont.Erased(result.Value), result.Frame
}

// ExprDequeueBind takes the next task from q and passes it to f.
// Fuses ExprPerform(q.Dequeue()) + ExprBind.
func ExprDequeueBind[B any](q *TaskQueue, f func(Task) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = dequeueBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = Dequeue{q: q, st: &dequeueState{}}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}
