// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Suspension is a protocol paused at an effect, with errors short-circuiting
// to Left.
type Suspension[R any] = kont.Suspension[kont.Either[error, R]]

// Step evaluates a protocol until the first effect suspension.
// Returns (result, nil) on completion or (zero, suspension) if pending.
func Step[R any](protocol kont.Eff[R]) (kont.Either[error, R], *Suspension[R]) {
	return StepExpr(Reify(protocol))
}

// StepExpr is Step for an Expr-world protocol.
func StepExpr[R any](protocol kont.Expr[R]) (kont.Either[error, R], *Suspension[R]) {
	wrapped := kont.ExprMap(protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	return kont.StepExpr(wrapped)
}

// Advance attempts the suspended operation once.
//
// Awaitable ops are non-blocking: on iox.ErrWouldBlock the suspension is
// returned unconsumed together with the error and may be retried. Any other
// failure discards the suspension and completes with Left. Error effects are
// eager: Throw discards the suspension and completes with Left.
func Advance[R any](susp *Suspension[R]) (kont.Either[error, R], *Suspension[R], error) {
	switch op := susp.Op().(type) {
	case Awaitable:
		v, err := op.TryComplete()
		if iox.IsWouldBlock(err) {
			var zero kont.Either[error, R]
			return zero, susp, err
		}
		if err != nil {
			susp.Discard()
			return kont.Left[error, R](err), nil, nil
		}
		result, next := susp.Resume(v)
		return result, next, nil
	case errorDispatcher:
		var ctx kont.ErrorContext[error]
		v, _ := op.DispatchError(&ctx)
		if ctx.HasErr {
			susp.Discard()
			return kont.Left[error, R](ctx.Err), nil, nil
		}
		result, next := susp.Resume(v)
		return result, next, nil
	}
	panic("taskmsg: unhandled effect in Advance")
}
