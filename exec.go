// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Exec runs a protocol to completion on the calling goroutine.
// Waits on iox.ErrWouldBlock via adaptive backoff (iox.Backoff),
// without spawning goroutines or creating channels.
// Returns the protocol's error if an operation failed or Throw was performed.
func Exec[R any](protocol kont.Eff[R]) (R, error) {
	return ExecExpr(Reify(protocol))
}

// ExecExpr is Exec for an Expr-world protocol.
func ExecExpr[R any](protocol kont.Expr[R]) (R, error) {
	result, susp := StepExpr(protocol)
	var bo iox.Backoff
	for susp != nil {
		var (
			next *Suspension[R]
			err  error
		)
		result, next, err = Advance(susp)
		if err != nil {
			bo.Wait()
			continue
		}
		bo.Reset()
		susp = next
	}
	if err, ok := result.GetLeft(); ok {
		var zero R
		return zero, err
	}
	r, _ := result.GetRight()
	return r, nil
}
