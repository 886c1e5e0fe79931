// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Spawn runs protocol on the scheduler and calls done with its outcome.
//
// Evaluation starts on a scheduler thread, so Spawn never blocks. Effects
// that complete immediately are resumed synchronously; an effect that would
// block is registered with s and resumed by whichever loop finds it ready.
// If the scheduler drops a pending effect, done receives Left(ErrCanceled).
// A panic raised by an operation attempt or a continuation finishes the
// protocol with Left wrapping ErrPanicked.
func Spawn[R any](s *Scheduler, protocol kont.Eff[R], done func(kont.Either[error, R])) {
	if done == nil {
		done = func(kont.Either[error, R]) {}
	}
	s.Register(PendingOperation{
		Category: CategoryGeneric,
		Probe:    func() bool { return true },
		Resume: func() {
			result, susp := guarded(func() (kont.Either[error, R], *Suspension[R]) {
				return Step(protocol)
			})
			drive(s, result, susp, done)
		},
		Drop: func() { done(kont.Left[error, R](ErrCanceled)) },
	})
}

// drive advances susp while its effects complete immediately, then either
// finishes or parks the pending effect on the scheduler.
func drive[R any](s *Scheduler, result kont.Either[error, R], susp *Suspension[R], done func(kont.Either[error, R])) {
	for susp != nil {
		cur := susp
		op, ok := cur.Op().(Awaitable)
		if !ok {
			result, susp = guarded(func() (kont.Either[error, R], *Suspension[R]) {
				r, next, _ := Advance(cur)
				return r, next
			})
			continue
		}
		v, err := tryComplete(op)
		if iox.IsWouldBlock(err) {
			park(s, cur, op, done)
			return
		}
		if err != nil {
			cur.Discard()
			done(kont.Left[error, R](err))
			return
		}
		result, susp = guarded(func() (kont.Either[error, R], *Suspension[R]) {
			return cur.Resume(v)
		})
	}
	done(result)
}

// park registers the pending effect of susp. The failed ready check counts
// as the first attempt.
func park[R any](s *Scheduler, susp *Suspension[R], op Awaitable, done func(kont.Either[error, R])) {
	var (
		v   kont.Resumed
		err error
	)
	s.Register(PendingOperation{
		Category: op.Category(),
		Attempts: 1,
		Probe: func() bool {
			v, err = tryComplete(op)
			return !iox.IsWouldBlock(err)
		},
		Resume: func() {
			if err != nil {
				susp.Discard()
				done(kont.Left[error, R](err))
				return
			}
			result, next := guarded(func() (kont.Either[error, R], *Suspension[R]) {
				return susp.Resume(v)
			})
			drive(s, result, next, done)
		},
		Drop: func() {
			if c, ok := op.(canceler); ok {
				c.Cancel()
			}
			susp.Discard()
			done(kont.Left[error, R](ErrCanceled))
		},
	})
}

// tryComplete attempts op once. A panic becomes an ErrPanicked error and
// releases whatever the attempt held.
func tryComplete(op Awaitable) (v kont.Resumed, err error) {
	defer func() {
		if r := recover(); r != nil {
			if c, ok := op.(canceler); ok {
				c.Cancel()
			}
			v, err = nil, panicked(r)
		}
	}()
	return op.TryComplete()
}

// guarded evaluates f, finishing with Left(ErrPanicked) if it panics.
func guarded[R any](f func() (kont.Either[error, R], *Suspension[R])) (result kont.Either[error, R], susp *Suspension[R]) {
	defer func() {
		if r := recover(); r != nil {
			result, susp = kont.Left[error, R](panicked(r)), nil
		}
	}()
	return f()
}
