// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg_test

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/transport"
)

const waitTimeout = 5 * time.Second

func startScheduler(t *testing.T, opts ...taskmsg.SchedulerOption) *taskmsg.Scheduler {
	t.Helper()
	s := taskmsg.NewScheduler(opts...)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

// eventually polls cond until it holds or the wait times out.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// spawnWait runs protocol on s and waits for its outcome.
func spawnWait[R any](t *testing.T, s *taskmsg.Scheduler, protocol kont.Eff[R]) kont.Either[error, R] {
	t.Helper()
	ch := make(chan kont.Either[error, R], 1)
	taskmsg.Spawn(s, protocol, func(r kont.Either[error, R]) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("protocol did not finish")
	}
	panic("unreachable")
}

// countdown is an awaitable that completes on its ready-th attempt with the
// number of attempts made.
type countdown struct {
	kont.Phantom[int]
	ready int
	calls *int
}

func newCountdown(ready int) countdown {
	return countdown{ready: ready, calls: new(int)}
}

func (countdown) Category() taskmsg.Category { return taskmsg.CategoryRead }

func (c countdown) TryComplete() (kont.Resumed, error) {
	*c.calls++
	if *c.calls < c.ready {
		return nil, iox.ErrWouldBlock
	}
	return *c.calls, nil
}

// failing is an awaitable that fails with err on its first attempt.
type failing struct {
	kont.Phantom[int]
	err error
}

func (failing) Category() taskmsg.Category { return taskmsg.CategoryGeneric }

func (f failing) TryComplete() (kont.Resumed, error) { return nil, f.err }

// blocked never completes. Cancel counts drops.
type blocked struct {
	kont.Phantom[int]
	canceled *int
}

func (blocked) Category() taskmsg.Category { return taskmsg.CategoryGeneric }

func (blocked) TryComplete() (kont.Resumed, error) { return nil, iox.ErrWouldBlock }

func (b blocked) Cancel() { *b.canceled++ }

// explosive panics on its panicAt-th attempt and reports would-block
// before that. Cancel counts releases.
type explosive struct {
	kont.Phantom[int]
	panicAt  int
	calls    *int
	canceled *int
}

func newExplosive(panicAt int) explosive {
	return explosive{panicAt: panicAt, calls: new(int), canceled: new(int)}
}

func (explosive) Category() taskmsg.Category { return taskmsg.CategoryWrite }

func (e explosive) TryComplete() (kont.Resumed, error) {
	*e.calls++
	if *e.calls < e.panicAt {
		return nil, iox.ErrWouldBlock
	}
	panic("attempt exploded")
}

func (e explosive) Cancel() { *e.canceled++ }

// faultyStream panics on its panicAt-th TryRead. Earlier reads report
// would-block without touching the wrapped stream; later ones pass through.
type faultyStream struct {
	transport.Stream
	panicAt int32
	reads   atomic.Int32
}

func (f *faultyStream) TryRead(b []byte) (int, error) {
	switch n := f.reads.Add(1); {
	case n < f.panicAt:
		return 0, iox.ErrWouldBlock
	case n == f.panicAt:
		panic("stream fault")
	}
	return f.Stream.TryRead(b)
}

// overlapStream records whether two transport calls ever ran at once.
type overlapStream struct {
	transport.Stream
	active  atomic.Int32
	calls   atomic.Int64
	overlap atomic.Bool
}

func (o *overlapStream) enter() {
	o.calls.Add(1)
	if o.active.Add(1) > 1 {
		o.overlap.Store(true)
	}
	// Widen the window a concurrent call would have to hit.
	for range 64 {
		if o.active.Load() > 1 {
			o.overlap.Store(true)
		}
	}
}

func (o *overlapStream) TryRead(b []byte) (int, error) {
	o.enter()
	defer o.active.Add(-1)
	return o.Stream.TryRead(b)
}

func (o *overlapStream) TryWrite(b []byte) (int, error) {
	o.enter()
	defer o.active.Add(-1)
	return o.Stream.TryWrite(b)
}

// reply is what a fake worker answers to one request.
type reply struct {
	header taskmsg.WireHeader
	body   []byte
}

// echoReply answers with the request id, tag and payload.
func echoReply(req taskmsg.WireHeader, payload []byte) reply {
	return reply{
		header: taskmsg.WireHeader{TaskID: req.TaskID, Tag: req.Tag, BodySize: uint32(len(payload))},
		body:   payload,
	}
}

// fakeWorker serves requests on s with handle until the peer goes away.
// The returned channel yields the error that ended it.
func fakeWorker(s transport.Stream, handle func(taskmsg.WireHeader, []byte) reply) <-chan error {
	errc := make(chan error, 1)
	go func() {
		rw := transport.Blocking(s)
		defer rw.Close()
		hdr := make([]byte, taskmsg.HeaderSize)
		for {
			if _, err := io.ReadFull(rw, hdr); err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				errc <- err
				return
			}
			req := taskmsg.ParseHeader(hdr)
			payload := make([]byte, req.BodySize)
			if _, err := io.ReadFull(rw, payload); err != nil {
				errc <- err
				return
			}
			r := handle(req, payload)
			msg := append(r.header.Append(nil), r.body...)
			if _, err := rw.Write(msg); err != nil {
				errc <- err
				return
			}
		}
	}()
	return errc
}

// tasks builds n tasks with ids 1..n carrying tag.
func tasks(n int, tag uint32) []taskmsg.Task {
	out := make([]taskmsg.Task, n)
	for i := range out {
		out[i] = taskmsg.Task{ID: uint32(i + 1), Tag: tag, Payload: []byte{byte(i), byte(i >> 8)}}
	}
	return out
}
