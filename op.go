// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg/transport"
)

// Awaitable is the structural interface for suspendable operations.
// TryComplete attempts the operation once without blocking: it returns
// iox.ErrWouldBlock when the operation cannot make progress yet, another
// error when it failed, or the resumed value on completion.
type Awaitable interface {
	Category() Category
	TryComplete() (kont.Resumed, error)
}

// canceler is implemented by operations that hold resources which must be
// released when their suspension is dropped.
type canceler interface {
	Cancel()
}

// errorDispatcher is the structural interface of kont error effects.
type errorDispatcher interface {
	DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
}

// Write is the effect operation for writing a whole buffer to a Conn.
// Perform(Write{...}) resumes with the number of bytes written.
type Write struct {
	kont.Phantom[int]
	conn *Conn
	x    *transfer
}

// Category implements Awaitable.
func (Write) Category() Category { return CategoryWrite }

// TryComplete writes as much as the stream accepts. Non-blocking: returns
// iox.ErrWouldBlock until every byte has been written.
func (op Write) TryComplete() (kont.Resumed, error) {
	if err := op.conn.write(op.x); err != nil {
		return nil, err
	}
	return len(op.x.buf), nil
}

// Cancel releases the connection's in-flight slot.
func (op Write) Cancel() { op.conn.cancel(op.x) }

// Read is the effect operation for filling a buffer from a Conn.
// Perform(Read{...}) resumes with the number of bytes read, which always
// equals the buffer length.
type Read struct {
	kont.Phantom[int]
	conn *Conn
	x    *transfer
}

// Category implements Awaitable.
func (Read) Category() Category { return CategoryRead }

// TryComplete reads what the stream has. Non-blocking: returns
// iox.ErrWouldBlock until the buffer is full.
func (op Read) TryComplete() (kont.Resumed, error) {
	if err := op.conn.read(op.x); err != nil {
		return nil, err
	}
	return len(op.x.buf), nil
}

// Cancel releases the connection's in-flight slot.
func (op Read) Cancel() { op.conn.cancel(op.x) }

// ReadHeader is the effect operation for reading one WireHeader.
type ReadHeader struct {
	kont.Phantom[WireHeader]
	conn *Conn
	x    *transfer
}

// Category implements Awaitable.
func (ReadHeader) Category() Category { return CategoryReadHeader }

// TryComplete reads the header bytes. Non-blocking: returns
// iox.ErrWouldBlock until all HeaderSize bytes have arrived.
func (op ReadHeader) TryComplete() (kont.Resumed, error) {
	if err := op.conn.read(op.x); err != nil {
		return nil, err
	}
	return ParseHeader(op.x.buf), nil
}

// Cancel releases the connection's in-flight slot.
func (op ReadHeader) Cancel() { op.conn.cancel(op.x) }

// Dequeue is the effect operation for taking the next task from a TaskQueue.
// Perform(Dequeue{...}) resumes with the task, or with the zero Task once
// the queue is shut down or the stop condition holds.
type Dequeue struct {
	kont.Phantom[Task]
	q    *TaskQueue
	st   *dequeueState
	stop func() bool
}

// Category implements Awaitable.
func (Dequeue) Category() Category { return CategoryGeneric }

// TryComplete pops the queue head or registers a waiter slot.
// Non-blocking: returns iox.ErrWouldBlock while the slot is unfilled.
func (op Dequeue) TryComplete() (kont.Resumed, error) {
	t, err := op.q.tryDequeue(op.st, op.stop)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel withdraws the waiter slot. A task already handed to the slot goes
// back to the front of the queue.
func (op Dequeue) Cancel() { op.q.cancel(op.st) }

// AcceptResult is the outcome of one Accept.
type AcceptResult struct {
	Stream transport.Stream
	Err    error
}

// Accept is the effect operation for accepting a stream from a listener.
// Accept errors are delivered in the result rather than aborting the protocol.
type Accept struct {
	kont.Phantom[AcceptResult]
	l transport.Listener
}

// Category implements Awaitable.
func (Accept) Category() Category { return CategoryGeneric }

// TryComplete polls the listener. Non-blocking: returns iox.ErrWouldBlock
// while no connection is waiting.
func (op Accept) TryComplete() (kont.Resumed, error) {
	s, err := op.l.TryAccept()
	if iox.IsWouldBlock(err) {
		return nil, err
	}
	return AcceptResult{Stream: s, Err: err}, nil
}
