// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"code.hybscloud.com/taskmsg/transport"
)

var (
	// ErrCanceled finishes a protocol whose pending operation was dropped
	// by a stopping scheduler.
	ErrCanceled = errors.New("taskmsg: operation canceled")

	// ErrOperationInFlight is the panic value when a second operation is
	// started on a Conn before the first one completed.
	ErrOperationInFlight = errors.New("taskmsg: operation already in flight")

	// ErrBodyTooLarge reports a response header announcing more bytes than
	// the connection accepts.
	ErrBodyTooLarge = errors.New("taskmsg: body size exceeds limit")

	// ErrQueueClosed reports a push rejected by a shut down task queue.
	ErrQueueClosed = errors.New("taskmsg: task queue is shut down")

	// ErrManagerClosed reports a session requested after Manager.Shutdown.
	ErrManagerClosed = errors.New("taskmsg: manager is shut down")

	// ErrPanicked finishes a protocol whose operation attempt or
	// continuation panicked on a scheduler thread.
	ErrPanicked = errors.New("taskmsg: protocol panicked")
)

func panicked(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanicked, err)
	}
	return fmt.Errorf("%w: %v", ErrPanicked, r)
}

// IsDisconnect reports whether err is an ordinary end of a connection:
// EOF, a closed or shut down stream, or a reset, aborted, not-connected or
// bad-handle error from the operating system.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, transport.ErrShutdown):
		return true
	}
	for _, errno := range disconnectErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

var disconnectErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.ENOTCONN,
	syscall.EBADF,
	syscall.EPIPE,
}
