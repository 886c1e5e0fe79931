// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport provides non-blocking byte streams for the manager and
// blocking connections for workers.
//
// Every attempt on a [Stream] or [Listener] returns immediately; an attempt
// that cannot make progress returns [code.hybscloud.com/iox.ErrWouldBlock].
// Backends that only offer blocking I/O are adapted with [Pump], which moves
// bytes through bounded lock-free SPSC queues from [code.hybscloud.com/lfq].
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Stream is a non-blocking, full-duplex byte stream.
//
// TryRead and TryWrite return iox.ErrWouldBlock when no progress is possible.
// Shutdown makes every later attempt fail and unblocks the peer; Close
// releases the underlying resources.
type Stream interface {
	TryRead(p []byte) (int, error)
	TryWrite(p []byte) (int, error)
	Shutdown() error
	Close() error
	RemoteAddr() net.Addr
}

// Listener yields accepted streams without blocking.
// After Close, TryAccept returns net.ErrClosed.
type Listener interface {
	TryAccept() (Stream, error)
	Close() error
	Addr() net.Addr
}

// Kind identifies a transport backend.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindWS
	KindWinPipe
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindWS:
		return "ws"
	case KindWinPipe:
		return "winpipe"
	case KindMem:
		return "mem"
	}
	return "unknown"
}

var (
	// ErrShutdown is returned by attempts on a stream after Shutdown.
	ErrShutdown = errors.New("transport: stream shut down")

	// ErrUnknownKind reports an unsupported transport kind.
	ErrUnknownKind = errors.New("transport: unknown kind")
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return KindTCP, nil
	case "quic":
		return KindQUIC, nil
	case "ws", "websocket":
		return KindWS, nil
	case "winpipe", "pipe":
		return KindWinPipe, nil
	case "mem":
		return KindMem, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Listen opens a listener of the given kind on addr.
func Listen(ctx context.Context, kind Kind, addr string) (Listener, error) {
	switch kind {
	case KindTCP:
		return ListenTCP(addr)
	case KindQUIC:
		return ListenQUIC(ctx, addr)
	case KindWS:
		return ListenWS(addr)
	case KindWinPipe:
		return ListenPipe(addr)
	case KindMem:
		return ListenMem(addr)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
}

// Dial connects to a listener of the given kind. The returned connection
// blocks, which is what worker processes want.
func Dial(ctx context.Context, kind Kind, addr string) (io.ReadWriteCloser, error) {
	switch kind {
	case KindTCP:
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return c, nil
	case KindQUIC:
		return DialQUIC(ctx, addr)
	case KindWS:
		return DialWS(ctx, addr)
	case KindWinPipe:
		return DialPipe(ctx, addr)
	case KindMem:
		return DialMem(addr)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
}
