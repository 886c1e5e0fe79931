// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// memDepth is the capacity, in writes, of each pipe direction.
const memDepth = 256

// ErrNoListener is returned by DialMem when no listener has the name.
var ErrNoListener = errors.New("transport: no such mem listener")

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// pipePair holds both ends and the queues between them in one allocation.
type pipePair struct {
	ab, ba lfq.SPSC[[]byte]
	a, b   pipeEnd
}

// pipeEnd is one side of an in-process pipe. Each end must be read by one
// goroutine at a time and written by one goroutine at a time.
type pipeEnd struct {
	in     *lfq.SPSC[[]byte]
	out    *lfq.SPSC[[]byte]
	rest   []byte
	closed atomix.Uint32
	peer   *pipeEnd
	addr   net.Addr
}

// Pipe creates a connected pair of in-process streams.
func Pipe() (Stream, Stream) {
	return newPipe(memAddr("mem-a"), memAddr("mem-b"))
}

func newPipe(addrA, addrB net.Addr) (*pipeEnd, *pipeEnd) {
	p := &pipePair{}
	p.ab.Init(memDepth)
	p.ba.Init(memDepth)
	p.a = pipeEnd{in: &p.ba, out: &p.ab, peer: &p.b, addr: addrB}
	p.b = pipeEnd{in: &p.ab, out: &p.ba, peer: &p.a, addr: addrA}
	return &p.a, &p.b
}

func (e *pipeEnd) TryRead(b []byte) (int, error) {
	if e.closed.Load() != 0 {
		return 0, ErrShutdown
	}
	if len(b) == 0 {
		return 0, nil
	}
	if len(e.rest) == 0 {
		chunk, err := e.in.Dequeue()
		if err != nil {
			if e.peer.closed.Load() == 0 {
				return 0, iox.ErrWouldBlock
			}
			// The peer may have written just before closing.
			if chunk, err = e.in.Dequeue(); err != nil {
				return 0, io.EOF
			}
		}
		e.rest = chunk
	}
	n := copy(b, e.rest)
	e.rest = e.rest[n:]
	return n, nil
}

func (e *pipeEnd) TryWrite(b []byte) (int, error) {
	if e.closed.Load() != 0 {
		return 0, ErrShutdown
	}
	if e.peer.closed.Load() != 0 {
		return 0, io.ErrClosedPipe
	}
	if len(b) == 0 {
		return 0, nil
	}
	chunk := bytes.Clone(b)
	if e.out.Enqueue(&chunk) != nil {
		return 0, iox.ErrWouldBlock
	}
	return len(b), nil
}

func (e *pipeEnd) Shutdown() error {
	e.closed.Store(1)
	return nil
}

func (e *pipeEnd) Close() error {
	e.closed.Store(1)
	return nil
}

func (e *pipeEnd) RemoteAddr() net.Addr { return e.addr }

var memListeners sync.Map // string -> *acceptQueue

// ListenMem registers an in-process listener under name.
func ListenMem(name string) (Listener, error) {
	var a *acceptQueue
	a = newAcceptQueue(memAddr(name), func() error {
		memListeners.CompareAndDelete(name, a)
		return nil
	})
	if _, loaded := memListeners.LoadOrStore(name, a); loaded {
		return nil, fmt.Errorf("transport: mem listener %q already exists", name)
	}
	return a, nil
}

// DialMem connects to the in-process listener name. The returned
// connection blocks.
func DialMem(name string) (io.ReadWriteCloser, error) {
	v, ok := memListeners.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoListener, name)
	}
	a := v.(*acceptQueue)
	server, client := newPipe(memAddr(name), memAddr(name+"-client"))
	if !a.push(server) {
		return nil, net.ErrClosed
	}
	return Blocking(client), nil
}
