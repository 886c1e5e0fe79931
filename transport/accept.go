// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"net"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// acceptCapacity bounds streams accepted but not yet taken by TryAccept.
const acceptCapacity = 64

// acceptQueue is a Listener fed by a blocking accept goroutine.
// Producers are serialized by mu; TryAccept is the single consumer.
type acceptQueue struct {
	q       lfq.SPSC[Stream]
	mu      sync.Mutex
	closed  atomix.Uint32
	addr    net.Addr
	onClose func() error
	once    sync.Once
	err     error
}

func newAcceptQueue(addr net.Addr, onClose func() error) *acceptQueue {
	a := &acceptQueue{addr: addr, onClose: onClose}
	a.q.Init(acceptCapacity)
	return a
}

// push hands s to the consumer, backing off while the queue is full.
// Returns false if the listener closed first; s is then closed.
func (a *acceptQueue) push(s Stream) bool {
	var bo iox.Backoff
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.q.Enqueue(&s) != nil {
		if a.closed.Load() != 0 {
			_ = s.Close()
			return false
		}
		bo.Wait()
	}
	return true
}

// TryAccept implements Listener.
func (a *acceptQueue) TryAccept() (Stream, error) {
	s, err := a.q.Dequeue()
	if err == nil {
		return s, nil
	}
	if a.closed.Load() != 0 {
		return nil, net.ErrClosed
	}
	return nil, iox.ErrWouldBlock
}

// Close implements Listener.
func (a *acceptQueue) Close() error {
	a.once.Do(func() {
		a.closed.Store(1)
		if a.onClose != nil {
			a.err = a.onClose()
		}
	})
	return a.err
}

// Addr implements Listener.
func (a *acceptQueue) Addr() net.Addr { return a.addr }

// serve accepts from l until it fails, wrapping each connection.
func (a *acceptQueue) serve(l net.Listener, wrap func(net.Conn) (Stream, error)) {
	for {
		c, err := l.Accept()
		if err != nil {
			if a.closed.Load() == 0 {
				_ = a.Close()
			}
			return
		}
		s, err := wrap(c)
		if err != nil {
			_ = c.Close()
			continue
		}
		if !a.push(s) {
			return
		}
	}
}
