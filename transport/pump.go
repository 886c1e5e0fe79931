// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"io"
	"net"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

const (
	// pumpDepth is the capacity, in chunks, of each pump direction.
	pumpDepth = 64
	// pumpChunk is the read size of the pump's reader goroutine.
	pumpChunk = 32 << 10
)

// pump adapts a blocking connection to Stream. A reader goroutine moves
// inbound chunks into in; TryWrite moves outbound chunks into out, which a
// writer goroutine drains. Each queue has exactly one producer and one
// consumer.
type pump struct {
	rw     io.ReadWriteCloser
	remote net.Addr

	in   lfq.SPSC[[]byte]
	out  lfq.SPSC[[]byte]
	rest []byte

	kick chan struct{}
	quit chan struct{}
	shut atomix.Uint32

	mu       sync.Mutex
	readErr  error
	writeErr error

	once     sync.Once
	closeErr error
}

// Pump wraps a blocking connection as a non-blocking Stream.
func Pump(rw io.ReadWriteCloser, remote net.Addr) Stream {
	p := &pump{
		rw:     rw,
		remote: remote,
		kick:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	p.in.Init(pumpDepth)
	p.out.Init(pumpDepth)
	go p.readLoop()
	go p.writeLoop()
	return p
}

func (p *pump) readLoop() {
	var bo iox.Backoff
	for {
		buf := make([]byte, pumpChunk)
		n, err := p.rw.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for p.in.Enqueue(&chunk) != nil {
				if p.shut.Load() != 0 {
					return
				}
				bo.Wait()
			}
			bo.Reset()
		}
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			return
		}
	}
}

func (p *pump) writeLoop() {
	for {
		chunk, err := p.out.Dequeue()
		if err != nil {
			select {
			case <-p.kick:
				continue
			case <-p.quit:
				return
			}
		}
		if _, err := p.rw.Write(chunk); err != nil {
			p.mu.Lock()
			p.writeErr = err
			p.mu.Unlock()
			return
		}
	}
}

// TryRead implements Stream.
func (p *pump) TryRead(b []byte) (int, error) {
	if p.shut.Load() != 0 {
		return 0, ErrShutdown
	}
	if len(b) == 0 {
		return 0, nil
	}
	if len(p.rest) == 0 {
		chunk, err := p.in.Dequeue()
		if err != nil {
			p.mu.Lock()
			rerr := p.readErr
			p.mu.Unlock()
			if rerr == nil {
				return 0, iox.ErrWouldBlock
			}
			// The reader enqueues its last chunk before publishing the error.
			if chunk, err = p.in.Dequeue(); err != nil {
				return 0, rerr
			}
		}
		p.rest = chunk
	}
	n := copy(b, p.rest)
	p.rest = p.rest[n:]
	return n, nil
}

// TryWrite implements Stream. The whole buffer is accepted or none of it.
func (p *pump) TryWrite(b []byte) (int, error) {
	if p.shut.Load() != 0 {
		return 0, ErrShutdown
	}
	p.mu.Lock()
	werr := p.writeErr
	p.mu.Unlock()
	if werr != nil {
		return 0, werr
	}
	if len(b) == 0 {
		return 0, nil
	}
	chunk := bytes.Clone(b)
	if err := p.out.Enqueue(&chunk); err != nil {
		return 0, iox.ErrWouldBlock
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return len(b), nil
}

// Shutdown implements Stream by closing the underlying connection, which
// unblocks both pump goroutines.
func (p *pump) Shutdown() error { return p.Close() }

// Close implements Stream.
func (p *pump) Close() error {
	p.once.Do(func() {
		p.shut.Store(1)
		close(p.quit)
		p.closeErr = p.rw.Close()
	})
	return p.closeErr
}

// RemoteAddr implements Stream.
func (p *pump) RemoteAddr() net.Addr { return p.remote }
