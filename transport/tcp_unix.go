// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// tcpStream issues read(2) and write(2) directly on the non-blocking socket
// the runtime already holds, so an attempt never parks a goroutine.
type tcpStream struct {
	c    *net.TCPConn
	raw  syscall.RawConn
	shut atomix.Uint32
}

func newTCPStream(c *net.TCPConn) (Stream, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &tcpStream{c: c, raw: raw}, nil
}

func (s *tcpStream) TryRead(p []byte) (int, error) {
	if s.shut.Load() != 0 {
		return 0, ErrShutdown
	}
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n     int
		errno error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		n, errno = syscall.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	switch {
	case errno == nil && n == 0:
		return 0, io.EOF
	case errno != nil:
		return 0, mapErrno("read", errno)
	}
	return n, nil
}

func (s *tcpStream) TryWrite(p []byte) (int, error) {
	if s.shut.Load() != 0 {
		return 0, ErrShutdown
	}
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n     int
		errno error
	)
	err := s.raw.Write(func(fd uintptr) bool {
		n, errno = syscall.Write(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if errno != nil {
		return 0, mapErrno("write", errno)
	}
	return n, nil
}

func (s *tcpStream) Shutdown() error {
	if !s.shut.CompareAndSwap(0, 1) {
		return nil
	}
	return errors.Join(s.c.CloseRead(), s.c.CloseWrite())
}

func (s *tcpStream) Close() error {
	s.shut.Store(1)
	return s.c.Close()
}

func (s *tcpStream) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

func mapErrno(op string, errno error) error {
	switch {
	case errors.Is(errno, syscall.EAGAIN), errors.Is(errno, syscall.EINTR):
		return iox.ErrWouldBlock
	}
	return os.NewSyscallError(op, errno)
}
