// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build windows

package transport

import (
	"context"
	"io"
	"net"

	"github.com/Microsoft/go-winio"
)

// ListenPipe listens on a Windows named pipe such as \\.\pipe\taskmsg.
func ListenPipe(name string) (Listener, error) {
	l, err := winio.ListenPipe(name, &winio.PipeConfig{InputBufferSize: pumpChunk, OutputBufferSize: pumpChunk})
	if err != nil {
		return nil, err
	}
	a := newAcceptQueue(l.Addr(), l.Close)
	go a.serve(l, func(c net.Conn) (Stream, error) {
		return Pump(c, c.RemoteAddr()), nil
	})
	return a, nil
}

// DialPipe connects to a Windows named pipe.
func DialPipe(ctx context.Context, name string) (io.ReadWriteCloser, error) {
	return winio.DialPipeContext(ctx, name)
}
