// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"net"
)

// ListenTCP listens on addr. Accepted connections have Nagle's algorithm
// disabled; each task message is small and latency bound.
func ListenTCP(addr string) (Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	a := newAcceptQueue(l.Addr(), l.Close)
	go a.serve(l, func(c net.Conn) (Stream, error) {
		tc, ok := c.(*net.TCPConn)
		if !ok {
			return Pump(c, c.RemoteAddr()), nil
		}
		_ = tc.SetNoDelay(true)
		return newTCPStream(tc)
	})
	return a, nil
}
