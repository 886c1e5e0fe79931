// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package transport

import "net"

func newTCPStream(c *net.TCPConn) (Stream, error) {
	return Pump(c, c.RemoteAddr()), nil
}
