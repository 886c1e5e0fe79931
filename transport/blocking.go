// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"io"

	"code.hybscloud.com/iox"
)

// Blocking adapts a Stream to io.ReadWriteCloser. Reads and writes wait
// past iox.ErrWouldBlock with adaptive backoff (iox.Backoff).
func Blocking(s Stream) io.ReadWriteCloser {
	return blocking{s: s}
}

type blocking struct {
	s Stream
}

func (b blocking) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var bo iox.Backoff
	for {
		n, err := b.s.TryRead(p)
		if n > 0 || !iox.IsWouldBlock(err) {
			if iox.IsWouldBlock(err) {
				err = nil
			}
			return n, err
		}
		bo.Wait()
	}
}

func (b blocking) Write(p []byte) (int, error) {
	var (
		bo  iox.Backoff
		off int
	)
	for off < len(p) {
		n, err := b.s.TryWrite(p[off:])
		off += n
		if err != nil && !iox.IsWouldBlock(err) {
			return off, err
		}
		if n == 0 {
			bo.Wait()
			continue
		}
		bo.Reset()
	}
	return off, nil
}

func (b blocking) Close() error { return b.s.Close() }
