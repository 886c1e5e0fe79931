// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !windows

package transport

import (
	"context"
	"errors"
	"io"
)

// ErrPipeUnsupported is returned by the named pipe transport off Windows.
var ErrPipeUnsupported = errors.New("transport: named pipes require windows")

// ListenPipe is only available on Windows.
func ListenPipe(string) (Listener, error) { return nil, ErrPipeUnsupported }

// DialPipe is only available on Windows.
func DialPipe(context.Context, string) (io.ReadWriteCloser, error) {
	return nil, ErrPipeUnsupported
}
