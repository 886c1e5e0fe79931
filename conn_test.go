// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/transport"
)

func TestConnSecondOperationPanics(t *testing.T) {
	skipRace(t)
	a, b := transport.Pipe()
	defer b.Close()
	c := taskmsg.NewConn(a, 0)
	defer c.Close()

	_, read := taskmsg.Step(c.Read(make([]byte, 4)))
	if _, _, err := taskmsg.Advance(read); !iox.IsWouldBlock(err) {
		t.Fatalf("read on empty pipe: err = %v, want ErrWouldBlock", err)
	}
	if !c.InFlight() {
		t.Fatal("InFlight = false with a pending read")
	}

	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.Is(err, taskmsg.ErrOperationInFlight) {
				t.Fatalf("panic = %v, want ErrOperationInFlight", r)
			}
		}()
		_, write := taskmsg.Step(c.Write([]byte("x")))
		taskmsg.Advance(write)
	}()

	if _, err := transport.Blocking(b).Write([]byte("ping")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	var (
		result kont.Either[error, int]
		err    error
	)
	for read != nil {
		result, read, err = taskmsg.Advance(read)
		if err != nil && !iox.IsWouldBlock(err) {
			t.Fatalf("Advance: %v", err)
		}
	}
	if n, ok := result.GetRight(); !ok || n != 4 {
		t.Fatalf("read result %v, want Right(4)", result)
	}
	if c.InFlight() {
		t.Fatal("InFlight = true after completion")
	}
}

func TestConnWriteRead(t *testing.T) {
	skipRace(t)
	a, b := transport.Pipe()
	c := taskmsg.NewConn(a, 0)
	defer c.Close()
	peer := transport.Blocking(b)
	defer peer.Close()

	msg := bytes.Repeat([]byte("taskmsg"), 1000)
	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(msg))
		io.ReadFull(peer, buf)
		peer.Write(buf)
		got <- buf
	}()

	n, err := taskmsg.Exec(c.Write(msg))
	if err != nil || n != len(msg) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	back := make([]byte, len(msg))
	if _, err := taskmsg.Exec(c.Read(back)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(<-got, msg) || !bytes.Equal(back, msg) {
		t.Fatal("payload corrupted in transit")
	}
}

func TestConnPeerClosed(t *testing.T) {
	skipRace(t)
	a, b := transport.Pipe()
	c := taskmsg.NewConn(a, 0)
	defer c.Close()
	b.Close()

	_, err := taskmsg.Exec(c.ReadHeader())
	if !taskmsg.IsDisconnect(err) {
		t.Fatalf("ReadHeader after peer close: err = %v, want a disconnect", err)
	}
	if c.InFlight() {
		t.Fatal("InFlight = true after a failed read")
	}
}

func TestConnShutdownInterruptsRead(t *testing.T) {
	skipRace(t)
	a, b := transport.Pipe()
	defer b.Close()
	c := taskmsg.NewConn(a, 0)
	defer c.Close()

	_, susp := taskmsg.Step(c.ReadHeader())
	taskmsg.Advance(susp)
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	result, _, err := taskmsg.Advance(susp)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if e, ok := result.GetLeft(); !ok || !taskmsg.IsDisconnect(e) {
		t.Fatalf("got %v, want a disconnect", result)
	}
}

func TestConnMaxBodySize(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()
	defer b.Close()
	if got := taskmsg.NewConn(a, 0).MaxBodySize(); got != taskmsg.DefaultMaxBodySize {
		t.Fatalf("default MaxBodySize = %d", got)
	}
	if got := taskmsg.NewConn(a, 8).MaxBodySize(); got != 8 {
		t.Fatalf("MaxBodySize = %d, want 8", got)
	}
}
