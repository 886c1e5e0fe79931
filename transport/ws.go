// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WSPath is the HTTP path workers upgrade on.
	WSPath = "/taskmsg"

	// Time allowed to write the close frame to the peer.
	wsCloseWait = time.Second
)

// ListenWS serves WebSocket upgrades on addr. Every binary message is a
// chunk of the byte stream; message boundaries carry no meaning.
func ListenWS(addr string) (Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{ReadHeaderTimeout: 10 * time.Second}
	a := newAcceptQueue(l.Addr(), srv.Close)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  pumpChunk,
		WriteBufferSize: pumpChunk,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a.push(Pump(newWSConn(ws), ws.RemoteAddr()))
	})
	srv.Handler = mux
	go func() {
		_ = srv.Serve(l)
		_ = a.Close()
	}()
	return a, nil
}

// DialWS connects to a WebSocket listener. addr is host:port or a full
// ws:// URL.
func DialWS(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + addr + WSPath
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}

// wsConn presents a WebSocket connection as a byte stream.
type wsConn struct {
	ws *websocket.Conn
	r  io.Reader

	wmu  sync.Mutex
	once sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				return 0, wsError(err)
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, wsError(err)
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, wsError(err)
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
		err = c.ws.Close()
	})
	return err
}

// wsError maps an orderly close to io.EOF.
func wsError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}
