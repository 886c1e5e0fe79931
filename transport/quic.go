// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

// quicALPN is the application protocol negotiated on QUIC connections.
const quicALPN = "taskmsg"

// ListenQUIC listens for QUIC connections on addr with an ephemeral
// self-signed certificate. Each connection carries one bidirectional stream,
// opened by the listening side.
func ListenQUIC(ctx context.Context, addr string) (Listener, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
		MinVersion:   tls.VersionTLS13,
	}
	l, err := quic.ListenAddr(addr, tlsConf, &quic.Config{KeepAlivePeriod: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	a := newAcceptQueue(l.Addr(), func() error {
		cancel()
		return l.Close()
	})
	go func() {
		for {
			conn, err := l.Accept(ctx)
			if err != nil {
				_ = a.Close()
				return
			}
			st, err := conn.OpenStreamSync(ctx)
			if err != nil {
				_ = conn.CloseWithError(0, "stream open failed")
				continue
			}
			if !a.push(Pump(&quicConn{conn: conn, st: st}, conn.RemoteAddr())) {
				return
			}
		}
	}()
	return a, nil
}

// DialQUIC connects to a QUIC listener and accepts its stream. The stream
// becomes visible once the listener writes the first request.
func DialQUIC(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quicALPN},
		MinVersion:         tls.VersionTLS13,
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{KeepAlivePeriod: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	st, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream accept failed")
		return nil, err
	}
	return &quicConn{conn: conn, st: st}, nil
}

// quicConn binds a stream to its connection so closing one closes both.
type quicConn struct {
	conn quic.Connection
	st   quic.Stream
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.st.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.st.Write(p) }

func (c *quicConn) Close() error {
	c.st.CancelRead(0)
	return errors.Join(c.st.Close(), c.conn.CloseWithError(0, ""))
}

// selfSignedCert generates a short-lived self-signed certificate.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
