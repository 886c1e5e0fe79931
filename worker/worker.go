// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker runs skills for a task manager.
//
// A worker dials the manager, then answers requests one at a time: it reads
// a request header and payload, runs the skill named by the tag and writes a
// response header carrying the same task id, followed by the result body.
// Workers use plain blocking I/O; a worker process serves one connection.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/skill"
	"go.uber.org/zap"
)

// DefaultReconnectDelay is the pause between connection attempts.
const DefaultReconnectDelay = time.Second

// Dialer opens a connection to the manager.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(w *Worker) { w.delay = d }
}

// WithMaxBodySize sets the largest request payload accepted.
func WithMaxBodySize(n uint32) Option {
	return func(w *Worker) { w.maxBody = n }
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Connections    uint64
	TasksProcessed uint64
	TasksFailed    uint64
	BytesReceived  uint64
	BytesSent      uint64
}

// Worker serves task requests with a skill registry.
type Worker struct {
	dial     Dialer
	registry *skill.Registry
	logger   *zap.Logger
	delay    time.Duration
	maxBody  uint32

	connections    atomix.Uint64
	tasksProcessed atomix.Uint64
	tasksFailed    atomix.Uint64
	bytesReceived  atomix.Uint64
	bytesSent      atomix.Uint64
}

// New creates a worker that connects with dial and runs skills from registry.
func New(dial Dialer, registry *skill.Registry, opts ...Option) *Worker {
	w := &Worker{
		dial:     dial,
		registry: registry,
		logger:   zap.NewNop(),
		delay:    DefaultReconnectDelay,
		maxBody:  taskmsg.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run connects and serves until ctx is done, reconnecting after every
// failure. It returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	for {
		rw, err := w.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", w.delay))
		} else {
			w.connections.Add(1)
			w.logger.Info("connected to manager")
			err = w.Serve(ctx, rw)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				w.logger.Warn("connection lost", zap.Error(err))
			} else {
				w.logger.Info("manager closed the connection")
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
		}
	}
}

// Serve answers requests on rw until the peer closes it, an I/O error
// occurs or ctx is done. rw is closed on return. A clean close by the peer
// returns nil.
func (w *Worker) Serve(ctx context.Context, rw io.ReadWriteCloser) error {
	stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
	defer func() {
		stop()
		_ = rw.Close()
	}()

	header := make([]byte, taskmsg.HeaderSize)
	for {
		if _, err := io.ReadFull(rw, header); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read header: %w", err)
		}
		req := taskmsg.ParseHeader(header)
		if req.BodySize > w.maxBody {
			return fmt.Errorf("%w: %d > %d", taskmsg.ErrBodyTooLarge, req.BodySize, w.maxBody)
		}
		payload := make([]byte, req.BodySize)
		if _, err := io.ReadFull(rw, payload); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		w.bytesReceived.Add(uint64(taskmsg.HeaderSize) + uint64(req.BodySize))

		tag, body, err := w.registry.Process(req.Tag, payload)
		if err != nil {
			w.tasksFailed.Add(1)
			w.logger.Debug("task failed", zap.Uint32("task", req.TaskID), zap.Uint32("skill", req.Tag), zap.Error(err))
		}
		resp := taskmsg.WireHeader{TaskID: req.TaskID, Tag: tag, BodySize: uint32(len(body))}
		msg := append(resp.Append(make([]byte, 0, taskmsg.HeaderSize+len(body))), body...)
		if _, err := rw.Write(msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write response: %w", err)
		}
		w.bytesSent.Add(uint64(len(msg)))
		w.tasksProcessed.Add(1)
	}
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Connections:    w.connections.Load(),
		TasksProcessed: w.tasksProcessed.Load(),
		TasksFailed:    w.tasksFailed.Load(),
		BytesReceived:  w.bytesReceived.Load(),
		BytesSent:      w.bytesSent.Load(),
	}
}
