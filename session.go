// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"errors"
	"net"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
	"go.uber.org/zap"
)

// State is a session lifecycle state.
type State uint32

const (
	StateInitializing State = iota
	StateActive
	StateCompleting
	StateTerminated
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateTerminated:
		return "terminated"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether s is final.
func (s State) Terminal() bool { return s == StateTerminated || s == StateError }

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// iteration is the loop state of a session protocol:
// Left continues with the next task, Right finishes.
type iteration = kont.Either[struct{}, struct{}]

var (
	proceed  = kont.Left[struct{}, struct{}](struct{}{})
	finished = kont.Right[struct{}, struct{}](struct{}{})
)

// Session delivers tasks over one worker connection.
//
// Its protocol repeatedly dequeues a task, writes the request header and
// payload, reads the response header and body, and then commits the task or
// requeues it when the response does not match. Every suspension goes
// through the scheduler; a session never blocks a thread.
type Session struct {
	id     Serial
	conn   *Conn
	queue  *TaskQueue
	sched  *Scheduler
	logger *zap.Logger

	state     atomix.Uint32
	terminate atomix.Uint32
	started   atomix.Uint32
	stats     sessionCounters

	// held is owned by the protocol, which runs one step at a time.
	held    Task
	holding bool

	done chan struct{}
}

// NewSession binds a session to conn and the shared queue. Call Start to
// run it on sched.
func NewSession(id Serial, conn *Conn, queue *TaskQueue, sched *Scheduler, opts ...SessionOption) *Session {
	s := &Session{
		id:     id,
		conn:   conn,
		queue:  queue,
		sched:  sched,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stats.start = time.Now()
	return s
}

// Start spawns the session protocol. Only the first call has an effect.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(0, 1) {
		return
	}
	Spawn(s.sched, Defer(s.protocol), s.finish)
}

// ID returns the session identifier.
func (s *Session) ID() Serial { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats { return s.stats.snapshot() }

// RemoteAddr returns the worker address, or nil if unknown.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Done is closed once the session reached a terminal state and released
// its connection.
func (s *Session) Done() <-chan struct{} { return s.done }

// RequestTermination asks the session to stop issuing new sends. The state
// moves to Completing and the connection is shut down so pending I/O fails
// promptly. A task awaiting its response is requeued.
func (s *Session) RequestTermination() {
	if !s.terminate.CompareAndSwap(0, 1) {
		return
	}
	if s.transition(StateCompleting) {
		s.logger.Info("session termination requested")
	}
	if err := s.conn.Shutdown(); err != nil {
		s.logger.Debug("connection shutdown", zap.Error(err))
	}
	s.sched.Wake()
}

func (s *Session) terminationRequested() bool { return s.terminate.Load() != 0 }

// transition moves to next unless the session is already terminal.
func (s *Session) transition(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur).Terminal() {
			return false
		}
		if s.state.CompareAndSwap(cur, uint32(next)) {
			return true
		}
	}
}

func (s *Session) protocol() kont.Eff[struct{}] {
	return Loop(struct{}{}, func(struct{}) kont.Eff[iteration] {
		s.state.CompareAndSwap(uint32(StateInitializing), uint32(StateActive))
		return kont.Bind(s.queue.DequeueUntil(s.terminationRequested), func(t Task) kont.Eff[iteration] {
			return s.guard(func() kont.Eff[iteration] { return s.deliver(t) })
		})
	})
}

// deliver sends t and awaits its response.
func (s *Session) deliver(t Task) kont.Eff[iteration] {
	if !t.Valid() {
		return kont.Pure(finished)
	}
	if s.terminationRequested() {
		s.requeue(t)
		return kont.Pure(finished)
	}
	s.held, s.holding = t, true
	start := time.Now()

	header := t.Header().Append(make([]byte, 0, HeaderSize))
	return WriteBind(s.conn, header, func(n int) kont.Eff[iteration] {
		s.stats.bytesSent.Add(uint64(n))
		return s.sendPayload(t, func() kont.Eff[iteration] {
			s.stats.tasksSent.Add(1)
			return ReadHeaderBind(s.conn, func(resp WireHeader) kont.Eff[iteration] {
				s.stats.bytesReceived.Add(HeaderSize)
				return s.receiveBody(resp, func() kont.Eff[iteration] {
					return s.guard(func() kont.Eff[iteration] { return s.settle(t, resp, start) })
				})
			})
		})
	})
}

func (s *Session) sendPayload(t Task, next func() kont.Eff[iteration]) kont.Eff[iteration] {
	if len(t.Payload) == 0 {
		return next()
	}
	return WriteBind(s.conn, t.Payload, func(n int) kont.Eff[iteration] {
		s.stats.bytesSent.Add(uint64(n))
		return next()
	})
}

func (s *Session) receiveBody(resp WireHeader, next func() kont.Eff[iteration]) kont.Eff[iteration] {
	if resp.BodySize == 0 {
		return next()
	}
	return ReadBodyBind(s.conn, resp.BodySize, func(body []byte) kont.Eff[iteration] {
		s.stats.bytesReceived.Add(uint64(len(body)))
		return next()
	})
}

// settle validates a response against the task it answers.
func (s *Session) settle(t Task, resp WireHeader, start time.Time) kont.Eff[iteration] {
	switch {
	case resp.TaskID != t.ID:
		s.logger.Warn("response task id mismatch",
			zap.Uint32("task", t.ID), zap.Uint32("response", resp.TaskID))
		s.fail()
	case resp.Tag != t.Tag:
		s.logger.Warn("response tag mismatch",
			zap.Uint32("task", t.ID), zap.Uint32("tag", t.Tag), zap.Uint32("response_tag", resp.Tag))
		s.fail()
	default:
		s.stats.commit(time.Since(start))
		s.held, s.holding = Task{}, false
	}
	return kont.Pure(proceed)
}

// guard recovers a panic raised while handling one task: the held task is
// requeued as failed and the loop continues.
func (s *Session) guard(f func() kont.Eff[iteration]) (eff kont.Eff[iteration]) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task processing panicked", zap.Any("panic", r))
			s.fail()
			eff = kont.Pure(proceed)
		}
	}()
	return f()
}

// fail records a failure for the held task and puts it back in the queue.
func (s *Session) fail() {
	if !s.holding {
		return
	}
	t := s.held
	s.held, s.holding = Task{}, false
	s.stats.tasksFailed.Add(1)
	s.requeue(t)
}

func (s *Session) requeue(t Task) {
	if !s.queue.PushOne(t) {
		s.logger.Warn("task dropped", zap.Uint32("task", t.ID), zap.Error(ErrQueueClosed))
	}
}

// finish resolves the protocol outcome into a terminal state. A panic
// while a task was held fails that task and restarts the protocol.
func (s *Session) finish(result kont.Either[error, struct{}]) {
	err, failed := result.GetLeft()
	switch {
	case !failed:
		s.transition(StateTerminated)
	case errors.Is(err, ErrPanicked) && s.holding:
		s.logger.Error("task processing panicked", zap.Uint32("task", s.held.ID), zap.Error(err))
		s.fail()
		if !s.terminationRequested() {
			Spawn(s.sched, Defer(s.protocol), s.finish)
			return
		}
		s.transition(StateTerminated)
	case errors.Is(err, ErrPanicked):
		s.transition(StateError)
		s.logger.Error("session protocol panicked", zap.Error(err))
	case errors.Is(err, ErrCanceled):
		s.fail()
		s.transition(StateTerminated)
		s.logger.Info("session canceled")
	case IsDisconnect(err):
		s.fail()
		s.transition(StateTerminated)
		s.logger.Info("session disconnected", zap.Error(err))
	default:
		s.fail()
		s.transition(StateError)
		s.logger.Error("session transport fault", zap.Error(err))
	}
	s.finalize()
}

func (s *Session) finalize() {
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("connection close", zap.Error(err))
	}
	st := s.Stats()
	s.logger.Info("session finished",
		zap.Stringer("state", s.State()),
		zap.Uint32("sent", st.TasksSent),
		zap.Uint32("completed", st.TasksCompleted),
		zap.Uint32("failed", st.TasksFailed),
		zap.Float64("success_rate", st.SuccessRate()),
		zap.Duration("avg_roundtrip", st.AvgRoundtrip()),
		zap.Duration("total_roundtrip", st.TotalRoundtrip),
		zap.Duration("last_roundtrip", st.LastRoundtrip),
		zap.Duration("uptime", st.Uptime()))
	close(s.done)
}
