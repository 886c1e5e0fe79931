// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"cmp"
	"context"
	"errors"
	"net"
	"slices"
	"sync"

	"code.hybscloud.com/taskmsg/transport"
	"go.uber.org/zap"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger. Sessions log through a child
// logger carrying their id.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMaxBodySize sets the largest response body sessions accept.
func WithMaxBodySize(n uint32) ManagerOption {
	return func(m *Manager) { m.maxBody = n }
}

// SessionInfo describes one session for monitoring.
type SessionInfo struct {
	ID         Serial
	State      State
	RemoteAddr string
	Stats      SessionStats
}

// Manager owns the task queue shared by all sessions and the table of
// sessions keyed by id.
type Manager struct {
	sched   *Scheduler
	queue   *TaskQueue
	logger  *zap.Logger
	maxBody uint32
	ids     serial

	mu       sync.RWMutex
	sessions map[Serial]*Session
	closed   bool
}

// NewManager creates a manager whose queue wakes sched.
func NewManager(sched *Scheduler, opts ...ManagerOption) *Manager {
	m := &Manager{
		sched:    sched,
		queue:    NewTaskQueue(sched),
		logger:   zap.NewNop(),
		sessions: make(map[Serial]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Queue returns the shared task queue.
func (m *Manager) Queue() *TaskQueue { return m.queue }

// CreateSession starts a session on stream and returns its id.
// The call does not wait for the session to run.
func (m *Manager) CreateSession(stream transport.Stream) (Serial, error) {
	if stream == nil {
		return 0, errors.New("taskmsg: nil stream")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrManagerClosed
	}
	id := m.ids.next()
	s := NewSession(id, NewConn(stream, m.maxBody), m.queue, m.sched,
		WithSessionLogger(m.logger.With(zap.Uint32("session", id))))
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.Uint32("session", id), zap.String("remote", addrString(stream.RemoteAddr())))
	s.Start()
	return id, nil
}

// CleanupCompletedSessions removes sessions in a terminal state, logs their
// final counters and returns how many were removed.
func (m *Manager) CleanupCompletedSessions() int {
	m.mu.Lock()
	var removed []*Session
	for id, s := range m.sessions {
		if s.State().Terminal() {
			removed = append(removed, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(removed, func(a, b *Session) int { return cmp.Compare(a.id, b.id) })
	for _, s := range removed {
		st := s.Stats()
		m.logger.Info("completed session",
			zap.Uint32("session", s.id),
			zap.Stringer("state", s.State()),
			zap.Uint32("sent", st.TasksSent),
			zap.Uint32("completed", st.TasksCompleted),
			zap.Uint32("failed", st.TasksFailed),
			zap.Float64("success_rate", st.SuccessRate()))
	}
	return len(removed)
}

// TerminateSession requests termination of session id without waiting.
// Returns false if no such session exists.
func (m *Manager) TerminateSession(id Serial) bool {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("terminate: session not found", zap.Uint32("session", id))
		return false
	}
	s.RequestTermination()
	return true
}

// TerminateAllSessions requests termination of every session without waiting.
func (m *Manager) TerminateAllSessions() {
	for _, s := range m.snapshot() {
		s.RequestTermination()
	}
}

// Shutdown closes the queue, terminates every session and waits until each
// has finished or ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.queue.Shutdown()
	sessions := m.snapshot()
	for _, s := range sessions {
		s.RequestTermination()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// EnqueueTasks pushes tasks to the shared queue and returns how many were accepted.
func (m *Manager) EnqueueTasks(tasks []Task) (int, error) {
	if m.queue.IsShutdown() {
		return 0, ErrQueueClosed
	}
	return m.queue.PushMany(tasks), nil
}

// TaskPoolStats returns the queue length and the number of waiting sessions.
func (m *Manager) TaskPoolStats() (size, waiting int) {
	return m.queue.Size(), m.queue.WaitingCount()
}

// SessionCount returns the number of sessions in the table, finished or not.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActiveSessionCount returns the number of sessions not yet in a terminal state.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if !s.State().Terminal() {
			n++
		}
	}
	return n
}

// HasActiveSession reports whether any session is still running.
func (m *Manager) HasActiveSession() bool { return m.ActiveSessionCount() > 0 }

// SessionStats returns the counters of session id.
func (m *Manager) SessionStats(id Serial) (SessionStats, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return SessionStats{}, false
	}
	return s.Stats(), true
}

// SessionInfo describes session id.
func (m *Manager) SessionInfo(id Serial) (SessionInfo, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}
	return infoOf(s), true
}

// Sessions describes every session in the table, ordered by id.
func (m *Manager) Sessions() []SessionInfo {
	sessions := m.snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, infoOf(s))
	}
	return out
}

// Aggregate sums the counters of the sessions currently in the table.
// Sessions removed by CleanupCompletedSessions no longer contribute.
func (m *Manager) Aggregate() AggregateStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var a AggregateStats
	for _, s := range m.sessions {
		a.Sessions++
		if !s.State().Terminal() {
			a.ActiveSessions++
		}
		a.add(s.Stats())
	}
	return a
}

// LogStatistics logs every session and a summary line.
func (m *Manager) LogStatistics() {
	for _, info := range m.Sessions() {
		m.logger.Info("session statistics",
			zap.Uint32("session", info.ID),
			zap.Stringer("state", info.State),
			zap.String("remote", info.RemoteAddr),
			zap.Uint32("sent", info.Stats.TasksSent),
			zap.Uint32("completed", info.Stats.TasksCompleted),
			zap.Uint32("failed", info.Stats.TasksFailed),
			zap.Uint64("bytes_sent", info.Stats.BytesSent),
			zap.Uint64("bytes_received", info.Stats.BytesReceived),
			zap.Float64("success_rate", info.Stats.SuccessRate()),
			zap.Duration("avg_roundtrip", info.Stats.AvgRoundtrip()))
	}
	a := m.Aggregate()
	size, waiting := m.TaskPoolStats()
	m.logger.Info("manager statistics",
		zap.Int("sessions", a.Sessions),
		zap.Int("active", a.ActiveSessions),
		zap.Uint64("sent", a.TasksSent),
		zap.Uint64("completed", a.TasksCompleted),
		zap.Uint64("failed", a.TasksFailed),
		zap.Float64("success_rate", a.SuccessRate()),
		zap.Duration("avg_roundtrip", a.AvgRoundtrip()),
		zap.Int("queued", size),
		zap.Int("waiting", waiting))
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return cmp.Compare(a.id, b.id) })
	return out
}

func infoOf(s *Session) SessionInfo {
	return SessionInfo{
		ID:         s.id,
		State:      s.State(),
		RemoteAddr: addrString(s.RemoteAddr()),
		Stats:      s.Stats(),
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
