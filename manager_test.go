// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newManager(t *testing.T, opts ...taskmsg.ManagerOption) (*taskmsg.Manager, *taskmsg.Scheduler) {
	t.Helper()
	s := startScheduler(t, taskmsg.WithThreads(2))
	m := taskmsg.NewManager(s, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m, s
}

// attach creates a session served by an echoing fake worker.
func attach(t *testing.T, m *taskmsg.Manager) (taskmsg.Serial, transport.Stream) {
	t.Helper()
	a, b := transport.Pipe()
	id, err := m.CreateSession(a)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	fakeWorker(b, echoReply)
	return id, b
}

func TestManagerDistributesTasks(t *testing.T) {
	skipRace(t)
	m, _ := newManager(t)
	id1, _ := attach(t, m)
	id2, _ := attach(t, m)

	n, err := m.EnqueueTasks(tasks(50, 1))
	if err != nil || n != 50 {
		t.Fatalf("EnqueueTasks = %d, %v", n, err)
	}
	eventually(t, "all tasks completed", func() bool { return m.Aggregate().TasksCompleted == 50 })

	a := m.Aggregate()
	if a.Sessions != 2 || a.ActiveSessions != 2 {
		t.Fatalf("aggregate sessions=%d active=%d", a.Sessions, a.ActiveSessions)
	}
	if a.TasksSent != 50 || a.TasksFailed != 0 || a.SuccessRate() != 100 {
		t.Fatalf("aggregate %+v", a)
	}
	st1, ok1 := m.SessionStats(id1)
	st2, ok2 := m.SessionStats(id2)
	if !ok1 || !ok2 || st1.TasksCompleted+st2.TasksCompleted != 50 {
		t.Fatalf("per-session completed %d + %d", st1.TasksCompleted, st2.TasksCompleted)
	}
	if size, _ := m.TaskPoolStats(); size != 0 {
		t.Fatalf("queue size = %d", size)
	}
	eventually(t, "both sessions waiting", func() bool {
		_, waiting := m.TaskPoolStats()
		return waiting == 2
	})
}

func TestManagerSessionInfo(t *testing.T) {
	skipRace(t)
	m, _ := newManager(t)
	id, _ := attach(t, m)

	info, ok := m.SessionInfo(id)
	if !ok || info.ID != id || info.RemoteAddr == "" {
		t.Fatalf("SessionInfo = %+v, %v", info, ok)
	}
	if _, ok := m.SessionInfo(id + 1); ok {
		t.Fatal("SessionInfo found an unknown id")
	}
	if _, ok := m.SessionStats(id + 1); ok {
		t.Fatal("SessionStats found an unknown id")
	}
	if list := m.Sessions(); len(list) != 1 || list[0].ID != id {
		t.Fatalf("Sessions = %+v", list)
	}
}

func TestManagerTerminateAndCleanup(t *testing.T) {
	skipRace(t)
	core, logs := observer.New(zap.InfoLevel)
	m, _ := newManager(t, taskmsg.WithManagerLogger(zap.New(core)))
	id1, _ := attach(t, m)
	id2, _ := attach(t, m)

	if m.TerminateSession(999) {
		t.Fatal("TerminateSession(999) = true")
	}
	if !m.TerminateSession(id1) {
		t.Fatal("TerminateSession returned false for a live session")
	}
	eventually(t, "session 1 finished", func() bool {
		info, _ := m.SessionInfo(id1)
		return info.State.Terminal()
	})
	if m.SessionCount() != 2 || m.ActiveSessionCount() != 1 || !m.HasActiveSession() {
		t.Fatalf("count=%d active=%d", m.SessionCount(), m.ActiveSessionCount())
	}

	if n := m.CleanupCompletedSessions(); n != 1 {
		t.Fatalf("cleanup removed %d, want 1", n)
	}
	if n := m.CleanupCompletedSessions(); n != 0 {
		t.Fatalf("second cleanup removed %d, want 0", n)
	}
	if logs.FilterMessage("completed session").Len() != 1 {
		t.Fatal("cleanup did not log the completed session")
	}
	if _, ok := m.SessionInfo(id1); ok {
		t.Fatal("cleaned session still present")
	}

	m.TerminateAllSessions()
	eventually(t, "no active sessions", func() bool { return !m.HasActiveSession() })
	if info, _ := m.SessionInfo(id2); info.State != taskmsg.StateTerminated {
		t.Fatalf("session 2 state = %v", info.State)
	}
	if m.CleanupCompletedSessions() != 1 || m.SessionCount() != 0 {
		t.Fatalf("SessionCount = %d after cleanup", m.SessionCount())
	}
}

func TestManagerAggregateExcludesRemoved(t *testing.T) {
	skipRace(t)
	m, _ := newManager(t)
	id, _ := attach(t, m)
	m.EnqueueTasks(tasks(4, 1))
	eventually(t, "tasks completed", func() bool { return m.Aggregate().TasksCompleted == 4 })

	m.TerminateSession(id)
	eventually(t, "session finished", func() bool { return !m.HasActiveSession() })
	if a := m.Aggregate(); a.TasksCompleted != 4 || a.ActiveSessions != 0 {
		t.Fatalf("aggregate before cleanup %+v", a)
	}
	m.CleanupCompletedSessions()
	if a := m.Aggregate(); a.Sessions != 0 || a.TasksCompleted != 0 || a.AvgRoundtrip() != 0 {
		t.Fatalf("aggregate after cleanup %+v", a)
	}
}

func TestManagerShutdown(t *testing.T) {
	skipRace(t)
	m, _ := newManager(t)
	attach(t, m)
	attach(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.HasActiveSession() {
		t.Fatal("sessions still active after Shutdown")
	}
	a, _ := transport.Pipe()
	if _, err := m.CreateSession(a); !errors.Is(err, taskmsg.ErrManagerClosed) {
		t.Fatalf("CreateSession after Shutdown: err = %v", err)
	}
	if _, err := m.EnqueueTasks(tasks(1, 1)); !errors.Is(err, taskmsg.ErrQueueClosed) {
		t.Fatalf("EnqueueTasks after Shutdown: err = %v", err)
	}
}

func TestManagerShutdownTimeout(t *testing.T) {
	skipRace(t)
	s := taskmsg.NewScheduler()
	m := taskmsg.NewManager(s)
	a, b := transport.Pipe()
	defer b.Close()
	if _, err := m.CreateSession(a); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	// The scheduler never runs, so the session cannot finish.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown: err = %v, want deadline exceeded", err)
	}
	s.Stop()
}

func TestManagerCreateSessionNil(t *testing.T) {
	m := taskmsg.NewManager(taskmsg.NewScheduler())
	if _, err := m.CreateSession(nil); err == nil {
		t.Fatal("CreateSession(nil) succeeded")
	}
}

func TestManagerLogStatistics(t *testing.T) {
	skipRace(t)
	core, logs := observer.New(zap.InfoLevel)
	m, _ := newManager(t, taskmsg.WithManagerLogger(zap.New(core)))
	attach(t, m)
	m.LogStatistics()
	if logs.FilterMessage("session statistics").Len() != 1 {
		t.Fatal("missing per-session statistics")
	}
	entries := logs.FilterMessage("manager statistics").All()
	if len(entries) != 1 {
		t.Fatal("missing manager statistics")
	}
	if got := entries[0].ContextMap()["sessions"]; got != int64(1) {
		t.Fatalf("sessions field = %v", got)
	}
}
