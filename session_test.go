// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/transport"
)

func newSession(t *testing.T, s *taskmsg.Scheduler, q *taskmsg.TaskQueue, maxBody uint32) (*taskmsg.Session, transport.Stream) {
	t.Helper()
	a, b := transport.Pipe()
	sess := taskmsg.NewSession(1, taskmsg.NewConn(a, maxBody), q, s)
	return sess, b
}

func waitDone(t *testing.T, sess *taskmsg.Session) {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("session still %v", sess.State())
	}
}

func TestSessionDeliversTasks(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)

	var (
		mu      sync.Mutex
		attempt = map[uint32]int{}
	)
	fakeWorker(peer, func(req taskmsg.WireHeader, payload []byte) reply {
		mu.Lock()
		attempt[req.TaskID]++
		first := attempt[req.TaskID] == 1
		mu.Unlock()
		r := echoReply(req, payload)
		if req.TaskID == 2 && first {
			r.header.Tag++
		}
		return r
	})

	q.PushMany(tasks(3, 7))
	sess.Start()
	sess.Start()
	eventually(t, "three completed tasks", func() bool { return sess.Stats().TasksCompleted == 3 })

	st := sess.Stats()
	if st.TasksSent != 4 || st.TasksFailed != 1 {
		t.Fatalf("sent=%d failed=%d, want 4 and 1", st.TasksSent, st.TasksFailed)
	}
	if st.TimedTasks != 3 {
		t.Fatalf("TimedTasks = %d, want 3", st.TimedTasks)
	}
	// Each attempt carries a header and a 2-byte payload in both directions.
	if want := uint64(4 * (taskmsg.HeaderSize + 2)); st.BytesSent != want || st.BytesReceived != want {
		t.Fatalf("bytes sent=%d received=%d, want %d", st.BytesSent, st.BytesReceived, want)
	}
	if rate := st.SuccessRate(); rate != 75 {
		t.Fatalf("SuccessRate = %v, want 75", rate)
	}
	if sess.State() != taskmsg.StateActive {
		t.Fatalf("state = %v, want active", sess.State())
	}

	sess.RequestTermination()
	waitDone(t, sess)
	if sess.State() != taskmsg.StateTerminated {
		t.Fatalf("state = %v, want terminated", sess.State())
	}
	if q.Size() != 0 {
		t.Fatalf("queue holds %d tasks, want 0", q.Size())
	}
}

func TestSessionIDMismatchRequeues(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)

	var once sync.Once
	fakeWorker(peer, func(req taskmsg.WireHeader, payload []byte) reply {
		r := echoReply(req, payload)
		once.Do(func() { r.header.TaskID += 100 })
		return r
	})
	q.PushOne(taskmsg.Task{ID: 1, Tag: 1})
	sess.Start()
	eventually(t, "task committed", func() bool { return sess.Stats().TasksCompleted == 1 })
	if st := sess.Stats(); st.TasksSent != 2 || st.TasksFailed != 1 {
		t.Fatalf("sent=%d failed=%d, want 2 and 1", st.TasksSent, st.TasksFailed)
	}
	sess.RequestTermination()
	waitDone(t, sess)
}

func TestSessionDisconnectRequeuesHeldTask(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)

	go func() {
		rw := transport.Blocking(peer)
		buf := make([]byte, taskmsg.HeaderSize+2)
		io.ReadFull(rw, buf)
		rw.Close()
	}()
	q.PushOne(taskmsg.Task{ID: 5, Tag: 1, Payload: []byte("hi")})
	sess.Start()
	waitDone(t, sess)

	if sess.State() != taskmsg.StateTerminated {
		t.Fatalf("state = %v, want terminated", sess.State())
	}
	st := sess.Stats()
	if st.TasksSent != 1 || st.TasksFailed != 1 || st.TasksCompleted != 0 {
		t.Fatalf("stats %+v", st)
	}
	if q.Size() != 1 {
		t.Fatalf("queue holds %d tasks, want the requeued one", q.Size())
	}
	if task := mustDequeue(t, q); task.ID != 5 {
		t.Fatalf("requeued task %d, want 5", task.ID)
	}
}

func TestSessionBodyTooLarge(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 16)

	fakeWorker(peer, func(req taskmsg.WireHeader, _ []byte) reply {
		return reply{
			header: taskmsg.WireHeader{TaskID: req.TaskID, Tag: req.Tag, BodySize: 1 << 20},
		}
	})
	q.PushOne(taskmsg.Task{ID: 9, Tag: 2})
	sess.Start()
	waitDone(t, sess)

	if sess.State() != taskmsg.StateError {
		t.Fatalf("state = %v, want error", sess.State())
	}
	if st := sess.Stats(); st.TasksFailed != 1 {
		t.Fatalf("TasksFailed = %d, want 1", st.TasksFailed)
	}
	if q.Size() != 1 {
		t.Fatalf("queue holds %d tasks, want 1", q.Size())
	}
}

func TestSessionTerminateWhileIdle(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)
	defer peer.Close()

	if sess.State() != taskmsg.StateInitializing {
		t.Fatalf("state before Start = %v", sess.State())
	}
	sess.Start()
	eventually(t, "session waiting for work", func() bool { return q.WaitingCount() == 1 })
	if sess.State() != taskmsg.StateActive {
		t.Fatalf("state = %v, want active", sess.State())
	}

	sess.RequestTermination()
	sess.RequestTermination()
	waitDone(t, sess)
	if sess.State() != taskmsg.StateTerminated {
		t.Fatalf("state = %v, want terminated", sess.State())
	}
	if q.WaitingCount() != 0 {
		t.Fatalf("waiter slot left behind: %d", q.WaitingCount())
	}
	if st := sess.Stats(); st.TasksSent != 0 || st.SuccessRate() != 0 || st.AvgRoundtrip() != 0 {
		t.Fatalf("idle session stats %+v", st)
	}
}

func TestSessionQueueShutdown(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)
	defer peer.Close()

	sess.Start()
	eventually(t, "session waiting for work", func() bool { return q.WaitingCount() == 1 })
	q.Shutdown()
	waitDone(t, sess)
	if sess.State() != taskmsg.StateTerminated {
		t.Fatalf("state = %v, want terminated", sess.State())
	}
}

func TestSessionSchedulerStopCancels(t *testing.T) {
	skipRace(t)
	s := taskmsg.NewScheduler()
	s.Start()
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)
	defer peer.Close()

	sess.Start()
	eventually(t, "session waiting for work", func() bool { return q.WaitingCount() == 1 })
	s.Stop()
	waitDone(t, sess)
	if sess.State() != taskmsg.StateTerminated {
		t.Fatalf("state = %v, want terminated", sess.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[taskmsg.State]string{
		taskmsg.StateInitializing: "initializing",
		taskmsg.StateActive:       "active",
		taskmsg.StateCompleting:   "completing",
		taskmsg.StateTerminated:   "terminated",
		taskmsg.StateError:        "error",
		taskmsg.State(99):         "unknown",
	}
	for st, want := range cases {
		if st.String() != want {
			t.Fatalf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
	if !taskmsg.StateTerminated.Terminal() || !taskmsg.StateError.Terminal() {
		t.Fatal("final states not terminal")
	}
	if taskmsg.StateActive.Terminal() || taskmsg.StateCompleting.Terminal() {
		t.Fatal("running states reported terminal")
	}
}

func TestSessionRecoversTaskPanic(t *testing.T) {
	skipRace(t)
	cases := []struct {
		name    string
		panicAt int32
	}{
		{"first attempt", 1},
		{"after suspension", 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := startScheduler(t)
			q := taskmsg.NewTaskQueue(s)
			a, peer := transport.Pipe()
			stream := &faultyStream{Stream: a, panicAt: c.panicAt}
			sess := taskmsg.NewSession(1, taskmsg.NewConn(stream, 0), q, s)
			fakeWorker(peer, echoReply)

			q.PushOne(taskmsg.Task{ID: 42, Tag: 1, Payload: []byte("x")})
			sess.Start()
			eventually(t, "task 42 committed", func() bool { return sess.Stats().TasksCompleted == 1 })

			st := sess.Stats()
			if st.TasksSent != 2 || st.TasksFailed != 1 {
				t.Fatalf("sent=%d failed=%d, want 2 and 1", st.TasksSent, st.TasksFailed)
			}
			if sess.State() != taskmsg.StateActive {
				t.Fatalf("state = %v, want active", sess.State())
			}
			if q.Size() != 0 {
				t.Fatalf("queue holds %d tasks, want 0", q.Size())
			}

			sess.RequestTermination()
			waitDone(t, sess)
			if sess.State() != taskmsg.StateTerminated {
				t.Fatalf("state = %v, want terminated", sess.State())
			}
		})
	}
}

func TestSessionTransportCallsSerialized(t *testing.T) {
	skipRace(t)
	s := startScheduler(t, taskmsg.WithThreads(4))
	q := taskmsg.NewTaskQueue(s)
	a, peer := transport.Pipe()
	stream := &overlapStream{Stream: a}
	sess := taskmsg.NewSession(1, taskmsg.NewConn(stream, 0), q, s)
	fakeWorker(peer, echoReply)

	const n = 200
	q.PushMany(tasks(n, 3))
	sess.Start()
	eventually(t, "all tasks committed", func() bool { return sess.Stats().TasksCompleted == n })
	if stream.overlap.Load() {
		t.Fatal("two transport calls overlapped on one session")
	}
	if stream.calls.Load() < 4*n {
		t.Fatalf("only %d transport calls for %d tasks", stream.calls.Load(), n)
	}
	sess.RequestTermination()
	waitDone(t, sess)
}

func TestSessionCountsSentAfterWrites(t *testing.T) {
	skipRace(t)
	s := startScheduler(t)
	q := taskmsg.NewTaskQueue(s)
	sess, peer := newSession(t, s, q, 0)
	peer.Close()

	q.PushOne(taskmsg.Task{ID: 3, Tag: 1, Payload: []byte("abc")})
	sess.Start()
	waitDone(t, sess)
	st := sess.Stats()
	if st.TasksSent != 0 || st.TasksFailed != 1 || st.BytesSent != 0 {
		t.Fatalf("stats %+v, want nothing sent and one failure", st)
	}
	if sess.State() != taskmsg.StateTerminated {
		t.Fatalf("state = %v, want terminated", sess.State())
	}
	if q.Size() != 1 {
		t.Fatalf("queue holds %d tasks, want 1", q.Size())
	}
}
