// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskmsg distributes tasks from a single manager process to
// connected workers over non-blocking byte streams, using algebraic
// effects on [code.hybscloud.com/kont] for every suspension point.
//
// # Architecture
//
//   - Scheduler: N goroutines locked to OS threads drain a shared list of
//     [PendingOperation] values, probe each without blocking and resume the
//     ones that are ready. See [Scheduler].
//   - Awaitable operations: socket reads and writes ([Conn]) and task
//     dequeues ([TaskQueue]) are kont effects implementing [Awaitable].
//     TryComplete returns [code.hybscloud.com/iox.ErrWouldBlock] at the I/O
//     boundary; the driver then registers the suspension with the scheduler.
//   - Task queue: producers push synchronously, consumers suspend on
//     [TaskQueue.Dequeue]. Tasks are handed directly to the oldest waiter.
//   - Session: one protocol per worker connection. It dequeues a task, writes
//     a [WireHeader] and the payload, reads the response, then commits or
//     requeues. See [Session].
//   - Manager: owns the queue and the session table. See [Manager].
//
// # API Topologies
//
//   - Operations: [Conn.Write], [Conn.Read], [Conn.ReadHeader],
//     [TaskQueue.Dequeue], [TaskQueue.DequeueUntil].
//   - Cont-world fused helpers: [WriteThen], [WriteBind], [ReadBind],
//     [ReadHeaderBind], [ReadBodyBind], [DequeueBind], [AcceptBind].
//   - Recursive: [Loop] for iterative protocols.
//
// # Integration
//
//   - Stepping: [Step] and [Advance] evaluate a protocol one effect at a time.
//   - Scheduled: [Spawn] runs a protocol on a [Scheduler].
//   - Blocking: [Exec] waits past would-block boundaries with adaptive backoff.
//
// # Example
//
//	sched := taskmsg.NewScheduler(taskmsg.WithThreads(2))
//	sched.Start()
//	defer sched.Stop()
//
//	m := taskmsg.NewManager(sched)
//	m.EnqueueTasks([]taskmsg.Task{{ID: 1, Tag: 1, Payload: []byte("hello")}})
//	id, err := m.CreateSession(stream)
package taskmsg
