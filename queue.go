// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"slices"
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Waker is notified when a suspended consumer becomes ready.
// *Scheduler implements Waker.
type Waker interface {
	Wake()
}

// Producer is the contract a task generation subsystem feeds.
type Producer interface {
	PushOne(t Task) bool
	PushMany(tasks []Task) int
	Size() int
	WaitingCount() int
}

var _ Producer = (*TaskQueue)(nil)

// waiter is a consumer slot. filled is set once task holds the delivery,
// which is the zero Task after shutdown.
type waiter struct {
	task   Task
	filled bool
}

// dequeueState tracks one Dequeue across attempts.
type dequeueState struct {
	w *waiter
}

// TaskQueue is a FIFO of tasks whose consumers suspend while it is empty.
//
// Pushes hand a task straight to the oldest waiting consumer when there is
// one; otherwise the task is appended. Waiters are served in registration
// order. After Shutdown every waiting and every later Dequeue yields the
// zero Task.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   []Task
	head    int
	waiters []*waiter
	closed  bool
	waker   Waker
}

// NewTaskQueue creates an empty queue. waker may be nil.
func NewTaskQueue(waker Waker) *TaskQueue {
	return &TaskQueue{waker: waker}
}

// PushOne adds t. Returns false if t is the sentinel or the queue is shut down.
func (q *TaskQueue) PushOne(t Task) bool {
	if !t.Valid() {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	handed := q.handOff(t)
	if !handed {
		q.tasks = append(q.tasks, t)
	}
	q.mu.Unlock()
	if handed {
		q.wake()
	}
	return true
}

// PushMany adds every valid task in order and returns how many were accepted.
func (q *TaskQueue) PushMany(tasks []Task) int {
	accepted, handed := 0, 0
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	for _, t := range tasks {
		if !t.Valid() {
			continue
		}
		accepted++
		if q.handOff(t) {
			handed++
			continue
		}
		q.tasks = append(q.tasks, t)
	}
	q.mu.Unlock()
	if handed > 0 {
		q.wake()
	}
	return accepted
}

// Dequeue returns a protocol step taking the next task.
func (q *TaskQueue) Dequeue() kont.Eff[Task] {
	return q.DequeueUntil(nil)
}

// DequeueUntil is Dequeue that also yields the zero Task as soon as stop
// reports true, withdrawing any waiter slot it registered. stop may be nil.
func (q *TaskQueue) DequeueUntil(stop func() bool) kont.Eff[Task] {
	return kont.Perform(Dequeue{q: q, st: &dequeueState{}, stop: stop})
}

// Shutdown closes the queue and resolves every waiter with the zero Task.
// Tasks still queued stay counted by Size but are no longer handed out.
func (q *TaskQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	n := len(q.waiters)
	for i, w := range q.waiters {
		w.task, w.filled = Task{}, true
		q.waiters[i] = nil
	}
	q.waiters = nil
	q.mu.Unlock()
	if n > 0 {
		q.wake()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (q *TaskQueue) IsShutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Size returns the number of queued tasks.
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) - q.head
}

// WaitingCount returns the number of suspended consumers.
func (q *TaskQueue) WaitingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// tryDequeue is the non-blocking attempt behind Dequeue.
func (q *TaskQueue) tryDequeue(st *dequeueState, stop func() bool) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w := st.w; w != nil {
		if w.filled {
			st.w = nil
			return w.task, nil
		}
		if stop != nil && stop() {
			q.removeWaiter(w)
			st.w = nil
			return Task{}, nil
		}
		return Task{}, iox.ErrWouldBlock
	}
	if q.closed || (stop != nil && stop()) {
		return Task{}, nil
	}
	if len(q.tasks) > q.head {
		return q.pop(), nil
	}
	st.w = &waiter{}
	q.waiters = append(q.waiters, st.w)
	return Task{}, iox.ErrWouldBlock
}

// cancel withdraws the slot of st. A task already delivered to it returns
// to the queue head so it is not lost.
func (q *TaskQueue) cancel(st *dequeueState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w := st.w
	if w == nil {
		return
	}
	st.w = nil
	if !w.filled {
		q.removeWaiter(w)
		return
	}
	if w.task.Valid() {
		q.pushFront(w.task)
	}
}

func (q *TaskQueue) handOff(t Task) bool {
	if len(q.waiters) == 0 {
		return false
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	w.task, w.filled = t, true
	return true
}

func (q *TaskQueue) pop() Task {
	t := q.tasks[q.head]
	q.tasks[q.head] = Task{}
	q.head++
	if q.head == len(q.tasks) {
		q.tasks, q.head = q.tasks[:0], 0
	} else if q.head >= 1024 && q.head*2 >= len(q.tasks) {
		n := copy(q.tasks, q.tasks[q.head:])
		clear(q.tasks[n:])
		q.tasks, q.head = q.tasks[:n], 0
	}
	return t
}

func (q *TaskQueue) pushFront(t Task) {
	if q.head > 0 {
		q.head--
		q.tasks[q.head] = t
		return
	}
	q.tasks = slices.Insert(q.tasks, 0, t)
}

func (q *TaskQueue) removeWaiter(w *waiter) {
	if i := slices.Index(q.waiters, w); i >= 0 {
		q.waiters = slices.Delete(q.waiters, i, i+1)
	}
}

func (q *TaskQueue) wake() {
	if q.waker != nil {
		q.waker.Wake()
	}
}
