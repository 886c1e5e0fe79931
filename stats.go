// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"time"

	"code.hybscloud.com/atomix"
)

// SessionStats is a snapshot of one session's counters.
type SessionStats struct {
	TasksSent      uint32
	TasksCompleted uint32
	TasksFailed    uint32
	BytesSent      uint64
	BytesReceived  uint64
	TotalRoundtrip time.Duration
	LastRoundtrip  time.Duration
	TimedTasks     uint32
	StartTime      time.Time
}

// SuccessRate returns completed tasks as a percentage of sent tasks.
func (st SessionStats) SuccessRate() float64 {
	if st.TasksSent == 0 {
		return 0
	}
	return float64(st.TasksCompleted) * 100 / float64(st.TasksSent)
}

// AvgRoundtrip returns the mean roundtrip of committed tasks.
func (st SessionStats) AvgRoundtrip() time.Duration {
	if st.TimedTasks == 0 {
		return 0
	}
	return st.TotalRoundtrip / time.Duration(st.TimedTasks)
}

// Uptime returns the time elapsed since the session started.
func (st SessionStats) Uptime() time.Duration { return time.Since(st.StartTime) }

// sessionCounters are written by the owning session and read concurrently
// by the manager; every field is an atomic word.
type sessionCounters struct {
	tasksSent      atomix.Uint32
	tasksCompleted atomix.Uint32
	tasksFailed    atomix.Uint32
	bytesSent      atomix.Uint64
	bytesReceived  atomix.Uint64
	totalRoundtrip atomix.Int64
	lastRoundtrip  atomix.Int64
	timedTasks     atomix.Uint32
	start          time.Time
}

func (c *sessionCounters) commit(rtt time.Duration) {
	c.tasksCompleted.Add(1)
	c.totalRoundtrip.Add(int64(rtt))
	c.lastRoundtrip.Store(int64(rtt))
	c.timedTasks.Add(1)
}

func (c *sessionCounters) snapshot() SessionStats {
	return SessionStats{
		TasksSent:      c.tasksSent.Load(),
		TasksCompleted: c.tasksCompleted.Load(),
		TasksFailed:    c.tasksFailed.Load(),
		BytesSent:      c.bytesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		TotalRoundtrip: time.Duration(c.totalRoundtrip.Load()),
		LastRoundtrip:  time.Duration(c.lastRoundtrip.Load()),
		TimedTasks:     c.timedTasks.Load(),
		StartTime:      c.start,
	}
}

// AggregateStats sums the counters of every live session.
type AggregateStats struct {
	Sessions       int
	ActiveSessions int
	TasksSent      uint64
	TasksCompleted uint64
	TasksFailed    uint64
	BytesSent      uint64
	BytesReceived  uint64
	TotalRoundtrip time.Duration
	TimedTasks     uint64
}

func (a *AggregateStats) add(st SessionStats) {
	a.TasksSent += uint64(st.TasksSent)
	a.TasksCompleted += uint64(st.TasksCompleted)
	a.TasksFailed += uint64(st.TasksFailed)
	a.BytesSent += st.BytesSent
	a.BytesReceived += st.BytesReceived
	a.TotalRoundtrip += st.TotalRoundtrip
	a.TimedTasks += uint64(st.TimedTasks)
}

// SuccessRate returns completed tasks as a percentage of sent tasks.
func (a AggregateStats) SuccessRate() float64 {
	if a.TasksSent == 0 {
		return 0
	}
	return float64(a.TasksCompleted) * 100 / float64(a.TasksSent)
}

// AvgRoundtrip returns the mean roundtrip across committed tasks.
func (a AggregateStats) AvgRoundtrip() time.Duration {
	if a.TimedTasks == 0 {
		return 0
	}
	return a.TotalRoundtrip / time.Duration(a.TimedTasks)
}
