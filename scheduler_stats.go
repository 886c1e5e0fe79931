// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TotalOperations returns the number of operations resumed since the last reset.
func (s *Scheduler) TotalOperations() uint64 { return s.total.Load() }

// ThreadOperations returns a copy of the per-loop resume counters.
func (s *Scheduler) ThreadOperations() []uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := make([]uint64, len(s.perThread))
	copy(out, s.perThread)
	return out
}

// Histogram returns a copy of the attempt histogram for c.
// Bucket i counts operations resumed after i failed attempts.
func (s *Scheduler) Histogram(c Category) []uint64 {
	out := make([]uint64, MaxTrackedAttempts)
	if c >= categoryCount {
		return out
	}
	s.statsMu.Lock()
	copy(out, s.histograms[c][:])
	s.statsMu.Unlock()
	return out
}

// AttemptStats returns min/avg/max failed attempts before success.
func (s *Scheduler) AttemptStats() AttemptStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	st := AttemptStats{Min: s.minAttempt, Max: s.maxAttempt, Samples: s.samples}
	if s.samples > 0 {
		st.Average = float64(s.sumAttempt) / float64(s.samples)
	}
	return st
}

// ResetStatistics zeroes every counter and histogram.
func (s *Scheduler) ResetStatistics() {
	s.statsMu.Lock()
	s.total.Store(0)
	clear(s.perThread)
	s.histograms = [categoryCount][MaxTrackedAttempts]uint64{}
	s.minAttempt, s.maxAttempt = 0, 0
	s.sumAttempt, s.samples = 0, 0
	s.statsMu.Unlock()
}

// FormatStatistics renders counters and non-empty histogram buckets.
func (s *Scheduler) FormatStatistics() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total operations: %d\n", s.TotalOperations())
	for i, n := range s.ThreadOperations() {
		fmt.Fprintf(&b, "  thread %d: %d\n", i, n)
	}
	st := s.AttemptStats()
	fmt.Fprintf(&b, "attempts before success: min=%d avg=%.2f max=%d samples=%d\n",
		st.Min, st.Average, st.Max, st.Samples)
	for _, c := range Categories {
		h := s.Histogram(c)
		var sum uint64
		for _, n := range h {
			sum += n
		}
		if sum == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d):", c, sum)
		for i, n := range h {
			if n == 0 {
				continue
			}
			if i == MaxTrackedAttempts-1 {
				fmt.Fprintf(&b, " >=%d:%d", i, n)
				continue
			}
			fmt.Fprintf(&b, " %d:%d", i, n)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// LogStatistics writes a summary of scheduler counters to the logger.
func (s *Scheduler) LogStatistics() {
	st := s.AttemptStats()
	fields := []zap.Field{
		zap.Uint64("operations", s.TotalOperations()),
		zap.Uint64s("per_thread", s.ThreadOperations()),
		zap.Uint16("min_attempts", st.Min),
		zap.Float64("avg_attempts", st.Average),
		zap.Uint16("max_attempts", st.Max),
		zap.Int("pending", s.PendingCount()),
	}
	for _, c := range Categories {
		var sum uint64
		for _, n := range s.Histogram(c) {
			sum += n
		}
		fields = append(fields, zap.Uint64(c.String(), sum))
	}
	s.logger.Info("scheduler statistics", fields...)
}
