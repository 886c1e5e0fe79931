// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import "code.hybscloud.com/atomix"

// Serial is a monotonically increasing session identifier, starting at 1.
type Serial = uint32

// serial hands out session identifiers for one Manager.
type serial struct {
	counter atomix.Uint32
}

// next returns the next monotonically increasing serial.
func (s *serial) next() Serial {
	return s.counter.Add(1)
}

// TaskIDs hands out process-unique task identifiers.
// Zero is never returned; it marks the sentinel task.
type TaskIDs struct {
	counter atomix.Uint32
}

// Next returns the next task id, skipping zero on wrap-around.
func (g *TaskIDs) Next() uint32 {
	for {
		if id := g.counter.Add(1); id != 0 {
			return id
		}
	}
}
