// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/codec"
	"go.uber.org/zap"
)

// vectorLen is the operand length of generated vector tasks.
const vectorLen = 8

// RefillPolicy decides when the generator tops up a task pool.
type RefillPolicy struct {
	// Low is the pool size below which a refill happens.
	Low int
	// Amount is the number of tasks added per refill.
	Amount int
	// Interval is how often Monitor checks the pool.
	Interval time.Duration
}

// DefaultRefillPolicy adds 100 tasks whenever fewer than 10 are queued,
// checking every second.
var DefaultRefillPolicy = RefillPolicy{Low: 10, Amount: 100, Interval: time.Second}

// Generator produces demonstration tasks that cycle through a set of skills.
type Generator struct {
	codec codec.Codec
	ids   *taskmsg.TaskIDs

	mu     sync.Mutex
	skills []uint32
	next   int
}

// NewGenerator creates a generator encoding payloads with c and cycling
// through skills. With no skills it cycles through the built-ins.
func NewGenerator(c codec.Codec, ids *taskmsg.TaskIDs, skills ...uint32) *Generator {
	if c == nil {
		c, _ = codec.ByName(codec.Default)
	}
	if ids == nil {
		ids = new(taskmsg.TaskIDs)
	}
	if len(skills) == 0 {
		skills = []uint32{StringReversal, MathOperation, VectorMath, FusedMultiplyAdd}
	}
	return &Generator{codec: c, ids: ids, skills: skills}
}

// Next returns one new task.
func (g *Generator) Next() (taskmsg.Task, error) {
	g.mu.Lock()
	tag := g.skills[g.next]
	g.next = (g.next + 1) % len(g.skills)
	g.mu.Unlock()

	id := g.ids.Next()
	payload, err := g.payload(id, tag)
	if err != nil {
		return taskmsg.Task{}, err
	}
	return taskmsg.Task{ID: id, Tag: tag, Payload: payload}, nil
}

// Batch returns n new tasks.
func (g *Generator) Batch(n int) ([]taskmsg.Task, error) {
	tasks := make([]taskmsg.Task, 0, n)
	for range n {
		t, err := g.Next()
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Fill pushes n new tasks into p and returns how many it accepted.
func (g *Generator) Fill(p taskmsg.Producer, n int) (int, error) {
	tasks, err := g.Batch(n)
	return p.PushMany(tasks), err
}

// Refill tops up p with policy.Amount tasks when it holds fewer than
// policy.Low. Returns the number of tasks added.
func (g *Generator) Refill(p taskmsg.Producer, policy RefillPolicy) (int, error) {
	if p.Size() >= policy.Low {
		return 0, nil
	}
	return g.Fill(p, policy.Amount)
}

// Monitor refills p on every policy interval until ctx is done.
func (g *Generator) Monitor(ctx context.Context, p taskmsg.Producer, policy RefillPolicy, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultRefillPolicy.Interval
	}
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Refill(p, policy)
			if err != nil {
				logger.Warn("task generation failed", zap.Error(err))
			}
			if n > 0 {
				logger.Info("task pool refilled",
					zap.Int("added", n), zap.Int("size", p.Size()), zap.Int("waiting", p.WaitingCount()))
			}
		}
	}
}

func (g *Generator) payload(id, tag uint32) ([]byte, error) {
	switch tag {
	case StringReversal:
		return []byte(fmt.Sprintf("Task data %d", id)), nil
	case MathOperation:
		return g.codec.Marshal(&MathRequest{
			A:  float64(id),
			B:  float64(id % 7),
			Op: MathOp(id % 4),
		})
	case VectorMath:
		a, b := operands(id)
		return g.codec.Marshal(&VectorRequest{A: a, B: b, Op: MathOp(id % 4)})
	case FusedMultiplyAdd:
		a, b := operands(id)
		return g.codec.Marshal(&FMARequest{A: a, B: b, C: 0.5})
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownSkill, tag)
}

func operands(id uint32) (a, b []float64) {
	a = make([]float64, vectorLen)
	b = make([]float64, vectorLen)
	for i := range vectorLen {
		a[i] = float64(id) + float64(i)
		b[i] = float64(i + 1)
	}
	return a, b
}
