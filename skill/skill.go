// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package skill defines the work a task asks of a worker.
//
// A task's tag is a skill id. Workers look the id up in a [Registry] and
// answer with the same tag on success or tag 0 on failure, which the
// manager treats as a mismatch and retries elsewhere. Payloads other than
// string reversal are encoded with a [codec.Codec] shared by both sides.
package skill

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"code.hybscloud.com/taskmsg/codec"
)

// Built-in skill ids.
const (
	StringReversal   uint32 = 1
	MathOperation    uint32 = 2
	VectorMath       uint32 = 3
	FusedMultiplyAdd uint32 = 4
)

// FailureTag answers a task whose skill is unknown or failed.
const FailureTag uint32 = 0

var (
	// ErrUnknownSkill reports a tag with no registered handler.
	ErrUnknownSkill = errors.New("taskmsg: unknown skill")

	// ErrBadPayload reports a payload a handler could not interpret.
	ErrBadPayload = errors.New("taskmsg: malformed skill payload")
)

// Handler executes one skill.
type Handler interface {
	ID() uint32
	Name() string
	Process(c codec.Codec, payload []byte) ([]byte, error)
}

// Registry maps skill ids to handlers. It is safe for concurrent use.
type Registry struct {
	codec codec.Codec

	mu       sync.RWMutex
	handlers map[uint32]Handler
}

// NewRegistry returns a registry holding the built-in skills.
// A nil codec selects codec.Default.
func NewRegistry(c codec.Codec) *Registry {
	if c == nil {
		c, _ = codec.ByName(codec.Default)
	}
	r := &Registry{codec: c, handlers: make(map[uint32]Handler)}
	r.Register(reverser{})
	r.Register(mather{})
	r.Register(vectorMather{})
	r.Register(fma{})
	return r
}

// Codec returns the payload codec.
func (r *Registry) Codec() codec.Codec { return r.codec }

// Register adds h, replacing any handler with the same id.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	r.handlers[h.ID()] = h
	r.mu.Unlock()
}

// Lookup returns the handler for id.
func (r *Registry) Lookup(id uint32) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns the registered skill ids in ascending order.
func (r *Registry) IDs() []uint32 {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Process runs the skill tag on payload and returns the response tag and
// body. On failure the tag is FailureTag and the body is the error text.
func (r *Registry) Process(tag uint32, payload []byte) (uint32, []byte, error) {
	h, ok := r.Lookup(tag)
	if !ok {
		err := fmt.Errorf("%w: %d", ErrUnknownSkill, tag)
		return FailureTag, []byte(err.Error()), err
	}
	body, err := h.Process(r.codec, payload)
	if err != nil {
		err = fmt.Errorf("skill %s: %w", h.Name(), err)
		return FailureTag, []byte(err.Error()), err
	}
	return tag, body, nil
}
