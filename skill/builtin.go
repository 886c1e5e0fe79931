// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package skill

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"code.hybscloud.com/taskmsg/codec"
)

// MathOp selects an arithmetic operation.
type MathOp uint8

const (
	OpAdd MathOp = iota
	OpSubtract
	OpMultiply
	OpDivide
)

func (op MathOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSubtract:
		return "subtract"
	case OpMultiply:
		return "multiply"
	case OpDivide:
		return "divide"
	}
	return fmt.Sprintf("MathOp(%d)", uint8(op))
}

// MathRequest is the payload of MathOperation.
type MathRequest struct {
	A  float64 `cbor:"a" msgpack:"a" json:"a"`
	B  float64 `cbor:"b" msgpack:"b" json:"b"`
	Op MathOp  `cbor:"op" msgpack:"op" json:"op"`
}

// MathResponse is the result of MathOperation. Overflow is set when the
// result is infinite or the divisor was zero.
type MathResponse struct {
	Result   float64 `cbor:"result" msgpack:"result" json:"result"`
	Overflow bool    `cbor:"overflow" msgpack:"overflow" json:"overflow"`
}

// VectorRequest is the payload of VectorMath. A and B must have equal length.
type VectorRequest struct {
	A  []float64 `cbor:"a" msgpack:"a" json:"a"`
	B  []float64 `cbor:"b" msgpack:"b" json:"b"`
	Op MathOp    `cbor:"op" msgpack:"op" json:"op"`
}

// FMARequest is the payload of FusedMultiplyAdd: Result[i] = A[i] + C*B[i].
type FMARequest struct {
	A []float64 `cbor:"a" msgpack:"a" json:"a"`
	B []float64 `cbor:"b" msgpack:"b" json:"b"`
	C float64   `cbor:"c" msgpack:"c" json:"c"`
}

// VectorResponse is the result of VectorMath and FusedMultiplyAdd.
type VectorResponse struct {
	Result []float64 `cbor:"result" msgpack:"result" json:"result"`
}

// reverser reverses UTF-8 text by rune. Its payload is raw text.
type reverser struct{}

func (reverser) ID() uint32   { return StringReversal }
func (reverser) Name() string { return "StringReversal" }

func (reverser) Process(_ codec.Codec, payload []byte) ([]byte, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrBadPayload)
	}
	runes := []rune(string(payload))
	slices.Reverse(runes)
	return []byte(string(runes)), nil
}

type mather struct{}

func (mather) ID() uint32   { return MathOperation }
func (mather) Name() string { return "MathOperation" }

func (mather) Process(c codec.Codec, payload []byte) ([]byte, error) {
	var req MathRequest
	if err := c.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	var resp MathResponse
	switch req.Op {
	case OpAdd:
		resp.Result = req.A + req.B
	case OpSubtract:
		resp.Result = req.A - req.B
	case OpMultiply:
		resp.Result = req.A * req.B
	case OpDivide:
		if req.B == 0 {
			resp.Result, resp.Overflow = math.NaN(), true
			return c.Marshal(&resp)
		}
		resp.Result = req.A / req.B
	default:
		return nil, fmt.Errorf("%w: operation %v", ErrBadPayload, req.Op)
	}
	resp.Overflow = math.IsInf(resp.Result, 0)
	return c.Marshal(&resp)
}

type vectorMather struct{}

func (vectorMather) ID() uint32   { return VectorMath }
func (vectorMather) Name() string { return "VectorMath" }

func (vectorMather) Process(c codec.Codec, payload []byte) ([]byte, error) {
	var req VectorRequest
	if err := c.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(req.A) != len(req.B) {
		return nil, fmt.Errorf("%w: operand lengths %d and %d", ErrBadPayload, len(req.A), len(req.B))
	}
	if req.Op > OpDivide {
		return nil, fmt.Errorf("%w: operation %v", ErrBadPayload, req.Op)
	}
	out := make([]float64, len(req.A))
	for i, a := range req.A {
		b := req.B[i]
		switch req.Op {
		case OpAdd:
			out[i] = a + b
		case OpSubtract:
			out[i] = a - b
		case OpMultiply:
			out[i] = a * b
		case OpDivide:
			if b == 0 {
				out[i] = math.NaN()
			} else {
				out[i] = a / b
			}
		}
	}
	return c.Marshal(&VectorResponse{Result: out})
}

type fma struct{}

func (fma) ID() uint32   { return FusedMultiplyAdd }
func (fma) Name() string { return "FusedMultiplyAdd" }

func (fma) Process(c codec.Codec, payload []byte) ([]byte, error) {
	var req FMARequest
	if err := c.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if len(req.A) != len(req.B) {
		return nil, fmt.Errorf("%w: operand lengths %d and %d", ErrBadPayload, len(req.A), len(req.B))
	}
	out := make([]float64, len(req.A))
	for i := range out {
		out[i] = math.FMA(req.C, req.B[i], req.A[i])
	}
	return c.Marshal(&VectorResponse{Result: out})
}
