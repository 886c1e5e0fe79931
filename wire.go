// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import "encoding/binary"

// HeaderSize is the encoded size of a WireHeader.
const HeaderSize = 12

// WireHeader precedes every payload on a connection, in both directions.
// Fields are encoded in the host's native byte order with no padding.
type WireHeader struct {
	TaskID   uint32
	Tag      uint32
	BodySize uint32
}

// Put encodes h into the first HeaderSize bytes of b.
func (h WireHeader) Put(b []byte) {
	_ = b[HeaderSize-1]
	binary.NativeEndian.PutUint32(b[0:4], h.TaskID)
	binary.NativeEndian.PutUint32(b[4:8], h.Tag)
	binary.NativeEndian.PutUint32(b[8:12], h.BodySize)
}

// Append appends the encoding of h to b.
func (h WireHeader) Append(b []byte) []byte {
	b = binary.NativeEndian.AppendUint32(b, h.TaskID)
	b = binary.NativeEndian.AppendUint32(b, h.Tag)
	return binary.NativeEndian.AppendUint32(b, h.BodySize)
}

// ParseHeader decodes a WireHeader from the first HeaderSize bytes of b.
func ParseHeader(b []byte) WireHeader {
	_ = b[HeaderSize-1]
	return WireHeader{
		TaskID:   binary.NativeEndian.Uint32(b[0:4]),
		Tag:      binary.NativeEndian.Uint32(b[4:8]),
		BodySize: binary.NativeEndian.Uint32(b[8:12]),
	}
}

// Task is a unit of work: an id, a routing tag selecting the worker skill,
// and an opaque payload. The zero Task is the shutdown sentinel.
type Task struct {
	ID      uint32
	Tag     uint32
	Payload []byte
}

// Valid reports whether t is a real task rather than the sentinel.
func (t Task) Valid() bool { return t.ID != 0 }

// Header returns the request header announcing t.
func (t Task) Header() WireHeader {
	return WireHeader{TaskID: t.ID, Tag: t.Tag, BodySize: uint32(len(t.Payload))}
}
