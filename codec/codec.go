// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec encodes skill payloads carried in task bodies.
//
// The task wire format treats payloads as opaque bytes; a codec fixes how
// the manager and its workers agree on their structure. Manager and worker
// must be configured with the same codec.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Codec marshals typed skill payloads.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Default is the codec name used when none is configured.
const Default = "cbor"

// ErrUnknownCodec reports a codec name with no registered implementation.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Registry maps codec names and content types to codecs.
type Registry struct {
	byName map[string]Codec
	byType map[string]Codec
}

// NewRegistry returns a registry preloaded with CBOR, MessagePack and JSON.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec), byType: make(map[string]Codec)}
	r.Register(CBOR())
	r.Register(MsgPack())
	r.Register(JSON())
	return r
}

// Register adds c, replacing any codec with the same name or content type.
func (r *Registry) Register(c Codec) {
	r.byName[c.Name()] = c
	r.byType[c.ContentType()] = c
}

// Get returns the codec registered for contentType, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (Codec, error) {
	if name == "" {
		name = Default
	}
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownCodec, name, strings.Join(r.Names(), ", "))
	}
	return c, nil
}

// Names lists registered codec names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var builtin = NewRegistry()

// ByName returns a built-in codec.
func ByName(name string) (Codec, error) { return builtin.Lookup(name) }
