// Package blackboard implements the typed, index-keyed variable stores shared
// between blueprint actions. A local board belongs to one frame; a global
// board is constructed by the host, passed into every runner that should share
// it, and never cleared automatically; its lifecycle is caller-owned.
package blackboard

import (
	"hash/fnv"
	"sync"
)

// Index ranges. Designer-declared variables live in [0, OutputIndexBase);
// node-output variables are synthesized by name hash into
// [OutputIndexBase, OutputIndexBase+OutputIndexRange). Keeping the ranges
// disjoint means a synthesized index can never alias a declared one.
const (
	OutputIndexBase  = 10000
	OutputIndexRange = 10000
)

// OutputIndex deterministically maps a node-output variable name into the
// synthesized index range. Distinct names may collide within the range; the
// exporter keeps output names unique per blueprint, so the runtime accepts
// the residual risk instead of carrying a name table.
func OutputIndex(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return OutputIndexBase + int(h.Sum32()%OutputIndexRange)
}

// Board is one variable store. All access is synchronized: the tick path of a
// single runner is single-threaded, but one global board may be shared by
// several concurrently driven runners.
type Board struct {
	mu     sync.RWMutex
	values map[int]Value
	meta   map[string]string
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{
		values: make(map[int]Value),
		meta:   make(map[string]string),
	}
}

// Set stores a value at index, replacing any previous value and kind.
func (b *Board) Set(index int, v Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[index] = v
}

// Get returns the value at index. ok is false when the slot was never set.
func (b *Board) Get(index int) (Value, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[index]
	return v, ok
}

// SetIfAbsent stores v only when the slot is empty and reports whether it
// wrote. Load-time global seeding uses this so a reload never clobbers state
// carried across sessions.
func (b *Board) SetIfAbsent(index int, v Value) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[index]; ok {
		return false
	}
	b.values[index] = v
	return true
}

func (b *Board) SetInt(index int, v int64)     { b.Set(index, IntValue(v)) }
func (b *Board) SetFloat(index int, v float64) { b.Set(index, FloatValue(v)) }
func (b *Board) SetBool(index int, v bool)     { b.Set(index, BoolValue(v)) }
func (b *Board) SetString(index int, v string) { b.Set(index, StringValue(v)) }

// Int returns the integer at index, or 0 when absent or of another kind.
// The zero-on-mismatch contract means reads never fail; callers that need to
// distinguish use the Try variants.
func (b *Board) Int(index int) int64 {
	v, _ := b.Get(index)
	n, _ := v.Int()
	return n
}

func (b *Board) Float(index int) float64 {
	v, _ := b.Get(index)
	f, _ := v.Float()
	return f
}

func (b *Board) Bool(index int) bool {
	v, _ := b.Get(index)
	bv, _ := v.Bool()
	return bv
}

func (b *Board) Str(index int) string {
	v, _ := b.Get(index)
	s, _ := v.Str()
	return s
}

// TryInt returns the integer at index and whether the slot held one.
func (b *Board) TryInt(index int) (int64, bool) {
	v, ok := b.Get(index)
	if !ok {
		return 0, false
	}
	return v.Int()
}

func (b *Board) TryFloat(index int) (float64, bool) {
	v, ok := b.Get(index)
	if !ok {
		return 0, false
	}
	return v.Float()
}

func (b *Board) TryBool(index int) (bool, bool) {
	v, ok := b.Get(index)
	if !ok {
		return false, false
	}
	return v.Bool()
}

func (b *Board) TryStr(index int) (string, bool) {
	v, ok := b.Get(index)
	if !ok {
		return "", false
	}
	return v.Str()
}

// MetaActivatedBy prefixes the bookkeeping keys recording which action last
// activated another; the full key is MetaActivatedBy + targetActionID.
const MetaActivatedBy = "_activatedBy."

// SetMeta writes to the string-keyed internal namespace. Keys are
// conventionally prefixed "_" and are invisible to designer variable tooling;
// the engine uses it for bookkeeping such as _activatedBy.<actionId>.
func (b *Board) SetMeta(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta[key] = value
}

// Meta reads from the internal namespace.
func (b *Board) Meta(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.meta[key]
	return v, ok
}

// Clear empties both the variable slots and the internal namespace. Hosts
// call this on a shared global board at session boundaries (e.g. returning
// to the main menu); the engine never calls it.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[int]Value)
	b.meta = make(map[string]string)
}

// Len reports the number of set variable slots.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}

// Snapshot copies the variable slots for inspection and debug output.
func (b *Board) Snapshot() map[int]Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int]Value, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}
