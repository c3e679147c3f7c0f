// Package shardkey models compound shard keys and resolves them from domain entities.
package shardkey

import (
	"fmt"
	"strings"

	"shardroute/pkg/sharderr"
)

// CompoundKey is an ordered, non-empty list of non-empty components. A one-component key
// is the canonical form of a simple key.
type CompoundKey struct {
	components []string
}

func NewCompoundKey(components ...string) (CompoundKey, error) {
	k := CompoundKey{components: append([]string(nil), components...)}
	if err := k.Validate(); err != nil {
		return CompoundKey{}, err
	}
	return k, nil
}

// Simple wraps a single value as a one-component key.
func Simple(value string) (CompoundKey, error) {
	return NewCompoundKey(value)
}

// Validate reports ErrCompoundKeyEmpty or ErrCompoundKeyComponentEmpty.
func (k CompoundKey) Validate() error {
	if len(k.components) == 0 {
		return sharderr.ErrCompoundKeyEmpty
	}
	for i, c := range k.components {
		if c == "" {
			return fmt.Errorf("%w: index %d", sharderr.ErrCompoundKeyComponentEmpty, i)
		}
	}
	return nil
}

func (k CompoundKey) Len() int { return len(k.components) }

func (k CompoundKey) Component(i int) string { return k.components[i] }

func (k CompoundKey) Components() []string {
	return append([]string(nil), k.components...)
}

func (k CompoundKey) String() string {
	return strings.Join(k.components, "|")
}

// Encode returns a form of k that is unique per key: components joined by '|', with '|'
// and '\' inside a component escaped by '\'. String is for display only.
func (k CompoundKey) Encode() string {
	var b strings.Builder
	for i, c := range k.components {
		if i > 0 {
			b.WriteByte('|')
		}
		for j := 0; j < len(c); j++ {
			if c[j] == '|' || c[j] == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(c[j])
		}
	}
	return b.String()
}

// Without returns a partial key with the given component indices left unknown.
func (k CompoundKey) Without(indices ...int) PartialKey {
	p := PartialKey{
		values:  k.Components(),
		present: make([]bool, len(k.components)),
	}
	for i := range p.present {
		p.present[i] = true
	}
	for _, idx := range indices {
		if idx >= 0 && idx < len(p.values) {
			p.values[idx] = ""
			p.present[idx] = false
		}
	}
	return p
}

// PartialKey is a compound key where some components are unknown. It drives
// scatter-gather routing.
type PartialKey struct {
	values  []string
	present []bool
}

// NewPartialKey returns a key of the given arity with every component unknown.
func NewPartialKey(arity int) PartialKey {
	return PartialKey{values: make([]string, arity), present: make([]bool, arity)}
}

// PartialFromValues treats empty strings as unknown components.
func PartialFromValues(values ...string) PartialKey {
	p := NewPartialKey(len(values))
	for i, v := range values {
		if v != "" {
			p.values[i] = v
			p.present[i] = true
		}
	}
	return p
}

// With returns a copy of p with component i known. Out-of-range indices grow the key.
func (p PartialKey) With(i int, value string) PartialKey {
	n := len(p.values)
	if i >= n {
		n = i + 1
	}
	out := NewPartialKey(n)
	copy(out.values, p.values)
	copy(out.present, p.present)
	out.values[i] = value
	out.present[i] = true
	return out
}

func (p PartialKey) Len() int { return len(p.values) }

// Component returns the value at i and whether it is known.
func (p PartialKey) Component(i int) (string, bool) {
	if i < 0 || i >= len(p.values) {
		return "", false
	}
	return p.values[i], p.present[i]
}

func (p PartialKey) String() string {
	parts := make([]string, len(p.values))
	for i, v := range p.values {
		if p.present[i] {
			parts[i] = v
		} else {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, "|")
}
