// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package order

import (
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Key is one ORDER BY item.
type Key struct {
	Label string
	Desc  bool
}

func (k Key) String() string {
	if k.Desc {
		return k.Label + " DESC"
	}
	return k.Label + " ASC"
}

// Comparator orders rows by a list of keys.
type Comparator struct {
	keys []Key
}

func New(keys ...Key) *Comparator {
	return &Comparator{keys: keys}
}

func (c *Comparator) Keys() []Key {
	return c.keys
}

// Compare evaluates the keys in order and returns the first non-zero
// result. A descending key flips only its own result.
func (c *Comparator) Compare(a, b *types.Row) int {
	for _, k := range c.keys {
		r := Compare(a.Get(k.Label), b.Get(k.Label))
		if r == 0 {
			continue
		}
		if k.Desc {
			return -r
		}
		return r
	}
	return 0
}

// Reverse returns the comparator with every direction flipped.
func (c *Comparator) Reverse() *Comparator {
	keys := make([]Key, len(c.keys))
	for i, k := range c.keys {
		keys[i] = Key{Label: k.Label, Desc: !k.Desc}
	}
	return New(keys...)
}

func (c *Comparator) String() string {
	parts := make([]string, len(c.keys))
	for i, k := range c.keys {
		parts[i] = k.String()
	}
	return fmt.Sprintf("ORDER BY %s", strings.Join(parts, ", "))
}
