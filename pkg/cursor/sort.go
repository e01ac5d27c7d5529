// Copyright 2025 BinQL Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"slices"

	"github.com/LeeDigitalWorks/binql/pkg/order"
	"github.com/LeeDigitalWorks/binql/pkg/types"
)

// Sort materializes c and serves its rows ordered by cmp. Rows that
// compare equal keep their input order.
func Sort(c Cursor, cmp *order.Comparator) *Buffer {
	b := NewBuffer(c)
	b.arrange = func(rows []*types.Row) {
		slices.SortStableFunc(rows, cmp.Compare)
	}
	return b
}
