/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package driver

import "iter"

// Sequence is a pull-based source of work items. Next reports false once the
// sequence is exhausted. Pulling an item is the work the driver paces.
type Sequence[T any] interface {
	Next() (T, bool)
}

// SequenceFunc adapts a function to Sequence.
type SequenceFunc[T any] func() (T, bool)

// Next implements Sequence.
func (f SequenceFunc[T]) Next() (T, bool) { return f() }

// FromSeq adapts a push iterator. The returned stop func releases the
// iterator and must be called once the driver is done with it.
func FromSeq[T any](seq iter.Seq[T]) (Sequence[T], func()) {
	next, stop := iter.Pull(seq)
	return SequenceFunc[T](next), stop
}

// FromSlice yields the items in order.
func FromSlice[T any](items []T) Sequence[T] {
	i := 0
	return SequenceFunc[T](func() (T, bool) {
		if i >= len(items) {
			var zero T
			return zero, false
		}
		item := items[i]
		i++
		return item, true
	})
}

// Count yields 0 through n-1.
func Count(n int) Sequence[int] {
	i := 0
	return SequenceFunc[int](func() (int, bool) {
		if i >= n {
			return 0, false
		}
		i++
		return i - 1, true
	})
}

// Counter yields 0, 1, 2, ... and never ends.
func Counter() Sequence[int64] {
	var i int64
	return SequenceFunc[int64](func() (int64, bool) {
		i++
		return i - 1, true
	})
}
