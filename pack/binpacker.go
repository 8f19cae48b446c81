// Package pack implements the BinPacker: grouping an ordered list of items
// (manifests, in this module) into bins whose aggregate weight stays under
// a target, without reordering the input (spec.md §4.C).
package pack

import "github.com/tableformat/snapshotmerge/internal/metrics"

// PackEnd packs items into bins by scanning from the end of the slice
// backwards. The next (earlier) item joins the currently-open bin if doing
// so would not push its aggregate weight over target; otherwise the open
// bin is sealed and a new one is started with that item.
//
// lookback is accepted for interface parity with fuller bin-packing
// variants that compare a candidate item against the last N sealed bins
// before opening a new one; this module only ever uses lookback=1 (compare
// solely against the currently-open bin, no reordering), so values below 1
// are clamped to 1 and no other value changes behavior.
//
// The returned bins, concatenated in order, reproduce items exactly. A
// single item heavier than target is never split: it occupies a bin by
// itself, which may exceed target.
//
// Because packing proceeds from the end, any under-filled remainder always
// ends up in the first bin — exactly the bin a later call (once more items
// have accumulated) will pick up again.
func PackEnd[T any](items []T, weight func(T) int64, target int64, lookback int) [][]T {
	if lookback < 1 {
		lookback = 1
	}
	if len(items) == 0 {
		return nil
	}

	var sealed [][]T
	var current []T
	var currentWeight int64

	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		w := weight(item)

		if len(current) > 0 && currentWeight+w > target {
			metrics.BytesPacked.Add(float64(currentWeight))
			sealed = append(sealed, current)
			current = nil
			currentWeight = 0
		}

		current = prepend(current, item)
		currentWeight += w
	}
	if len(current) > 0 {
		metrics.BytesPacked.Add(float64(currentWeight))
		sealed = append(sealed, current)
	}

	reverse(sealed)
	return sealed
}

func prepend[T any](bin []T, item T) []T {
	bin = append(bin, item)
	copy(bin[1:], bin[:len(bin)-1])
	bin[0] = item
	return bin
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
