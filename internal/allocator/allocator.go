// Package allocator chooses where a new archive entry goes: into the
// smallest hole that fits, left by a prior deletion, or at end-of-file.
package allocator

import (
	"errors"
	"slices"
)

// ErrOverlap is returned by Place when the given occupied ranges overlap,
// meaning the archive's entry layout is already corrupted.
var ErrOverlap = errors.New("allocator: occupied ranges overlap")

// Range is a half-open byte range [Begin, End) occupied by one entry.
type Range struct {
	Begin, End int64
}

// Place picks an offset for a new entry of entrySize bytes, given the
// current set of occupied ranges (in any order) and the archive's current
// end-of-file offset.
//
// It sorts ranges by start, rejects overlapping neighbors, and scans
// entry-to-entry gaps for the smallest one that fits entrySize (ties go to
// the earliest gap). An exact-size gap is taken immediately. If nothing
// fits, it returns endOffset, i.e. append.
//
// Only gaps between consecutive entries are considered — the space between
// the fixed archive prefix and the first entry is never treated as a hole,
// matching the reference allocator's behavior.
func Place(entrySize int64, occupied []Range, endOffset int64) (int64, error) {
	sorted := slices.Clone(occupied)
	slices.SortFunc(sorted, func(a, b Range) int {
		switch {
		case a.Begin < b.Begin:
			return -1
		case a.Begin > b.Begin:
			return 1
		default:
			return 0
		}
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Begin < sorted[i-1].End {
			return 0, ErrOverlap
		}
	}

	bestGap := int64(-1)
	bestOffset := int64(0)
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Begin - sorted[i-1].End
		if gap < entrySize {
			continue
		}
		if gap == entrySize {
			return sorted[i-1].End, nil
		}
		if bestGap == -1 || gap < bestGap {
			bestGap = gap
			bestOffset = sorted[i-1].End
		}
	}

	if bestGap != -1 {
		return bestOffset, nil
	}
	return endOffset, nil
}
