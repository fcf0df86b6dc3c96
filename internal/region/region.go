// Package region implements the region algebra: a half-open interval
// over a composite key (hash-bucket range crossed with a byte-string
// key range) and region maps, the central data structure the
// coordinator uses to slice non-homogeneous inputs into homogeneous
// pieces.
package region

import "bytes"

// HashSize is the fixed universe size of the hash-bucket dimension.
// Hash ranges are half-open over [0, HashSize).
const HashSize uint64 = 1 << 12

// KeyRange is a half-open byte-string interval [Start, End). An empty
// End denotes "no upper bound" (infinity).
type KeyRange struct {
	Start []byte
	End   []byte // nil/empty means unbounded
}

func (k KeyRange) isEmpty() bool {
	return len(k.End) > 0 && bytes.Compare(k.Start, k.End) >= 0
}

// unbounded reports whether k.End denotes infinity.
func (k KeyRange) unbounded() bool {
	return len(k.End) == 0
}

func keyRangeIntersect(a, b KeyRange) KeyRange {
	start := a.Start
	if bytes.Compare(b.Start, start) > 0 {
		start = b.Start
	}
	var end []byte
	switch {
	case a.unbounded() && b.unbounded():
		end = nil
	case a.unbounded():
		end = b.End
	case b.unbounded():
		end = a.End
	default:
		if bytes.Compare(a.End, b.End) < 0 {
			end = a.End
		} else {
			end = b.End
		}
	}
	return KeyRange{Start: start, End: end}
}

// compareKeyRange orders two key ranges by start, then by end (nil end
// i.e. unbounded sorts last). This is the "key-range order" referenced
// throughout the coordinator's traversal guarantee.
func compareKeyRange(a, b KeyRange) int {
	if c := bytes.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	switch {
	case a.unbounded() && b.unbounded():
		return 0
	case a.unbounded():
		return 1
	case b.unbounded():
		return -1
	default:
		return bytes.Compare(a.End, b.End)
	}
}

// Region is a half-open interval over hash-bucket x key-range.
type Region struct {
	HashStart uint64
	HashEnd   uint64
	Keys      KeyRange
}

// Full returns the region spanning the entire hash universe and the
// entire key space.
func Full() Region {
	return Region{HashStart: 0, HashEnd: HashSize, Keys: KeyRange{}}
}

// Empty reports whether r contains no points.
func (r Region) Empty() bool {
	return r.HashStart >= r.HashEnd || r.Keys.isEmpty()
}

// Intersect returns the largest region contained in both a and b. The
// result may be Empty.
func Intersect(a, b Region) Region {
	hashStart := a.HashStart
	if b.HashStart > hashStart {
		hashStart = b.HashStart
	}
	hashEnd := a.HashEnd
	if b.HashEnd < hashEnd {
		hashEnd = b.HashEnd
	}
	return Region{
		HashStart: hashStart,
		HashEnd:   hashEnd,
		Keys:      keyRangeIntersect(a.Keys, b.Keys),
	}
}

// Equal reports structural equality of two regions (not semantic
// equality of Empty regions with differing bounds).
func (r Region) Equal(o Region) bool {
	return r.HashStart == o.HashStart && r.HashEnd == o.HashEnd &&
		bytes.Equal(r.Keys.Start, o.Keys.Start) && r.Keys.unbounded() == o.Keys.unbounded() &&
		bytes.Equal(r.Keys.End, o.Keys.End)
}

// compare orders regions in key-range-then-hash order, the traversal
// order §4.1 guarantees and §4.4's subshard-index computation depends
// on.
func compare(a, b Region) int {
	if c := compareKeyRange(a.Keys, b.Keys); c != 0 {
		return c
	}
	if a.HashStart != b.HashStart {
		if a.HashStart < b.HashStart {
			return -1
		}
		return 1
	}
	if a.HashEnd != b.HashEnd {
		if a.HashEnd < b.HashEnd {
			return -1
		}
		return 1
	}
	return 0
}
