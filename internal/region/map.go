package region

import "sort"

// Equaler is satisfied by value types a Map can coalesce without
// requiring the built-in comparable constraint (contracts and ack
// fragments carry slices, so == does not apply to them).
type Equaler[V any] interface {
	Equal(V) bool
}

// Fragment pairs a region with its associated value.
type Fragment[V Equaler[V]] struct {
	Region Region
	Value  V
}

// Map is a region map: a partition of some domain into maximal
// sub-regions of equal value, stored as a sorted, coalesced slice of
// fragments. The zero value is an empty map.
type Map[V Equaler[V]] struct {
	frags []Fragment[V]
}

// FromFragments reconstructs a map from an unordered list of disjoint
// (region, value) pairs, coalescing adjacent maximal sub-regions whose
// values compare equal. Overlapping input fragments are a programming
// error and panic, matching the "fragment lists that do not tile" rule
// of §4.1.
func FromFragments[V Equaler[V]](pairs []Fragment[V]) Map[V] {
	out := make([]Fragment[V], 0, len(pairs))
	for _, p := range pairs {
		if p.Region.Empty() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return compare(out[i].Region, out[j].Region) < 0
	})
	for i := 1; i < len(out); i++ {
		if regionsOverlap(out[i-1].Region, out[i].Region) {
			panic("region: FromFragments given overlapping fragments")
		}
	}
	return Map[V]{frags: coalesce(out)}
}

func regionsOverlap(a, b Region) bool {
	return !Intersect(a, b).Empty()
}

// coalesce merges adjacent fragments (in traversal order) whose
// regions abut exactly and whose values compare equal.
func coalesce[V Equaler[V]](sorted []Fragment[V]) []Fragment[V] {
	if len(sorted) == 0 {
		return sorted
	}
	out := make([]Fragment[V], 0, len(sorted))
	cur := sorted[0]
	for i := 1; i < len(sorted); i++ {
		nxt := sorted[i]
		if abuts(cur.Region, nxt.Region) && cur.Value.Equal(nxt.Value) {
			cur.Region = Region{
				HashStart: cur.Region.HashStart,
				HashEnd:   nxt.Region.HashEnd,
				Keys:      cur.Region.Keys,
			}
			continue
		}
		out = append(out, cur)
		cur = nxt
	}
	out = append(out, cur)
	return out
}

// abuts reports whether b's hash range continues immediately where
// a's ends, within the same key range. Only hash-adjacent fragments
// within an identical key range are ever merged; key-range merging is
// not required by any caller in this module.
func abuts(a, b Region) bool {
	return a.Keys.Equal(b.Keys) && a.HashEnd == b.HashStart
}

// Equal reports whether k and o describe the same key range.
func (k KeyRange) Equal(o KeyRange) bool {
	return k.unbounded() == o.unbounded() &&
		string(k.Start) == string(o.Start) && string(k.End) == string(o.End)
}

// Len reports the number of maximal fragments currently stored.
func (m Map[V]) Len() int { return len(m.frags) }

// Fragments returns the map's fragments in traversal order. The
// returned slice must not be mutated.
func (m Map[V]) Fragments() []Fragment[V] {
	return m.frags
}

// Visit invokes f(subRegion, value) for each maximal constant
// sub-region of m intersected with region, in key-range-then-hash
// order.
func (m Map[V]) Visit(target Region, f func(Region, V)) {
	for _, frag := range m.frags {
		sub := Intersect(frag.Region, target)
		if sub.Empty() {
			continue
		}
		f(sub, frag.Value)
	}
}

// VisitMutable is like Visit but f may return a replacement value; the
// map is re-coalesced on return. Since Map is used as an immutable
// value throughout the coordinator, VisitMutable returns a new Map
// rather than mutating receiver state.
func (m Map[V]) VisitMutable(target Region, f func(Region, V) V) Map[V] {
	out := make([]Fragment[V], 0, len(m.frags))
	for _, frag := range m.frags {
		sub := Intersect(frag.Region, target)
		if sub.Empty() {
			out = append(out, frag)
			continue
		}
		if sub.Equal(frag.Region) {
			out = append(out, Fragment[V]{Region: frag.Region, Value: f(sub, frag.Value)})
			continue
		}
		// frag straddles the boundary of target: split it.
		for _, piece := range splitAround(frag.Region, target) {
			if piece.Equal(sub) {
				out = append(out, Fragment[V]{Region: piece, Value: f(piece, frag.Value)})
			} else {
				out = append(out, Fragment[V]{Region: piece, Value: frag.Value})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return compare(out[i].Region, out[j].Region) < 0 })
	return Map[V]{frags: coalesce(out)}
}

// Set assigns v to the whole of target, introducing new fragments for
// any part of target not already covered by m (unlike VisitMutable,
// which only ever touches regions m already tiles). Existing fragments
// outside target are left untouched.
func (m Map[V]) Set(target Region, v V) Map[V] {
	if target.Empty() {
		return m
	}
	out := make([]Fragment[V], 0, len(m.frags)+1)
	for _, frag := range m.frags {
		sub := Intersect(frag.Region, target)
		if sub.Empty() {
			out = append(out, frag)
			continue
		}
		if sub.Equal(frag.Region) {
			// entirely absorbed by target; replaced by target's own
			// fragment below.
			continue
		}
		for _, piece := range splitAround(frag.Region, target) {
			if !piece.Equal(sub) {
				out = append(out, Fragment[V]{Region: piece, Value: frag.Value})
			}
		}
	}
	out = append(out, Fragment[V]{Region: target, Value: v})
	sort.Slice(out, func(i, j int) bool { return compare(out[i].Region, out[j].Region) < 0 })
	return Map[V]{frags: coalesce(out)}
}

// splitAround splits whole into the pieces covering whole∩target and
// whole\target, assuming whole and target share the same key range
// (the only case VisitMutable needs, since region maps in this package
// never need to split on key ranges).
func splitAround(whole, target Region) []Region {
	sub := Intersect(whole, target)
	if sub.Equal(whole) || sub.Empty() {
		return []Region{whole}
	}
	var pieces []Region
	if whole.HashStart < sub.HashStart {
		pieces = append(pieces, Region{HashStart: whole.HashStart, HashEnd: sub.HashStart, Keys: whole.Keys})
	}
	pieces = append(pieces, sub)
	if sub.HashEnd < whole.HashEnd {
		pieces = append(pieces, Region{HashStart: sub.HashEnd, HashEnd: whole.HashEnd, Keys: whole.Keys})
	}
	return pieces
}

// MapValues produces a new map of the same region shape as m, applying
// f to every fragment's value.
func MapValues[V Equaler[V], W Equaler[W]](m Map[V], f func(Region, V) W) Map[W] {
	out := make([]Fragment[W], 0, len(m.frags))
	for _, frag := range m.frags {
		out = append(out, Fragment[W]{Region: frag.Region, Value: f(frag.Region, frag.Value)})
	}
	return FromFragments(out)
}

// MapMulti is map_multi: f returns a region map for each input
// sub-region of m intersected with target; results are reassembled
// into a single map tiling target.
func MapMulti[V Equaler[V], W Equaler[W]](m Map[V], target Region, f func(Region, V) Map[W]) Map[W] {
	var out []Fragment[W]
	m.Visit(target, func(sub Region, v V) {
		produced := f(sub, v)
		out = append(out, produced.frags...)
	})
	return FromFragments(out)
}

// Single returns a map consisting of exactly one fragment covering the
// whole of region.
func Single[V Equaler[V]](r Region, v V) Map[V] {
	if r.Empty() {
		return Map[V]{}
	}
	return Map[V]{frags: []Fragment[V]{{Region: r, Value: v}}}
}
