package a121

import (
	"errors"
	"fmt"
	"sort"
)

// ErrShapeMismatch is returned when two extended structures that are expected
// to share a shape (same group count, same sensor ids per group, same order)
// turn out not to.
var ErrShapeMismatch = errors.New("extended structures have different shapes")

// Entry is a single sensor-id-keyed value inside a group.
type Entry[T any] struct {
	SensorID int
	Value    T
}

// Group is an ordered list of entries. Sensor ids must be unique within a
// group; the insertion order is significant and preserved end-to-end.
type Group[T any] []Entry[T]

// Extended is an ordered sequence of groups, each mapping sensor ids to
// values. It is the generic container for per-sensor-per-group values:
// session configs, metadata and results all travel in this shape.
//
// A valid Extended has at least one group, every group has at least one
// entry, and sensor ids are unique within each group (they may repeat across
// groups).
type Extended[T any] struct {
	groups []Group[T]
}

// NewExtended builds an Extended from explicit groups and validates the
// container invariants.
func NewExtended[T any](groups ...Group[T]) (*Extended[T], error) {
	if len(groups) == 0 {
		return nil, errors.New("extended structure needs at least one group")
	}
	for gi, g := range groups {
		if len(g) == 0 {
			return nil, fmt.Errorf("group %d is empty", gi)
		}
		seen := make(map[int]struct{}, len(g))
		for _, e := range g {
			if e.SensorID <= 0 {
				return nil, fmt.Errorf("group %d: sensor id %d is not positive", gi, e.SensorID)
			}
			if _, dup := seen[e.SensorID]; dup {
				return nil, fmt.Errorf("group %d: duplicate sensor id %d", gi, e.SensorID)
			}
			seen[e.SensorID] = struct{}{}
		}
	}
	cp := make([]Group[T], len(groups))
	for i, g := range groups {
		cp[i] = append(Group[T](nil), g...)
	}
	return &Extended[T]{groups: cp}, nil
}

// ExtendedFromValue wraps a single value for one sensor into the canonical
// one-group shape.
func ExtendedFromValue[T any](sensorID int, v T) (*Extended[T], error) {
	return NewExtended(Group[T]{{SensorID: sensorID, Value: v}})
}

// ExtendedFromMap normalises a plain sensor-id map into a single group with
// entries ordered by ascending sensor id. Map iteration order is not stable
// in Go, so sorting is the only reproducible normalisation.
func ExtendedFromMap[T any](m map[int]T) (*Extended[T], error) {
	if len(m) == 0 {
		return nil, errors.New("extended structure needs at least one entry")
	}
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	g := make(Group[T], 0, len(ids))
	for _, id := range ids {
		g = append(g, Entry[T]{SensorID: id, Value: m[id]})
	}
	return NewExtended(g)
}

// NumGroups returns the number of groups.
func (x *Extended[T]) NumGroups() int { return len(x.groups) }

// NumEntries returns the total number of entries across all groups.
func (x *Extended[T]) NumEntries() int {
	n := 0
	for _, g := range x.groups {
		n += len(g)
	}
	return n
}

// Groups returns the underlying groups. The returned slices must be treated
// as read-only.
func (x *Extended[T]) Groups() []Group[T] { return x.groups }

// SensorIDs returns the sensor ids in group/entry order, including
// duplicates that appear in more than one group.
func (x *Extended[T]) SensorIDs() []int {
	ids := make([]int, 0, x.NumEntries())
	for _, g := range x.groups {
		for _, e := range g {
			ids = append(ids, e.SensorID)
		}
	}
	return ids
}

// At looks up the value for sensorID in the given group.
func (x *Extended[T]) At(group, sensorID int) (T, bool) {
	var zero T
	if group < 0 || group >= len(x.groups) {
		return zero, false
	}
	for _, e := range x.groups[group] {
		if e.SensorID == sensorID {
			return e.Value, true
		}
	}
	return zero, false
}

// Visit calls fn for every entry in group/entry order. It stops at the first
// error and returns it.
func (x *Extended[T]) Visit(fn func(group, sensorID int, v T) error) error {
	for gi, g := range x.groups {
		for _, e := range g {
			if err := fn(gi, e.SensorID, e.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sole returns the only value in the structure. It fails when the structure
// spans more than one entry; callers holding a non-extended session use this
// as the unwrapped accessor.
func (x *Extended[T]) Sole() (T, error) {
	var zero T
	if x.NumEntries() != 1 {
		return zero, fmt.Errorf("structure holds %d entries across %d groups, not a single value",
			x.NumEntries(), x.NumGroups())
	}
	return x.groups[0][0].Value, nil
}

// SameShape reports whether a and b have the same group count and the same
// sensor ids in the same order per group.
func SameShape[A, B any](a *Extended[A], b *Extended[B]) bool {
	if len(a.groups) != len(b.groups) {
		return false
	}
	for gi, g := range a.groups {
		if len(g) != len(b.groups[gi]) {
			return false
		}
		for ei, e := range g {
			if e.SensorID != b.groups[gi][ei].SensorID {
				return false
			}
		}
	}
	return true
}

// Zipped pairs two values that share a (group, sensor-id) slot.
type Zipped[A, B any] struct {
	A A
	B B
}

// Zip aligns two extended structures positionally. Both must have identical
// shapes; a mismatch returns ErrShapeMismatch rather than truncating.
func Zip[A, B any](a *Extended[A], b *Extended[B]) (*Extended[Zipped[A, B]], error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("zip: %w", ErrShapeMismatch)
	}
	groups := make([]Group[Zipped[A, B]], len(a.groups))
	for gi, g := range a.groups {
		zg := make(Group[Zipped[A, B]], len(g))
		for ei, e := range g {
			zg[ei] = Entry[Zipped[A, B]]{
				SensorID: e.SensorID,
				Value:    Zipped[A, B]{A: e.Value, B: b.groups[gi][ei].Value},
			}
		}
		groups[gi] = zg
	}
	return &Extended[Zipped[A, B]]{groups: groups}, nil
}

// MapExtended builds a new extended structure with the same shape as x by
// transforming every entry.
func MapExtended[A, B any](x *Extended[A], fn func(group, sensorID int, v A) (B, error)) (*Extended[B], error) {
	groups := make([]Group[B], len(x.groups))
	for gi, g := range x.groups {
		ng := make(Group[B], len(g))
		for ei, e := range g {
			v, err := fn(gi, e.SensorID, e.Value)
			if err != nil {
				return nil, err
			}
			ng[ei] = Entry[B]{SensorID: e.SensorID, Value: v}
		}
		groups[gi] = ng
	}
	return &Extended[B]{groups: groups}, nil
}
