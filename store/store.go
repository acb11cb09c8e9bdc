// Package store implements the StructStore (per-client ordered struct
// arrays) and the DeleteSet (per-client compact deleted-interval list)
// from spec §4.1.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
)

// ErrBrokenInvariant is returned when an append would violate per-client
// clock contiguity, or a split is requested past a struct's bounds
// (spec §7).
var ErrBrokenInvariant = errors.New("broken invariant")

// ErrNotPresent is returned when an identifier falls outside every known
// client segment (spec §4.1).
var ErrNotPresent = errors.New("not present")

// Store is the per-client map of ordered, clock-contiguous struct arrays.
type Store struct {
	clients map[uint32][]item.Struct
}

// New returns an empty StructStore.
func New() *Store {
	return &Store{clients: make(map[uint32][]item.Struct)}
}

// ClientIDs returns every client with at least one struct, unordered.
func (s *Store) ClientIDs() []uint32 {
	out := make([]uint32, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Segment returns the raw struct array for a client (nil if absent). The
// returned slice must not be mutated by callers outside this package.
func (s *Store) Segment(client uint32) []item.Struct {
	return s.clients[client]
}

// Append validates contiguity for struct.StructID().Client and appends.
func (s *Store) Append(st item.Struct) error {
	c := st.StructID().Client
	seg := s.clients[c]
	tail := uint32(0)
	if len(seg) > 0 {
		last := seg[len(seg)-1]
		tail = last.StructID().Clock + last.StructLength()
	}
	if st.StructID().Clock != tail {
		return fmt.Errorf("append client=%d expected clock=%d got=%d: %w", c, tail, st.StructID().Clock, ErrBrokenInvariant)
	}
	s.clients[c] = append(seg, st)
	return nil
}

// GetState returns the tail clock (next expected clock) for a client, 0
// if the client is unknown.
func (s *Store) GetState(client uint32) uint32 {
	seg := s.clients[client]
	if len(seg) == 0 {
		return 0
	}
	last := seg[len(seg)-1]
	return last.StructID().Clock + last.StructLength()
}

// StateVector snapshots every client's tail clock.
func (s *Store) StateVector() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(s.clients))
	for c := range s.clients {
		out[c] = s.GetState(c)
	}
	return out
}

// FindIndex locates the index of the struct covering (client, clock)
// using an interpolated binary search seeded by a linear-interpolation
// pivot, falling back to standard bisection (spec §4.1, §9).
func (s *Store) FindIndex(client uint32, clock uint32) (int, error) {
	seg := s.clients[client]
	n := len(seg)
	if n == 0 {
		return -1, ErrNotPresent
	}
	first := seg[0].StructID().Clock
	last := seg[n-1]
	lastClock := last.StructID().Clock
	lastLen := last.StructLength()
	if clock < first || clock >= lastClock+lastLen {
		return -1, ErrNotPresent
	}

	denom := lastClock + lastLen - 1 - first
	lo, hi := 0, n-1
	if denom > 0 {
		pivot := int(float64(clock-first) / float64(denom) * float64(n-1))
		if pivot < 0 {
			pivot = 0
		}
		if pivot > n-1 {
			pivot = n - 1
		}
		st := seg[pivot]
		c0, l0 := st.StructID().Clock, st.StructLength()
		if c0 <= clock && clock < c0+l0 {
			return pivot, nil
		}
		if c0 < clock {
			lo = pivot + 1
		} else {
			hi = pivot - 1
		}
	}
	for lo <= hi {
		mid := (lo + hi) / 2
		st := seg[mid]
		c0, l0 := st.StructID().Clock, st.StructLength()
		switch {
		case clock < c0:
			hi = mid - 1
		case clock >= c0+l0:
			lo = mid + 1
		default:
			return mid, nil
		}
	}
	return -1, ErrNotPresent
}

// Get returns the struct covering identifier target.
func (s *Store) Get(target id.ID) (item.Struct, error) {
	idx, err := s.FindIndex(target.Client, target.Clock)
	if err != nil {
		return nil, err
	}
	return s.clients[target.Client][idx], nil
}

// Replace substitutes old with replacement at its position, preserving
// ordering (spec §4.1).
func (s *Store) Replace(old, replacement item.Struct) error {
	c := old.StructID().Client
	seg := s.clients[c]
	idx, err := s.FindIndex(c, old.StructID().Clock)
	if err != nil {
		return err
	}
	seg[idx] = replacement
	return nil
}

// splitItemAt splits the item at index idx in client c's segment at
// content-unit offset n (0 < n < length), inserting the right half
// immediately after it, and returns (left, right).
func (s *Store) splitItemAt(c uint32, idx int, n uint32) (*item.Item, *item.Item, error) {
	seg := s.clients[c]
	st := seg[idx]
	it, ok := st.(*item.Item)
	if !ok {
		return nil, nil, s.splitNonItemAt(c, idx, n)
	}
	if n == 0 || n >= it.Length {
		return nil, nil, fmt.Errorf("split offset %d out of bounds for length %d: %w", n, it.Length, ErrBrokenInvariant)
	}
	right := it.SplitAt(n)
	newSeg := make([]item.Struct, 0, len(seg)+1)
	newSeg = append(newSeg, seg[:idx+1]...)
	newSeg = append(newSeg, right)
	newSeg = append(newSeg, seg[idx+1:]...)
	s.clients[c] = newSeg
	return it, right, nil
}

// splitNonItemAt splits a GC or Skip struct at offset n, used when
// resolving clean boundaries inside a tombstoned or unknown range.
func (s *Store) splitNonItemAt(c uint32, idx int, n uint32) error {
	seg := s.clients[c]
	st := seg[idx]
	base := st.StructID()
	length := st.StructLength()
	if n == 0 || n >= length {
		return fmt.Errorf("split offset %d out of bounds for length %d: %w", n, length, ErrBrokenInvariant)
	}
	var left, right item.Struct
	switch st.(type) {
	case *item.GC:
		left = &item.GC{ID: base, Length: n}
		right = &item.GC{ID: id.ID{Client: c, Clock: base.Clock + n}, Length: length - n}
	case *item.Skip:
		left = &item.Skip{ID: base, Length: n}
		right = &item.Skip{ID: id.ID{Client: c, Clock: base.Clock + n}, Length: length - n}
	default:
		return fmt.Errorf("unknown struct kind: %w", ErrBrokenInvariant)
	}
	newSeg := make([]item.Struct, 0, len(seg)+1)
	newSeg = append(newSeg, seg[:idx]...)
	newSeg = append(newSeg, left, right)
	newSeg = append(newSeg, seg[idx+1:]...)
	s.clients[c] = newSeg
	return nil
}

// SplitItem splits an already-stored item at content-unit offset n,
// looking it up by its own id, and returns the (left, right) halves.
// Exposed for callers in package integrate that need to cut an existing
// item mid-run for an insert or delete at a non-boundary index.
func (s *Store) SplitItem(it *item.Item, n uint32) (*item.Item, *item.Item, error) {
	idx, err := s.FindIndex(it.ID.Client, it.ID.Clock)
	if err != nil {
		return nil, nil, err
	}
	return s.splitItemAt(it.ID.Client, idx, n)
}

// GetItemCleanStart locates the struct covering target and, if
// target.Clock is strictly inside it, splits it so a struct begins
// exactly at target.Clock. Returns the struct whose StructID().Clock
// equals target.Clock (spec §4.1).
func (s *Store) GetItemCleanStart(target id.ID) (item.Struct, error) {
	idx, err := s.FindIndex(target.Client, target.Clock)
	if err != nil {
		return nil, err
	}
	st := s.clients[target.Client][idx]
	if st.StructID().Clock == target.Clock {
		return st, nil
	}
	offset := target.Clock - st.StructID().Clock
	if it, ok := st.(*item.Item); ok {
		_, right, err := s.splitItemAt(target.Client, idx, offset)
		if err != nil {
			return nil, err
		}
		_ = it
		return right, nil
	}
	if err := s.splitNonItemAt(target.Client, idx, offset); err != nil {
		return nil, err
	}
	return s.clients[target.Client][idx+1], nil
}

// GetItemCleanEnd locates the struct covering target and, if
// target.Clock is not the struct's last unit, splits it so a struct ends
// exactly at target.Clock. Returns the (possibly unchanged) left half
// whose last unit is target.Clock (spec §4.1).
func (s *Store) GetItemCleanEnd(target id.ID) (item.Struct, error) {
	idx, err := s.FindIndex(target.Client, target.Clock)
	if err != nil {
		return nil, err
	}
	st := s.clients[target.Client][idx]
	lastClock := st.StructID().Clock + st.StructLength() - 1
	if lastClock == target.Clock {
		return st, nil
	}
	offset := target.Clock - st.StructID().Clock + 1
	if _, ok := st.(*item.Item); ok {
		left, _, err := s.splitItemAt(target.Client, idx, offset)
		if err != nil {
			return nil, err
		}
		return left, nil
	}
	if err := s.splitNonItemAt(target.Client, idx, offset); err != nil {
		return nil, err
	}
	return s.clients[target.Client][idx], nil
}

// IterateRange cleanly splits at both ends of [clock, clock+length) for
// client, then invokes fn on every struct fully covered by the range, in
// order (spec §4.1).
func (s *Store) IterateRange(client uint32, clock uint32, length uint32, fn func(item.Struct) error) error {
	if length == 0 {
		return nil
	}
	if _, err := s.GetItemCleanStart(id.ID{Client: client, Clock: clock}); err != nil {
		return err
	}
	endClock := clock + length - 1
	if _, err := s.GetItemCleanEnd(id.ID{Client: client, Clock: endClock}); err != nil {
		return err
	}
	startIdx, err := s.FindIndex(client, clock)
	if err != nil {
		return err
	}
	seg := s.clients[client]
	for i := startIdx; i < len(seg); i++ {
		st := seg[i]
		if st.StructID().Clock > endClock {
			break
		}
		if err := fn(st); err != nil {
			return err
		}
	}
	return nil
}

// Structs produced by a split are recorded as merge candidates on the
// transaction (integrate.Tx.RecordMergeCandidate), so the transaction
// engine can try to recombine them later (spec §4.1, §4.5).

// Dedup removes duplicate struct pointers from a merge-candidate slice,
// preserving order of first appearance.
func Dedup(cands []item.Struct) []item.Struct {
	seen := make(map[id.ID]bool, len(cands))
	out := make([]item.Struct, 0, len(cands))
	for _, c := range cands {
		k := c.StructID()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// SortClients returns client ids sorted descending, the iteration order
// integrateStructs uses (spec §4.4 step 1).
func SortClients(ids []uint32) []uint32 {
	out := append([]uint32{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// ReplaceAt substitutes the struct at index idx in client's segment,
// preserving clock contiguity (caller's responsibility). Used by GC to
// swap a deleted Item for a collapsed GC struct.
func (s *Store) ReplaceAt(client uint32, idx int, replacement item.Struct) {
	s.clients[client][idx] = replacement
}

// MergeAdjacent attempts to coalesce the struct at idx with the one
// immediately to its right in the same client segment: same struct kind,
// clock-contiguous, and (for Items) MergeableWith. On success the right
// struct is removed from the segment and true is returned (spec §4.5
// steps 6/7).
func (s *Store) MergeAdjacent(client uint32, idx int) bool {
	seg := s.clients[client]
	if idx < 0 || idx+1 >= len(seg) {
		return false
	}
	left, right := seg[idx], seg[idx+1]
	switch l := left.(type) {
	case *item.Item:
		r, ok := right.(*item.Item)
		if !ok || !l.MergeableWith(r) {
			return false
		}
		l.MergeWith(r)
	case *item.GC:
		r, ok := right.(*item.GC)
		if !ok || r.ID.Clock != l.ID.Clock+l.Length {
			return false
		}
		l.Length += r.Length
	case *item.Skip:
		r, ok := right.(*item.Skip)
		if !ok || r.ID.Clock != l.ID.Clock+l.Length {
			return false
		}
		l.Length += r.Length
	default:
		return false
	}
	s.clients[client] = append(seg[:idx+1], seg[idx+2:]...)
	return true
}

// FindIndexOrLen is FindIndex but returns len(segment) instead of an error
// when clock equals the tail (useful for "last struct" lookups during GC).
func (s *Store) FindIndexOrLen(client uint32, clock uint32) int {
	idx, err := s.FindIndex(client, clock)
	if err != nil {
		return len(s.clients[client])
	}
	return idx
}
