package store

import (
	"sort"

	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
)

// Range is a (clock, length) deleted interval.
type Range struct {
	Clock  uint32
	Length uint32
}

// DeleteSet is a per-client, normalized (sorted, non-overlapping) list of
// deleted clock ranges (spec §3).
type DeleteSet struct {
	Clients map[uint32][]Range
}

// NewDeleteSet returns an empty DeleteSet.
func NewDeleteSet() *DeleteSet {
	return &DeleteSet{Clients: make(map[uint32][]Range)}
}

// Add records [clock, clock+length) as deleted for client. The set is
// left unnormalized; call Normalize before relying on sortedness.
func (ds *DeleteSet) Add(client uint32, clock, length uint32) {
	if length == 0 {
		return
	}
	ds.Clients[client] = append(ds.Clients[client], Range{Clock: clock, Length: length})
}

// AddID is a convenience wrapper recording a single identifier range.
func (ds *DeleteSet) AddID(target id.ID, length uint32) {
	ds.Add(target.Client, target.Clock, length)
}

// Normalize sorts and merges overlapping/adjacent ranges per client
// (spec §4.5 step 1).
func (ds *DeleteSet) Normalize() {
	for c, ranges := range ds.Clients {
		if len(ranges) == 0 {
			continue
		}
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Clock < ranges[j].Clock })
		merged := make([]Range, 0, len(ranges))
		cur := ranges[0]
		for _, r := range ranges[1:] {
			if r.Clock <= cur.Clock+cur.Length {
				end := cur.Clock + cur.Length
				if r.Clock+r.Length > end {
					end = r.Clock + r.Length
				}
				cur.Length = end - cur.Clock
				continue
			}
			merged = append(merged, cur)
			cur = r
		}
		merged = append(merged, cur)
		ds.Clients[c] = merged
	}
}

// IsDeleted reports whether target falls inside some recorded range.
func (ds *DeleteSet) IsDeleted(target id.ID) bool {
	for _, r := range ds.Clients[target.Client] {
		if target.Clock >= r.Clock && target.Clock < r.Clock+r.Length {
			return true
		}
	}
	return false
}

// Merge folds other's ranges into ds (used to combine two transactions'
// delete sets, e.g. when associatively merging updates).
func (ds *DeleteSet) Merge(other *DeleteSet) {
	for c, ranges := range other.Clients {
		ds.Clients[c] = append(ds.Clients[c], ranges...)
	}
	ds.Normalize()
}

// Clone deep-copies the delete set.
func (ds *DeleteSet) Clone() *DeleteSet {
	out := NewDeleteSet()
	for c, ranges := range ds.Clients {
		out.Clients[c] = append([]Range{}, ranges...)
	}
	return out
}

// ComputeDeleteSet scans every struct in s and records the clock ranges
// occupied by GC structs and deleted/tombstoned items, the delete set
// sent alongside an update's struct section (encodeStateAsUpdate has no
// separately-tracked delete set to draw from; deletion is visible only on
// the items themselves, spec §3 Document / §6).
func ComputeDeleteSet(s *Store) *DeleteSet {
	ds := NewDeleteSet()
	for _, c := range s.ClientIDs() {
		for _, st := range s.Segment(c) {
			switch v := st.(type) {
			case *item.GC:
				ds.AddID(v.ID, v.Length)
			case *item.Item:
				if v.Deleted() {
					ds.AddID(v.ID, v.Length)
				}
			}
		}
	}
	ds.Normalize()
	return ds
}

// ApplyTo marks every item covered by ds as deleted in store, splitting
// structs at range boundaries as needed, and returns the subset of
// ranges whose clock space is not yet known to store (to be retried once
// the owning client's structs arrive) (spec §4.4).
func (ds *DeleteSet) ApplyTo(s *Store) (pending *DeleteSet) {
	pending = NewDeleteSet()
	for client, ranges := range ds.Clients {
		known := s.GetState(client)
		for _, r := range ranges {
			end := r.Clock + r.Length
			if r.Clock >= known {
				pending.Add(client, r.Clock, r.Length)
				continue
			}
			usable := r.Length
			if end > known {
				usable = known - r.Clock
				pending.Add(client, known, end-known)
			}
			_ = s.IterateRange(client, r.Clock, usable, func(st item.Struct) error {
				if it, ok := st.(*item.Item); ok {
					it.SetDeleted(true)
				}
				return nil
			})
		}
	}
	pending.Normalize()
	return pending
}
