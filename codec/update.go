package codec

import (
	"encoding/binary"

	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// Update is the decoded form of a binary update: a per-client struct
// delta plus the sender's delete set (spec §4.7).
type Update struct {
	Structs   map[uint32][]item.Struct
	DeleteSet *store.DeleteSet
}

// EncodeStateAsUpdate returns the bytes bringing a peer at remoteSV up to
// s's current state: every struct remoteSV doesn't yet cover, plus s's
// full delete set (spec §6 encodeStateAsUpdate). A nil remoteSV encodes
// the entire local history.
func EncodeStateAsUpdate(s *store.Store, remoteSV map[uint32]uint32) ([]byte, error) {
	if remoteSV == nil {
		remoteSV = map[uint32]uint32{}
	}
	structBytes, err := EncodeStructs(s, remoteSV)
	if err != nil {
		return nil, err
	}
	dsBytes := EncodeDeleteSet(store.ComputeDeleteSet(s))
	return append(structBytes, dsBytes...), nil
}

// DecodeUpdate parses bytes produced by EncodeStateAsUpdate (or by
// MergeUpdates) into its struct and delete-set components.
func DecodeUpdate(b []byte) (*Update, error) {
	d := newDecoder(b)
	structs, err := DecodeStructs(d)
	if err != nil {
		return nil, err
	}
	ds, err := DecodeDeleteSet(d)
	if err != nil {
		return nil, err
	}
	return &Update{Structs: structs, DeleteSet: ds}, nil
}

// EncodeStateVector writes s's state vector: varuint numberOfClients,
// then (clientId, clock) varuint pairs (spec §6 encodeStateVector).
func EncodeStateVector(s *store.Store) []byte {
	sv := s.StateVector()
	clients := make([]uint32, 0, len(sv))
	for c := range sv {
		clients = append(clients, c)
	}
	clients = store.SortClients(clients)

	buf := binary.AppendUvarint(nil, uint64(len(clients)))
	for _, c := range clients {
		buf = binary.AppendUvarint(buf, uint64(c))
		buf = binary.AppendUvarint(buf, uint64(sv[c]))
	}
	return buf
}

// DecodeStateVector parses bytes written by EncodeStateVector.
func DecodeStateVector(b []byte) (map[uint32]uint32, error) {
	d := newDecoder(b)
	numClients, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	sv := make(map[uint32]uint32, numClients)
	for i := uint64(0); i < numClients; i++ {
		client, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		clock, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		sv[uint32(client)] = uint32(clock)
	}
	return sv, nil
}

// encodeUpdate re-serializes a decoded Update, the inverse of
// DecodeUpdate, used by MergeUpdates and DiffUpdate to produce their
// output bytes from an in-memory Update they've assembled.
func encodeUpdate(u *Update) ([]byte, error) {
	clients := make([]uint32, 0, len(u.Structs))
	for c := range u.Structs {
		clients = append(clients, c)
	}
	clients = store.SortClients(clients)

	buf := binary.AppendUvarint(nil, uint64(len(clients)))
	for _, c := range clients {
		structs := u.Structs[c]
		buf = binary.AppendUvarint(buf, uint64(len(structs)))
		buf = binary.AppendUvarint(buf, uint64(c))
		if len(structs) > 0 {
			buf = binary.AppendUvarint(buf, uint64(structs[0].StructID().Clock))
		} else {
			buf = binary.AppendUvarint(buf, 0)
		}
		for _, st := range structs {
			var err error
			buf, err = appendStruct(buf, st)
			if err != nil {
				return nil, err
			}
		}
	}
	ds := u.DeleteSet
	if ds == nil {
		ds = store.NewDeleteSet()
	}
	return append(buf, EncodeDeleteSet(ds)...), nil
}

// MergeUpdates combines several encoded updates into one, deduplicating
// overlapping struct coverage per client (so the result is order-
// insensitive for disjoint updates and associative for split slices of
// one history, spec §6, §8 law 4).
func MergeUpdates(updates [][]byte) ([]byte, error) {
	merged := &Update{Structs: map[uint32][]item.Struct{}, DeleteSet: store.NewDeleteSet()}
	for _, b := range updates {
		u, err := DecodeUpdate(b)
		if err != nil {
			return nil, err
		}
		for c, structs := range u.Structs {
			merged.Structs[c] = append(merged.Structs[c], structs...)
		}
		merged.DeleteSet.Merge(u.DeleteSet)
	}
	for c, structs := range merged.Structs {
		merged.Structs[c] = dedupClientRun(structs)
	}
	return encodeUpdate(merged)
}

// dedupClientRun sorts one client's structs by clock and drops/trims
// overlapping coverage, keeping the first occurrence of each clock unit
// (idempotent re-merge of the same update, spec §8 law 3).
func dedupClientRun(structs []item.Struct) []item.Struct {
	sortByClock(structs)
	out := make([]item.Struct, 0, len(structs))
	var nextClock uint32
	haveAny := false
	for _, st := range structs {
		clock := st.StructID().Clock
		length := st.StructLength()
		if haveAny && clock+length <= nextClock {
			continue // fully covered already
		}
		if haveAny && clock < nextClock {
			st = trimPrefix(st, nextClock-clock)
			clock = nextClock
			length = st.StructLength()
		}
		out = append(out, st)
		nextClock = clock + length
		haveAny = true
	}
	return out
}

func sortByClock(structs []item.Struct) {
	for i := 1; i < len(structs); i++ {
		for j := i; j > 0 && structs[j-1].StructID().Clock > structs[j].StructID().Clock; j-- {
			structs[j-1], structs[j] = structs[j], structs[j-1]
		}
	}
}

func trimPrefix(st item.Struct, n uint32) item.Struct {
	switch v := st.(type) {
	case *item.GC:
		return &item.GC{ID: v.ID.Last(n + 1), Length: v.Length - n}
	case *item.Skip:
		return &item.Skip{ID: v.ID.Last(n + 1), Length: v.Length - n}
	case *item.Item:
		_, right := v.Content.SplitAt(int(n))
		return &item.Item{
			ID:          v.ID.Last(n + 1),
			Length:      v.Length - n,
			Origin:      v.ID.Last(n),
			RightOrigin: v.RightOrigin,
			Parent:      v.Parent,
			ParentSub:   v.ParentSub,
			Content:     right,
			Info:        v.Info,
		}
	default:
		return st
	}
}

// DiffUpdate returns the subset of update not covered by sv: every
// struct clock range not already known at sv, and the update's full
// delete set unchanged (deletes are idempotent to re-apply, spec §6
// diffUpdate, §8 law 5).
func DiffUpdate(update []byte, sv map[uint32]uint32) ([]byte, error) {
	u, err := DecodeUpdate(update)
	if err != nil {
		return nil, err
	}
	out := &Update{Structs: map[uint32][]item.Struct{}, DeleteSet: u.DeleteSet}
	for c, structs := range u.Structs {
		known := sv[c]
		var kept []item.Struct
		for _, st := range structs {
			clock := st.StructID().Clock
			length := st.StructLength()
			if clock+length <= known {
				continue
			}
			if clock < known {
				st = trimPrefix(st, known-clock)
			}
			kept = append(kept, st)
		}
		if len(kept) > 0 {
			out.Structs[c] = kept
		}
	}
	return encodeUpdate(out)
}
