package doc

import (
	"sort"

	"github.com/synix/crdtengine/codec"
	"github.com/synix/crdtengine/integrate"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// ApplyUpdate decodes b and integrates every struct and delete range it
// carries, buffering anything whose causal dependencies aren't yet known
// locally for a later retry (spec §6 applyUpdate, §4.4).
func (d *Document) ApplyUpdate(b []byte, origin any) error {
	u, err := codec.DecodeUpdate(b)
	if err != nil {
		return err
	}
	return d.integrateDecoded(u.Structs, u.DeleteSet, origin)
}

// integrateDecoded runs one remote transaction attempting to integrate
// newStructs merged with anything still pending from an earlier call,
// then applies newDeletes merged with any pending deletes. When both
// deletes and structs are still pending after that, the struct queue is
// re-attempted once more in case a delete just resolved a struct's parent
// dependency (spec §4.4, and the pendingStructs/pendingDs
// ordering decision recorded in this repo's design notes).
func (d *Document) integrateDecoded(newStructs map[uint32][]item.Struct, newDeletes *store.DeleteSet, origin any) error {
	return d.transactRemote(func(ctx *integrate.Context) error {
		merged := mergePending(d.pendingStructs, newStructs)

		remaining, err := ctx.IntegratePending(merged)
		if err != nil {
			return err
		}
		d.pendingStructs = remaining

		ds := d.pendingDeletes.Clone()
		ds.Merge(newDeletes)
		d.pendingDeletes = ctx.ApplyDeleteSet(ds)

		if len(d.pendingDeletes.Clients) > 0 && len(d.pendingStructs) > 0 {
			remaining, err = ctx.IntegratePending(d.pendingStructs)
			if err != nil {
				return err
			}
			d.pendingStructs = remaining
		}
		return nil
	}, origin)
}

// mergePending concatenates each client's buffered and freshly-decoded
// structs and re-sorts by clock: IntegratePending's sweep assumes each
// client's queue is ascending, an invariant a later full resync can
// otherwise break by reintroducing clocks already covered by a buffered
// struct that arrived out of order.
func mergePending(pending map[uint32][]item.Struct, fresh map[uint32][]item.Struct) map[uint32][]item.Struct {
	out := make(map[uint32][]item.Struct, len(pending)+len(fresh))
	for c, s := range pending {
		out[c] = append(out[c], s...)
	}
	for c, s := range fresh {
		out[c] = append(out[c], s...)
	}
	for c, s := range out {
		sort.SliceStable(s, func(i, j int) bool { return s[i].StructID().Clock < s[j].StructID().Clock })
		out[c] = s
	}
	return out
}

// DecodeStateVector parses bytes produced by a peer's EncodeStateVector,
// for passing to this document's EncodeStateAsUpdate (spec §6).
func DecodeStateVector(b []byte) (map[uint32]uint32, error) { return codec.DecodeStateVector(b) }

// MergeUpdates combines several encoded updates into one (spec §6).
func MergeUpdates(updates [][]byte) ([]byte, error) { return codec.MergeUpdates(updates) }

// DiffUpdate returns the subset of update not covered by sv (spec §6).
func DiffUpdate(update []byte, sv map[uint32]uint32) ([]byte, error) {
	return codec.DiffUpdate(update, sv)
}
