package transact

import (
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// gc walks every range in the transaction's DeleteSet and, for each
// deleted item the gc-filter allows, either collapses it to a bare GC
// struct or swaps its content for a Deleted placeholder when it still
// embeds a nested container (spec §4.5 step 6, §5 Memory). Adjacent
// same-kind structs are then coalesced.
func (e *Engine) gc(t *Transaction) {
	for client, ranges := range t.DeleteSet.Clients {
		for _, r := range ranges {
			e.gcRange(client, r)
		}
	}
}

func (e *Engine) gcRange(client uint32, r store.Range) {
	idx, err := e.Store.FindIndex(client, r.Clock)
	if err != nil {
		return
	}
	end := r.Clock + r.Length
	lastTouched := idx - 1
	for {
		seg := e.Store.Segment(client)
		if idx >= len(seg) || seg[idx].StructID().Clock >= end {
			break
		}
		st := seg[idx]
		it, ok := st.(*item.Item)
		if !ok || !it.Deleted() || it.Keep() {
			idx++
			continue
		}
		if e.GCFilter != nil && !e.GCFilter(it) {
			idx++
			continue
		}
		if it.Content.Kind == content.KindType {
			it.Content = content.NewDeleted(it.Length)
		} else {
			e.Store.ReplaceAt(client, idx, &item.GC{ID: it.ID, Length: it.Length})
		}
		lastTouched = idx
		idx++
	}
	e.mergeClientTail(client, lastTouched)
}

// mergeClientTail repeatedly merges the struct at idx with its right
// neighbor, walking leftward, until it reaches the start of the segment
// (spec §4.5 step 6 "merge neighboring structs, rightmost first").
func (e *Engine) mergeClientTail(client uint32, fromIdx int) {
	idx := fromIdx
	for idx >= 0 {
		if e.Store.MergeAdjacent(client, idx) {
			continue
		}
		idx--
	}
}

// mergeCandidates retries merging every struct a split produced with
// whatever now sits immediately to its left, a simplified stand-in for
// spec §4.5 step 7's "from the pre-state boundary forward" sweep: a
// split's two halves are the only pairs likely to have become mergeable
// again since GC may have just removed the item that originally forced
// the split apart.
func (e *Engine) mergeCandidates(t *Transaction) {
	for _, st := range store.Dedup(t.MergeCandidates) {
		client := st.StructID().Client
		idx, err := e.Store.FindIndex(client, st.StructID().Clock)
		if err != nil {
			continue
		}
		if idx > 0 {
			e.Store.MergeAdjacent(client, idx-1)
		}
	}
}
