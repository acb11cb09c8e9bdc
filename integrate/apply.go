package integrate

import (
	"fmt"

	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// GetMissing resolves x's Origin/RightOrigin to its provisional Left/
// Right neighbors and checks that x's parent (when referenced by item
// id) is locally known, without yet resolving the parent to a container.
// If any referenced client/clock is not yet locally present, it returns
// that dependency so the caller can defer x (spec §4.4 step 2).
func (ctx *Context) GetMissing(x *item.Item) (missingClient uint32, missingClock uint32, hasMissing bool, err error) {
	if x.Origin != id.None {
		if ctx.Store.GetState(x.Origin.Client) <= x.Origin.Clock {
			return x.Origin.Client, x.Origin.Clock, true, nil
		}
		st, err := ctx.Store.GetItemCleanEnd(x.Origin)
		if err != nil {
			return 0, 0, false, err
		}
		left, ok := st.(*item.Item)
		if !ok {
			return 0, 0, false, fmt.Errorf("origin resolved to a non-item struct: %w", store.ErrBrokenInvariant)
		}
		x.Left = left
	} else {
		x.Left = nil
	}

	if x.RightOrigin != id.None {
		if ctx.Store.GetState(x.RightOrigin.Client) <= x.RightOrigin.Clock {
			return x.RightOrigin.Client, x.RightOrigin.Clock, true, nil
		}
		st, err := ctx.Store.GetItemCleanStart(x.RightOrigin)
		if err != nil {
			return 0, 0, false, err
		}
		right, ok := st.(*item.Item)
		if !ok {
			return 0, 0, false, fmt.Errorf("rightOrigin resolved to a non-item struct: %w", store.ErrBrokenInvariant)
		}
		x.Right = right
	} else {
		x.Right = nil
	}

	if x.Parent.Resolved == nil && x.Parent.RootName == "" {
		if ctx.Store.GetState(x.Parent.ItemID.Client) <= x.Parent.ItemID.Clock {
			return x.Parent.ItemID.Client, x.Parent.ItemID.Clock, true, nil
		}
	}
	return 0, 0, false, nil
}

// trimItemPrefix drops the first offset content units of it, which are
// already known locally, returning an equivalent item starting at the
// later clock. it must not yet be linked into any list or store.
func trimItemPrefix(it *item.Item, offset uint32) *item.Item {
	if offset == 0 {
		return it
	}
	_, right := it.Content.SplitAt(int(offset))
	return &item.Item{
		ID:          id.ID{Client: it.ID.Client, Clock: it.ID.Clock + offset},
		Length:      it.Length - offset,
		Origin:      id.ID{Client: it.ID.Client, Clock: it.ID.Clock + offset - 1},
		RightOrigin: it.RightOrigin,
		Parent:      it.Parent,
		ParentSub:   it.ParentSub,
		Content:     right,
		Info:        it.Info,
	}
}

func trimStructPrefix(s item.Struct, offset uint32) item.Struct {
	if offset == 0 {
		return s
	}
	base := s.StructID()
	newID := id.ID{Client: base.Client, Clock: base.Clock + offset}
	newLen := s.StructLength() - offset
	switch s.(type) {
	case *item.GC:
		return &item.GC{ID: newID, Length: newLen}
	case *item.Skip:
		return &item.Skip{ID: newID, Length: newLen}
	default:
		return s
	}
}

// IntegratePending attempts to integrate every struct in pending,
// repeatedly sweeping clients highest-id-first (spec §4.4 step 1) until a
// full pass makes no progress. Structs still blocked on an absent
// dependency (local or remote) are returned for a future retry, exactly
// mirroring the teacher's own "push on a stack, flush to a rest buffer"
// framing of missing causality in spec §4.4 step 2 — implemented here as
// a fixed-point sweep rather than a client-switching stack machine, since
// both converge to the same integrated/blocked partition and the sweep
// is far simpler to get right in Go.
func (ctx *Context) IntegratePending(pending map[uint32][]item.Struct) (map[uint32][]item.Struct, error) {
	clients := make([]uint32, 0, len(pending))
	for c := range pending {
		clients = append(clients, c)
	}
	clients = store.SortClients(clients)

	for {
		progress := false
		for _, c := range clients {
			queue := pending[c]
			for len(queue) > 0 {
				s := queue[0]
				local := ctx.Store.GetState(c)
				if local < s.StructID().Clock {
					break
				}
				offset := local - s.StructID().Clock
				if offset >= s.StructLength() {
					queue = queue[1:]
					progress = true
					continue
				}

				if it, ok := s.(*item.Item); ok {
					trimmed := trimItemPrefix(it, offset)
					_, _, hasMissing, err := ctx.GetMissing(trimmed)
					if err != nil {
						return nil, err
					}
					if hasMissing {
						break
					}
					parent, err := ctx.ResolveParent(trimmed)
					if err != nil {
						break
					}
					if err := ctx.Integrate(parent, trimmed); err != nil {
						return nil, err
					}
				} else {
					trimmed := trimStructPrefix(s, offset)
					if err := ctx.Store.Append(trimmed); err != nil {
						return nil, err
					}
				}
				queue = queue[1:]
				progress = true
			}
			pending[c] = queue
		}
		if !progress {
			break
		}
	}

	out := make(map[uint32][]item.Struct)
	for c, q := range pending {
		if len(q) > 0 {
			out[c] = q
		}
	}
	return out, nil
}

// ApplyDeleteSet marks every item covered by ds as deleted, splitting
// structs at boundaries, returning the portion that references clock
// space not yet locally known (spec §4.4 "After structs...").
func (ctx *Context) ApplyDeleteSet(ds *store.DeleteSet) *store.DeleteSet {
	return ds.ApplyTo(ctx.Store)
}
