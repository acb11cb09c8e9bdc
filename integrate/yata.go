package integrate

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// ResolveParent fills in x.Parent.Resolved from either a root name or an
// owning item id, per spec §3 ("parent — ... may be an ID or a root-name
// string; resolved to a container reference on integration").
func (ctx *Context) ResolveParent(x *item.Item) (*container.Container, error) {
	if c, ok := x.Parent.Resolved.(*container.Container); ok {
		return c, nil
	}
	if x.Parent.RootName != "" {
		c := ctx.Roots.GetOrCreateRoot(x.Parent.RootName, container.KindArray)
		x.Parent.Resolved = c
		return c, nil
	}
	st, err := ctx.Store.Get(x.Parent.ItemID)
	if err != nil {
		return nil, err
	}
	owner, ok := st.(*item.Item)
	if !ok || owner.Content.Kind != content.KindType {
		return nil, fmt.Errorf("parent item does not embed a container: %w", store.ErrBrokenInvariant)
	}
	c, ok := owner.Content.Type.(*container.Container)
	if !ok {
		return nil, fmt.Errorf("parent item's container ref has the wrong type: %w", store.ErrBrokenInvariant)
	}
	x.Parent.Resolved = c
	return c, nil
}

// mapLeftmost walks the per-key chain for sub backwards from the current
// tail to the oldest entry, the starting point for a map-item conflict
// scan when the new item has no provisional left neighbor (spec §4.3
// step 2).
func mapLeftmost(parent *container.Container, sub string) *item.Item {
	it := parent.Map[sub]
	for it != nil && it.Left != nil {
		it = it.Left
	}
	return it
}

// Integrate links x into parent's document-order list (sequence items) or
// per-key chain (map items), resolving concurrent-insert conflicts with
// the YATA algorithm (spec §4.3). x.Left/x.Right must already hold the
// provisional neighbors derived from x.Origin/x.RightOrigin.
func (ctx *Context) Integrate(parent *container.Container, x *item.Item) error {
	left := x.Left
	right := x.Right

	noConflict := (left == nil && right == parent.Start) ||
		(x.ParentSub != nil && left == nil && right == mapLeftmost(parent, *x.ParentSub)) ||
		(left != nil && left.Right == right)

	if !noConflict {
		var o *item.Item
		if left != nil {
			o = left.Right
		} else if x.ParentSub != nil {
			o = mapLeftmost(parent, *x.ParentSub)
		} else {
			o = parent.Start
		}

		oldStart := o

		itemsBeforeOrigin := mapset.NewThreadUnsafeSet[id.ID]()
		conflicting := mapset.NewThreadUnsafeSet[id.ID]()

	scan:
		for o != nil && o != right {
			itemsBeforeOrigin.Add(o.ID)
			conflicting.Add(o.ID)

			switch {
			case o.Origin == x.Origin:
				if o.ID.Client < x.ID.Client {
					left = o
					conflicting.Clear()
				} else if o.RightOrigin == x.RightOrigin {
					break scan
				}
				// else: fall through, keep scanning
			case o.Origin != id.None && itemsBeforeOrigin.Contains(o.Origin):
				if !conflicting.Contains(o.Origin) {
					left = o
					conflicting.Clear()
				}
			default:
				break scan
			}
			o = o.Right
		}
		right = rightBoundaryAfterScan(left, oldStart)
	}

	x.Left = left
	x.Right = right

	if x.ParentSub == nil {
		if left != nil {
			left.Right = x
		} else {
			parent.Start = x
		}
		if right != nil {
			right.Left = x
		}
	} else {
		if left != nil {
			left.Right = x
		}
		if right != nil {
			right.Left = x
		}
		if right == nil {
			prior := parent.Map[*x.ParentSub]
			parent.Map[*x.ParentSub] = x
			if prior != nil && prior != x {
				prior.SetDeleted(true)
				ctx.Tx.RecordDelete(prior.ID, prior.Length)
			}
		}
	}

	if parent.Deleted() || (x.ParentSub != nil && parent.Map[*x.ParentSub] != x) {
		x.SetDeleted(true)
		ctx.Tx.RecordDelete(x.ID, x.Length)
	}

	if x.ParentSub == nil && x.Content.IsCountable() && !x.Deleted() {
		parent.AddLength(int(x.Length))
	}

	if err := ctx.Store.Append(x); err != nil {
		return err
	}

	if x.Content.Kind == content.KindType {
		if nested, ok := x.Content.Type.(*container.Container); ok {
			nested.Item = x
		}
	}

	ctx.Tx.RecordChange(parent, x.ParentSub)
	return nil
}

// rightBoundaryAfterScan computes the final right neighbor once the scan
// loop above exits. If the scan settled on a left neighbor, x goes right
// after it. Otherwise x stays at the head of the chain, so its right
// neighbor is whatever occupied that head before the scan started —
// oldStart (parent.Start or mapLeftmost), not wherever the scan cursor
// ended up, which may have advanced past other unrelated items still
// sitting ahead of it in document order.
func rightBoundaryAfterScan(left, oldStart *item.Item) *item.Item {
	if left != nil {
		return left.Right
	}
	return oldStart
}
