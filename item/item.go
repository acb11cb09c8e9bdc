// Package item defines the single operation record the rest of the engine
// links into document-order lists and per-client logs, plus the GC and
// Skip pseudo-structs that occupy clock ranges alongside real items
// (spec §3).
package item

import (
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/id"
)

// Info bitfield flags (spec §3).
const (
	InfoKeep      uint8 = 1 << 0 // do not GC
	InfoCountable uint8 = 1 << 1 // content contributes to length/index
	InfoDeleted   uint8 = 1 << 2
	InfoMarker    uint8 = 1 << 3 // cached in a search marker
)

// Container is the narrow interface item needs from container.Container,
// kept here to avoid an import cycle (container imports item).
type Container interface {
	AddLength(delta int)
	NotifyChanged(sub *string)
}

// ParentRef identifies an item's containing collection. During transport
// it may be a bare root name (string) or an ID naming the item that
// embeds the container; once resolved it is a live container handle.
type ParentRef struct {
	RootName string
	ItemID   id.ID
	HasID    bool
	Resolved Container
}

// Item is the engine's single operation record (spec §3). Origin and
// RightOrigin use id.None to mean "no neighbor at creation time" (start/
// end of the container); Left and Right are nil for the same meaning in
// the current, mutable document-order list.
type Item struct {
	ID     id.ID
	Length uint32

	Origin      id.ID // immutable once set; id.None means "document start"
	RightOrigin id.ID // immutable once set; id.None means "document end"

	Left, Right *Item // mutable current neighbors

	Parent    ParentRef
	ParentSub *string // nil => sequence item; non-nil => map key

	Content content.Content

	Redone    id.ID
	HasRedone bool

	Info uint8
}

// GC is a collapsed tombstone occupying a clock range; it replaces an
// Item once its content has been garbage collected (spec §3).
type GC struct {
	ID     id.ID
	Length uint32
}

// Skip is a placeholder for a clock range known to be intentionally
// absent, used while integrating a remote update (spec §3).
type Skip struct {
	ID     id.ID
	Length uint32
}

// Struct is the sum type stored in the StructStore: either an Item, a GC,
// or a Skip, all sharing an ID and Length.
type Struct interface {
	StructID() id.ID
	StructLength() uint32
}

func (i *Item) StructID() id.ID      { return i.ID }
func (i *Item) StructLength() uint32 { return i.Length }
func (g *GC) StructID() id.ID        { return g.ID }
func (g *GC) StructLength() uint32   { return g.Length }
func (s *Skip) StructID() id.ID      { return s.ID }
func (s *Skip) StructLength() uint32 { return s.Length }

func (i *Item) Deleted() bool       { return i.Info&InfoDeleted != 0 }
func (i *Item) Keep() bool          { return i.Info&InfoKeep != 0 }
func (i *Item) Countable() bool     { return i.Info&InfoCountable != 0 }
func (i *Item) Marker() bool        { return i.Info&InfoMarker != 0 }
func (i *Item) SetDeleted(v bool)   { i.setFlag(InfoDeleted, v) }
func (i *Item) SetKeep(v bool)      { i.setFlag(InfoKeep, v) }
func (i *Item) SetCountable(v bool) { i.setFlag(InfoCountable, v) }
func (i *Item) SetMarker(v bool)    { i.setFlag(InfoMarker, v) }

func (i *Item) setFlag(bit uint8, v bool) {
	if v {
		i.Info |= bit
	} else {
		i.Info &^= bit
	}
}

// LastID returns the identifier of this item's last content unit.
func (i *Item) LastID() id.ID { return i.ID.Last(i.Length) }

// subEqual compares two nilable map-key pointers by value.
func subEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// MergeableWith reports whether i and the item immediately to i's right
// (other) could be coalesced into a single struct: same client, clock-
// contiguous, same deleted state, same map key, and content-level
// mergeable (spec §4.5 step 6/7).
func (i *Item) MergeableWith(other *Item) bool {
	if other == nil {
		return false
	}
	if i.Right != other {
		return false
	}
	if i.ID.Client != other.ID.Client {
		return false
	}
	if i.ID.Clock+i.Length != other.ID.Clock {
		return false
	}
	if i.Deleted() != other.Deleted() {
		return false
	}
	if !subEqual(i.ParentSub, other.ParentSub) {
		return false
	}
	return i.Content.Kind == other.Content.Kind && i.Content.Mergeable()
}

// MergeWith coalesces other into i in place, assuming MergeableWith(other)
// held. The caller is responsible for removing other from the StructStore
// and from any search markers pointing at it.
func (i *Item) MergeWith(other *Item) {
	merged, ok := i.Content.TryMerge(other.Content)
	if !ok {
		return
	}
	i.Content = merged
	i.Length += other.Length
	i.Right = other.Right
	if other.Right != nil {
		other.Right.Left = i
	}
}

// SplitAt splits i at content-unit offset n (0 < n < i.Length) into a
// left half that keeps i's identity and a new right half item. The new
// item is linked into the document-order list between i and i's old right
// neighbor; i.Left is untouched (i keeps its place).
func (i *Item) SplitAt(n uint32) *Item {
	leftContent, rightContent := i.Content.SplitAt(int(n))
	right := &Item{
		ID:          id.ID{Client: i.ID.Client, Clock: i.ID.Clock + n},
		Length:      i.Length - n,
		Origin:      id.ID{Client: i.ID.Client, Clock: i.ID.Clock + n - 1},
		RightOrigin: i.RightOrigin,
		Left:        i,
		Right:       i.Right,
		Parent:      i.Parent,
		ParentSub:   i.ParentSub,
		Content:     rightContent,
		Info:        i.Info,
		Redone:      i.Redone,
		HasRedone:   i.HasRedone,
	}
	if i.Right != nil {
		i.Right.Left = right
	}
	i.Content = leftContent
	i.Length = n
	i.Right = right
	return right
}
