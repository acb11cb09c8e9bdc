package integrate

import (
	"fmt"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
)

// BuildContents implements insert-generics (spec §4.2): it turns a
// heterogeneous input list into a chain of Content values, coalescing
// contiguous JSON primitives into a single Any run.
func BuildContents(values []any) ([]content.Content, error) {
	var out []content.Content
	var run []any
	flush := func() {
		if len(run) > 0 {
			out = append(out, content.NewAny(run...))
			run = nil
		}
	}
	for _, v := range values {
		switch vv := v.(type) {
		case []byte:
			flush()
			out = append(out, content.NewBinary(vv))
		case *container.Container:
			flush()
			out = append(out, content.NewType(vv))
		case content.SubDoc:
			flush()
			out = append(out, content.NewDoc(vv.DocGUID()))
		case nil, bool, float64, int, string, map[string]any, []any:
			run = append(run, v)
		default:
			return nil, fmt.Errorf("%T: %w", v, ErrUnexpectedContent)
		}
	}
	flush()
	return out, nil
}

func defaultInfo(c content.Content) uint8 {
	var info uint8
	if c.IsCountable() {
		info |= item.InfoCountable
	}
	return info
}

// splitAtIndex locates the document-order boundary at index, splitting
// an existing item if index falls mid-run, and returns the left/right
// neighbors that bound the insertion or deletion point.
func (ctx *Context) splitAtIndex(parent *container.Container, index int) (left, right *item.Item, err error) {
	if index == parent.Length {
		return parent.Tail(), nil, nil
	}
	it, offset := parent.FindPosition(index)
	if it == nil {
		return nil, nil, fmt.Errorf("index %d out of bounds (length %d): %w", index, parent.Length, ErrLengthExceeded)
	}
	if offset == 0 {
		return it.Left, it, nil
	}
	l, r, err := ctx.Store.SplitItem(it, uint32(offset))
	if err != nil {
		return nil, nil, err
	}
	ctx.Tx.RecordMergeCandidate(r)
	return l, r, nil
}

// InsertContents builds and integrates one Item per content chunk,
// anchored between the item-order neighbors at index, and returns the
// created items in order (spec §4.2, §4.3).
func (ctx *Context) InsertContents(parent *container.Container, clientID uint32, index int, chunks []content.Content) ([]*item.Item, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	left, right, err := ctx.splitAtIndex(parent, index)
	if err != nil {
		return nil, err
	}

	created := make([]*item.Item, 0, len(chunks))
	curLeft := left
	total := 0
	for _, c := range chunks {
		clock := ctx.Store.GetState(clientID)
		length := uint32(c.Len())
		origin := id.None
		if curLeft != nil {
			origin = curLeft.LastID()
		}
		rightOrigin := id.None
		if right != nil {
			rightOrigin = right.ID
		}
		it := &item.Item{
			ID:          id.ID{Client: clientID, Clock: clock},
			Length:      length,
			Origin:      origin,
			RightOrigin: rightOrigin,
			Left:        curLeft,
			Right:       right,
			Parent:      item.ParentRef{Resolved: parent},
			Content:     c,
			Info:        defaultInfo(c),
		}
		if err := ctx.Integrate(parent, it); err != nil {
			return nil, err
		}
		created = append(created, it)
		curLeft = it
		total += c.Len()
	}

	parent.ShiftMarkers(index-1, total, true)
	return created, nil
}

// InsertValues is the Array/Map-sequence entry point: values go through
// insert-generics before becoming items.
func (ctx *Context) InsertValues(parent *container.Container, clientID uint32, index int, values []any) ([]*item.Item, error) {
	chunks, err := BuildContents(values)
	if err != nil {
		return nil, err
	}
	return ctx.InsertContents(parent, clientID, index, chunks)
}

// InsertText inserts a run of text as a single mergeable String item
// (spec §3's "mergeable by concatenation").
func (ctx *Context) InsertText(parent *container.Container, clientID uint32, index int, text string) ([]*item.Item, error) {
	if text == "" {
		return nil, nil
	}
	return ctx.InsertContents(parent, clientID, index, []content.Content{content.NewString(text)})
}

// DeleteAt marks `count` countable, undeleted units starting at index as
// deleted, splitting items at the range boundaries as needed. Items stay
// in the list as tombstones until GC (spec §3, §4.2).
func (ctx *Context) DeleteAt(parent *container.Container, index int, count int) error {
	if count == 0 {
		return nil
	}
	if index < 0 || index+count > parent.Length {
		return fmt.Errorf("delete [%d,%d) out of bounds (length %d): %w", index, index+count, parent.Length, ErrLengthExceeded)
	}

	it, offset := parent.FindPosition(index)
	if it == nil {
		return fmt.Errorf("delete index %d out of bounds: %w", index, ErrLengthExceeded)
	}
	if offset > 0 {
		_, right, err := ctx.Store.SplitItem(it, uint32(offset))
		if err != nil {
			return err
		}
		ctx.Tx.RecordMergeCandidate(right)
		it = right
	}

	remaining := count
	for remaining > 0 && it != nil {
		if it.Deleted() || !it.Countable() {
			it = it.Right
			continue
		}
		if int(it.Length) > remaining {
			_, right, err := ctx.Store.SplitItem(it, uint32(remaining))
			if err != nil {
				return err
			}
			ctx.Tx.RecordMergeCandidate(right)
		}
		parent.AdjustMarkersForDelete(it)
		it.SetDeleted(true)
		parent.AddLength(-int(it.Length))
		ctx.Tx.RecordDelete(it.ID, it.Length)
		ctx.Tx.RecordChange(parent, it.ParentSub)
		remaining -= int(it.Length)
		it = it.Right
	}
	if remaining > 0 {
		return fmt.Errorf("delete range exceeds container length: %w", ErrLengthExceeded)
	}
	return nil
}

// Get returns the content unit at index (as its Any/String/Binary/Embed
// element) and true, or (nil, false) if index is out of range.
func Get(parent *container.Container, index int) (any, bool) {
	it, offset := parent.FindPosition(index)
	if it == nil {
		return nil, false
	}
	switch it.Content.Kind {
	case content.KindAny, content.KindJSON:
		return it.Content.Any[offset], true
	case content.KindString:
		return string(it.Content.String[offset]), true
	case content.KindBinary:
		return it.Content.Binary[offset], true
	case content.KindEmbed:
		return it.Content.Embed, true
	case content.KindType:
		return it.Content.Type, true
	case content.KindDoc:
		return it.Content.DocGUID, true
	default:
		return nil, false
	}
}

// Slice materializes the container's undeleted, countable content from
// [start, end) into a flat []any, splitting runs into individual units.
func Slice(parent *container.Container, start, end int) []any {
	out := make([]any, 0, end-start)
	idx := 0
	for it := parent.Start; it != nil && idx < end; it = it.Right {
		if it.Deleted() || !it.Countable() {
			continue
		}
		for i := 0; i < int(it.Length); i++ {
			if idx >= start && idx < end {
				out = append(out, unitAt(it, i))
			}
			idx++
		}
	}
	return out
}

func unitAt(it *item.Item, i int) any {
	switch it.Content.Kind {
	case content.KindAny, content.KindJSON:
		return it.Content.Any[i]
	case content.KindString:
		return string(it.Content.String[i])
	case content.KindBinary:
		return it.Content.Binary[i]
	case content.KindEmbed:
		return it.Content.Embed
	case content.KindType:
		return it.Content.Type
	case content.KindDoc:
		return it.Content.DocGUID
	default:
		return nil
	}
}

// ToString concatenates every undeleted String unit in document order;
// the natural read path for a Text container.
func ToString(parent *container.Container) string {
	var out []rune
	for it := parent.Start; it != nil; it = it.Right {
		if it.Deleted() || it.Content.Kind != content.KindString {
			continue
		}
		out = append(out, it.Content.String...)
	}
	return string(out)
}
