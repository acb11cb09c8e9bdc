package integrate

import (
	"fmt"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
)

// Set assigns key on a Map container, creating a new item whose Left is
// the previous holder of the key (spec §4.2 Map semantics: "last writer
// wins" resolved structurally by YATA, not by timestamp comparison).
func (ctx *Context) Set(parent *container.Container, clientID uint32, key string, value any) (*item.Item, error) {
	chunks, err := BuildContents([]any{value})
	if err != nil {
		return nil, err
	}
	if len(chunks) != 1 {
		return nil, fmt.Errorf("map value collapsed to %d chunks: %w", len(chunks), ErrUnexpectedContent)
	}
	c := chunks[0]

	left := parent.Map[key]
	clock := ctx.Store.GetState(clientID)
	sub := key
	it := &item.Item{
		ID:          id.ID{Client: clientID, Clock: clock},
		Length:      uint32(c.Len()),
		Origin:      id.None,
		RightOrigin: id.None,
		Left:        left,
		Right:       nil,
		Parent:      item.ParentRef{Resolved: parent},
		ParentSub:   &sub,
		Content:     c,
		Info:        defaultInfo(c),
	}
	if err := ctx.Integrate(parent, it); err != nil {
		return nil, err
	}
	return it, nil
}

// MapGet returns the live value under key, or (nil, false) if the key is
// absent or its current holder has been deleted (spec §4.2).
func MapGet(parent *container.Container, key string) (any, bool) {
	it := parent.Map[key]
	if it == nil || it.Deleted() {
		return nil, false
	}
	return unitAt(it, 0), true
}

// MapDelete tombstones the current holder of key, if any (spec §4.2).
func (ctx *Context) MapDelete(parent *container.Container, key string) error {
	it := parent.Map[key]
	if it == nil || it.Deleted() {
		return nil
	}
	it.SetDeleted(true)
	ctx.Tx.RecordDelete(it.ID, it.Length)
	ctx.Tx.RecordChange(parent, it.ParentSub)
	return nil
}

// MapKeys returns every key with a live (undeleted) value.
func MapKeys(parent *container.Container) []string {
	out := make([]string, 0, len(parent.Map))
	for k, it := range parent.Map {
		if it != nil && !it.Deleted() {
			out = append(out, k)
		}
	}
	return out
}

// MapHas reports whether key currently has a live value.
func MapHas(parent *container.Container, key string) bool {
	it := parent.Map[key]
	return it != nil && !it.Deleted()
}
