package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/id"
)

func newStringItem(client, clock uint32, s string) *Item {
	return &Item{
		ID:      id.ID{Client: client, Clock: clock},
		Length:  uint32(len(s)),
		Origin:  id.None,
		Content: content.NewString(s),
		Info:    InfoCountable,
	}
}

func TestFlags(t *testing.T) {
	it := &Item{}
	assert.False(t, it.Deleted())
	it.SetDeleted(true)
	assert.True(t, it.Deleted())
	it.SetDeleted(false)
	assert.False(t, it.Deleted())

	it.SetKeep(true)
	it.SetMarker(true)
	assert.True(t, it.Keep())
	assert.True(t, it.Marker())
	assert.False(t, it.Countable())
}

func TestLastID(t *testing.T) {
	it := newStringItem(1, 10, "hello")
	assert.Equal(t, id.ID{Client: 1, Clock: 14}, it.LastID())
}

func TestMergeableWithRequiresAdjacency(t *testing.T) {
	a := newStringItem(1, 0, "foo")
	b := newStringItem(1, 3, "bar")
	a.Right = b
	b.Left = a
	assert.True(t, a.MergeableWith(b))

	c := newStringItem(1, 3, "bar")
	assert.False(t, a.MergeableWith(c), "not linked as a.Right, so not mergeable")
}

func TestMergeableWithRejectsDifferentClient(t *testing.T) {
	a := newStringItem(1, 0, "foo")
	b := newStringItem(2, 0, "bar")
	a.Right = b
	assert.False(t, a.MergeableWith(b))
}

func TestMergeableWithRejectsDeletedMismatch(t *testing.T) {
	a := newStringItem(1, 0, "foo")
	b := newStringItem(1, 3, "bar")
	a.Right = b
	b.SetDeleted(true)
	assert.False(t, a.MergeableWith(b))
}

func TestMergeWith(t *testing.T) {
	a := newStringItem(1, 0, "foo")
	b := newStringItem(1, 3, "bar")
	tail := newStringItem(1, 6, "baz")
	a.Right = b
	b.Left = a
	b.Right = tail
	tail.Left = b

	a.MergeWith(b)
	assert.Equal(t, "foobar", string(a.Content.String))
	assert.Equal(t, uint32(6), a.Length)
	assert.Same(t, tail, a.Right)
	assert.Same(t, a, tail.Left)
}

func TestSplitAt(t *testing.T) {
	a := newStringItem(1, 0, "hello world")
	origRight := newStringItem(1, 11, "!")
	a.Right = origRight
	origRight.Left = a
	a.RightOrigin = id.None

	right := a.SplitAt(5)

	assert.Equal(t, "hello", string(a.Content.String))
	assert.Equal(t, " world", string(right.Content.String))
	assert.Equal(t, uint32(5), a.Length)
	assert.Equal(t, uint32(6), right.Length)
	assert.Same(t, right, a.Right)
	assert.Same(t, a, right.Left)
	assert.Same(t, origRight, right.Right)
	assert.Same(t, right, origRight.Left)
	assert.Equal(t, a.LastID(), right.Origin)
	assert.Equal(t, id.None, a.RightOrigin)
}

func TestSplitAtPreservesLengthSum(t *testing.T) {
	a := newStringItem(1, 0, "abcdefgh")
	total := a.Length
	right := a.SplitAt(3)
	assert.Equal(t, total, a.Length+right.Length)
}

func TestStructInterface(t *testing.T) {
	var structs []Struct
	structs = append(structs, newStringItem(1, 0, "x"))
	structs = append(structs, &GC{ID: id.ID{Client: 1, Clock: 1}, Length: 2})
	structs = append(structs, &Skip{ID: id.ID{Client: 1, Clock: 3}, Length: 4})

	assert.Equal(t, id.ID{Client: 1, Clock: 0}, structs[0].StructID())
	assert.Equal(t, uint32(2), structs[1].StructLength())
	assert.Equal(t, uint32(4), structs[2].StructLength())
}
