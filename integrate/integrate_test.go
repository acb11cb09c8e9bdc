package integrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// fakeTx is a minimal integrate.Tx recording what the engine would: it
// doesn't need to replay any of it, just not panic, since these tests
// exercise integrate in isolation from package transact (importing
// transact here would cycle back into integrate).
type fakeTx struct {
	deletes         []id.ID
	changed         []string
	mergeCandidates []item.Struct
	local           bool
	before          map[uint32]uint32
}

func newFakeTx() *fakeTx { return &fakeTx{local: true, before: map[uint32]uint32{}} }

func (f *fakeTx) RecordDelete(target id.ID, length uint32) { f.deletes = append(f.deletes, target) }
func (f *fakeTx) RecordChange(c *container.Container, sub *string) {
	if sub != nil {
		f.changed = append(f.changed, *sub)
	} else {
		f.changed = append(f.changed, "")
	}
}
func (f *fakeTx) RecordMergeCandidate(s item.Struct) { f.mergeCandidates = append(f.mergeCandidates, s) }
func (f *fakeTx) IsLocal() bool                      { return f.local }
func (f *fakeTx) BeforeState() map[uint32]uint32     { return f.before }

type fakeRoots struct {
	roots map[string]*container.Container
}

func newFakeRoots() *fakeRoots { return &fakeRoots{roots: map[string]*container.Container{}} }

func (r *fakeRoots) GetOrCreateRoot(name string, kind container.Kind) *container.Container {
	if c, ok := r.roots[name]; ok {
		return c
	}
	c := container.New(kind)
	r.roots[name] = c
	return c
}

func newCtx() (*Context, *fakeTx) {
	tx := newFakeTx()
	return &Context{Store: store.New(), Tx: tx, Roots: newFakeRoots()}, tx
}

func TestBuildContentsCoalescesPrimitives(t *testing.T) {
	chunks, err := BuildContents([]any{1, "two", true, []byte{1, 2}, "three"})
	assert.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.Equal(t, []any{1, "two", true}, chunks[0].Any)
	assert.Equal(t, []byte{1, 2}, chunks[1].Binary)
}

func TestBuildContentsRejectsUnknownType(t *testing.T) {
	_, err := BuildContents([]any{struct{ X int }{1}})
	assert.ErrorIs(t, err, ErrUnexpectedContent)
}

func TestInsertTextAndToString(t *testing.T) {
	ctx, _ := newCtx()
	text := container.New(container.KindText)

	_, err := ctx.InsertText(text, 1, 0, "hello")
	assert.NoError(t, err)
	_, err = ctx.InsertText(text, 1, 5, " world")
	assert.NoError(t, err)

	assert.Equal(t, "hello world", ToString(text))
	assert.Equal(t, 11, text.Length)
}

func TestInsertTextMidString(t *testing.T) {
	ctx, _ := newCtx()
	text := container.New(container.KindText)

	_, _ = ctx.InsertText(text, 1, 0, "helloworld")
	_, err := ctx.InsertText(text, 1, 5, " ")
	assert.NoError(t, err)
	assert.Equal(t, "hello world", ToString(text))
}

func TestDeleteAtTombstonesRange(t *testing.T) {
	ctx, tx := newCtx()
	text := container.New(container.KindText)
	_, _ = ctx.InsertText(text, 1, 0, "hello world")

	err := ctx.DeleteAt(text, 5, 6)
	assert.NoError(t, err)
	assert.Equal(t, "hello", ToString(text))
	assert.Equal(t, 5, text.Length)
	assert.NotEmpty(t, tx.deletes)
}

func TestDeleteAtOutOfBounds(t *testing.T) {
	ctx, _ := newCtx()
	text := container.New(container.KindText)
	_, _ = ctx.InsertText(text, 1, 0, "hi")

	err := ctx.DeleteAt(text, 0, 10)
	assert.ErrorIs(t, err, ErrLengthExceeded)
}

func TestConcurrentInsertsAtSamePositionOrderByClientID(t *testing.T) {
	ctx, _ := newCtx()
	parent := container.New(container.KindArray)

	_, err := ctx.InsertValues(parent, 1, 0, []any{"from-1"})
	assert.NoError(t, err)

	// Simulate a concurrent insert at the same provisional position (no
	// left neighbor yet known locally) from a different client id.
	chunks, err := BuildContents([]any{"from-2"})
	assert.NoError(t, err)
	it := &item.Item{
		ID:      id.ID{Client: 2, Clock: 0},
		Length:  1,
		Origin:  id.None,
		Parent:  item.ParentRef{Resolved: parent},
		Content: chunks[0],
		Info:    defaultInfo(chunks[0]),
	}
	assert.NoError(t, ctx.Integrate(parent, it))

	values := Slice(parent, 0, 2)
	assert.Equal(t, []any{"from-1", "from-2"}, values, "lower client id wins the tie and stays left")
}

// TestScanPastNonConflictingHeadItemKeepsItInDocumentOrder reproduces the
// exact S2-shaped case the single-item tests above can't reach: a scan
// that advances its cursor past an item at the head of the list while
// left stays nil (the head item's rightOrigin differs from x's, so case A
// falls through instead of breaking immediately). The right boundary after
// the scan must still be the item that occupied the head before the scan
// started, not wherever the cursor happened to stop.
func TestScanPastNonConflictingHeadItemKeepsItInDocumentOrder(t *testing.T) {
	ctx, _ := newCtx()
	parent := container.New(container.KindArray)

	chunkA, err := BuildContents([]any{"A"})
	require.NoError(t, err)
	chunkB, err := BuildContents([]any{"B"})
	require.NoError(t, err)
	chunkX, err := BuildContents([]any{"X"})
	require.NoError(t, err)

	a := &item.Item{
		ID:      id.ID{Client: 5, Clock: 0},
		Length:  1,
		Origin:  id.None,
		Parent:  item.ParentRef{Resolved: parent},
		Content: chunkA[0],
		Info:    defaultInfo(chunkA[0]),
	}
	require.NoError(t, ctx.Integrate(parent, a))

	// B is concurrent with A: no left neighbor, right pinned at A via
	// rightOrigin. Integrating it links it at the head, ahead of A.
	b := &item.Item{
		ID:          id.ID{Client: 3, Clock: 0},
		Length:      1,
		Origin:      id.None,
		RightOrigin: a.ID,
		Left:        nil,
		Right:       a,
		Parent:      item.ParentRef{Resolved: parent},
		Content:     chunkB[0],
		Info:        defaultInfo(chunkB[0]),
	}
	require.NoError(t, ctx.Integrate(parent, b))
	require.Equal(t, []any{"B", "A"}, Slice(parent, 0, 2), "doc starts as [B, A]")

	// x is concurrent with both: no left neighbor, no right pin. The scan
	// walks over B (origins match, rightOrigins don't: fall through) and
	// stops at A (origins and rightOrigins both match: break).
	x := &item.Item{
		ID:      id.ID{Client: 2, Clock: 0},
		Length:  1,
		Origin:  id.None,
		Left:    nil,
		Right:   nil,
		Parent:  item.ParentRef{Resolved: parent},
		Content: chunkX[0],
		Info:    defaultInfo(chunkX[0]),
	}
	require.NoError(t, ctx.Integrate(parent, x))

	assert.Equal(t, []any{"X", "B", "A"}, Slice(parent, 0, 3))

	// Every item's Right.Left must point back to it, and exactly one item
	// has a nil Left (the head).
	nilLeftCount := 0
	for it := parent.Start; it != nil; it = it.Right {
		if it.Left == nil {
			nilLeftCount++
		} else {
			assert.Same(t, it, it.Left.Right, "left neighbor's Right must point back to it")
		}
		if it.Right != nil {
			assert.Same(t, it, it.Right.Left, "right neighbor's Left must point back to it")
		}
	}
	assert.Equal(t, 1, nilLeftCount, "exactly one item may have a nil Left (the head); B must not be orphaned")
}

func TestMapSetGetDelete(t *testing.T) {
	ctx, tx := newCtx()
	m := container.New(container.KindMap)

	_, err := ctx.Set(m, 1, "key", "value1")
	assert.NoError(t, err)
	v, ok := MapGet(m, "key")
	assert.True(t, ok)
	assert.Equal(t, "value1", v)

	_, err = ctx.Set(m, 1, "key", "value2")
	assert.NoError(t, err)
	v, ok = MapGet(m, "key")
	assert.True(t, ok)
	assert.Equal(t, "value2", v)
	assert.NotEmpty(t, tx.deletes, "overwriting a key tombstones the previous holder")

	assert.True(t, MapHas(m, "key"))
	assert.ElementsMatch(t, []string{"key"}, MapKeys(m))

	err = ctx.MapDelete(m, "key")
	assert.NoError(t, err)
	assert.False(t, MapHas(m, "key"))
	_, ok = MapGet(m, "key")
	assert.False(t, ok)
}

func TestIntegratePendingBuffersOnMissingOrigin(t *testing.T) {
	ctx, _ := newCtx()
	parent := container.New(container.KindArray)

	firstChunk, _ := BuildContents([]any{"a"})
	secondChunk, _ := BuildContents([]any{"b"})

	first := &item.Item{
		ID:      id.ID{Client: 1, Clock: 0},
		Length:      1,
		Origin:      id.None,
		RightOrigin: id.None,
		Parent:      item.ParentRef{Resolved: parent},
		Content:     firstChunk[0],
		Info:    defaultInfo(firstChunk[0]),
	}
	second := &item.Item{
		ID:      id.ID{Client: 1, Clock: 1},
		Length:      1,
		Origin:      id.ID{Client: 1, Clock: 0}, // depends on `first`
		RightOrigin: id.None,
		Parent:      item.ParentRef{Resolved: parent},
		Content:     secondChunk[0],
		Info:    defaultInfo(secondChunk[0]),
	}

	// Deliver out of order: second arrives before first.
	pending := map[uint32][]item.Struct{1: {second}}
	remaining, err := ctx.IntegratePending(pending)
	assert.NoError(t, err)
	assert.Len(t, remaining[1], 1, "second stays pending until its origin is known")

	pending = map[uint32][]item.Struct{1: {first}}
	remaining, err = ctx.IntegratePending(pending)
	assert.NoError(t, err)
	assert.Empty(t, remaining)

	// Re-attempt the buffered struct, as doc.integrateDecoded does.
	remaining2, err := ctx.IntegratePending(map[uint32][]item.Struct{1: {second}})
	_ = remaining2
	assert.NoError(t, err)
}

func TestApplyDeleteSetMarksKnownAndDefersUnknown(t *testing.T) {
	ctx, _ := newCtx()
	text := container.New(container.KindText)
	_, _ = ctx.InsertText(text, 1, 0, "hello")

	ds := store.NewDeleteSet()
	ds.Add(1, 1, 2)
	ds.Add(1, 100, 5) // unknown clock range

	pending := ctx.ApplyDeleteSet(ds)
	assert.Equal(t, "hlo", ToString(text))
	assert.NotEmpty(t, pending.Clients[1])
}
