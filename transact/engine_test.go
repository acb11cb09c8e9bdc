package transact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/integrate"
	"github.com/synix/crdtengine/item"
)

func TestTransactReturnsFnError(t *testing.T) {
	e := NewEngine(1)
	sentinel := assert.AnError
	err := e.Transact(func(ctx *integrate.Context) error { return sentinel }, nil, true)
	assert.ErrorIs(t, err, sentinel)
}

func TestTransactInsertTextConvergesLength(t *testing.T) {
	e := NewEngine(1)
	var text *container.Container
	err := e.Transact(func(ctx *integrate.Context) error {
		text = ctx.Roots.GetOrCreateRoot("text", container.KindText)
		_, err := ctx.InsertText(text, 1, 0, "hello")
		return err
	}, nil, true)
	assert.NoError(t, err)
	assert.Equal(t, 5, text.Length)
}

func TestGetOrCreateRootReturnsSameInstance(t *testing.T) {
	e := NewEngine(1)
	a := e.GetOrCreateRoot("doc", container.KindMap)
	b := e.GetOrCreateRoot("doc", container.KindMap)
	assert.Same(t, a, b)
}

func TestNestedTransactReusesCurrentTransaction(t *testing.T) {
	e := NewEngine(1)
	var outerTx, innerTx *Transaction
	_ = e.Transact(func(ctx *integrate.Context) error {
		outerTx = ctx.Tx.(*Transaction)
		return e.Transact(func(inner *integrate.Context) error {
			innerTx = inner.Tx.(*Transaction)
			return nil
		}, "nested-origin", true)
	}, "outer-origin", true)

	assert.Same(t, outerTx, innerTx)
	assert.Equal(t, "outer-origin", outerTx.Origin, "nested calls don't override the outermost origin")
}

func TestCleanupFiresAfterTransactionHooksOnce(t *testing.T) {
	e := NewEngine(1)
	var afterCount, afterCleanupCount, updateCount int
	e.Hooks.AfterTransaction = append(e.Hooks.AfterTransaction, func(*Transaction) { afterCount++ })
	e.Hooks.AfterTransactionCleanup = append(e.Hooks.AfterTransactionCleanup, func(*Transaction) { afterCleanupCount++ })
	e.Hooks.Update = append(e.Hooks.Update, func(*Transaction) { updateCount++ })

	text := e.GetOrCreateRoot("text", container.KindText)
	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, 1, 0, "hi")
		return err
	}, nil, true)

	assert.Equal(t, 1, afterCount)
	assert.Equal(t, 1, afterCleanupCount)
	assert.Equal(t, 1, updateCount)
}

func TestAfterTransactionHookPanicIsRecovered(t *testing.T) {
	e := NewEngine(1)
	called := false
	e.Hooks.AfterTransaction = append(e.Hooks.AfterTransaction, func(*Transaction) { panic("boom") })
	e.Hooks.AfterTransaction = append(e.Hooks.AfterTransaction, func(*Transaction) { called = true })

	text := e.GetOrCreateRoot("text", container.KindText)
	assert.NotPanics(t, func() {
		_ = e.Transact(func(ctx *integrate.Context) error {
			_, err := ctx.InsertText(text, 1, 0, "hi")
			return err
		}, nil, true)
	})
	assert.True(t, called)
}

func TestShallowObserverFiresOnTouchedContainer(t *testing.T) {
	e := NewEngine(1)
	text := e.GetOrCreateRoot("text", container.KindText)
	var seen *container.Container
	text.Observe(func(ev container.Event) { seen = ev.Container })

	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, 1, 0, "hi")
		return err
	}, nil, true)

	assert.Same(t, text, seen)
}

func TestDeepObserverFiresOnAncestorOfNestedContainer(t *testing.T) {
	e := NewEngine(1)
	root := e.GetOrCreateRoot("root", container.KindMap)

	var events []container.Event
	root.ObserveDeep(func(evs []container.Event) { events = evs })

	nested := container.New(container.KindMap)
	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.Set(root, 1, "child", nested)
		if err != nil {
			return err
		}
		_, err = ctx.Set(nested, 1, "leaf", "value")
		return err
	}, nil, true)

	assert.NotEmpty(t, events)
}

func TestGCCollapsesDeletedRunsToGCStructs(t *testing.T) {
	e := NewEngine(1)
	text := e.GetOrCreateRoot("text", container.KindText)

	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, 1, 0, "hello world")
		return err
	}, nil, true)

	_ = e.Transact(func(ctx *integrate.Context) error {
		return ctx.DeleteAt(text, 0, 5)
	}, nil, true)

	seg := e.Store.Segment(1)
	found := false
	for _, st := range seg {
		if _, ok := st.(*item.GC); ok {
			found = true
		}
	}
	assert.True(t, found, "a fully-deleted plain-content run collapses to a GC struct")
}

func TestGCFilterSkipsProtectedItems(t *testing.T) {
	e := NewEngine(1)
	e.GCFilter = func(item.Struct) bool { return false }
	text := e.GetOrCreateRoot("text", container.KindText)

	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, 1, 0, "hello")
		return err
	}, nil, true)
	_ = e.Transact(func(ctx *integrate.Context) error {
		return ctx.DeleteAt(text, 0, 5)
	}, nil, true)

	seg := e.Store.Segment(1)
	for _, st := range seg {
		_, isGC := st.(*item.GC)
		assert.False(t, isGC, "GCFilter returning false should prevent collapse to a bare GC struct")
	}
}

func TestRotateClientIDCalledOnRemoteClockCollision(t *testing.T) {
	e := NewEngine(1)
	rotated := false
	e.RotateClientID = func() uint32 {
		rotated = true
		return 42
	}

	text := e.GetOrCreateRoot("text", container.KindText)
	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, 1, 0, "hi")
		return err
	}, nil, false)

	assert.True(t, rotated)
	assert.Equal(t, uint32(42), e.ClientID)
}

func TestLocalTransactionDoesNotRotateClientID(t *testing.T) {
	e := NewEngine(1)
	rotated := false
	e.RotateClientID = func() uint32 { rotated = true; return 42 }

	text := e.GetOrCreateRoot("text", container.KindText)
	_ = e.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, 1, 0, "hi")
		return err
	}, nil, true)

	assert.False(t, rotated)
}
