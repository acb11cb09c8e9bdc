package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/integrate"
	"github.com/synix/crdtengine/transact"
)

func TestGetCreatesAndReturnsSameRoot(t *testing.T) {
	d := New(Options{})
	a, err := d.GetText("text")
	assert.NoError(t, err)
	b, err := d.GetText("text")
	assert.NoError(t, err)
	assert.Same(t, a, b)
}

func TestGetTypeMismatchOnSpecializedRoot(t *testing.T) {
	d := New(Options{})
	_, err := d.GetText("thing")
	assert.NoError(t, err)

	_, err = d.GetMap("thing")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestGetRetypesUnspecializedArrayPlaceholder(t *testing.T) {
	d := New(Options{})
	placeholder := d.Engine.GetOrCreateRoot("thing", container.KindArray)
	assert.Equal(t, container.KindArray, placeholder.Kind)

	retyped, err := d.GetMap("thing")
	assert.NoError(t, err)
	assert.Same(t, placeholder, retyped)
	assert.Equal(t, container.KindMap, retyped.Kind)
}

func TestTransactAndEncodeStateAsUpdateRoundtrip(t *testing.T) {
	d := New(Options{})
	var text *container.Container
	err := d.Transact(func(ctx *integrate.Context) error {
		var err error
		text, err = d.GetText("text")
		if err != nil {
			return err
		}
		_, err = ctx.InsertText(text, d.ClientID(), 0, "hi")
		return err
	}, nil)
	assert.NoError(t, err)

	b, err := d.EncodeStateAsUpdate(nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, b)
}

func TestApplyUpdateConvergesTwoPeers(t *testing.T) {
	alice := New(Options{})
	bob := New(Options{})

	aliceText, _ := alice.GetText("text")
	_ = alice.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(aliceText, alice.ClientID(), 0, "hi")
		return err
	}, nil)

	bobText, _ := bob.GetText("text")
	_ = bob.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(bobText, bob.ClientID(), 0, "yo")
		return err
	}, nil)

	bobSV, err := DecodeStateVector(bob.EncodeStateVector())
	assert.NoError(t, err)
	aliceSV, err := DecodeStateVector(alice.EncodeStateVector())
	assert.NoError(t, err)

	aliceUpdate, err := alice.EncodeStateAsUpdate(bobSV)
	assert.NoError(t, err)
	bobUpdate, err := bob.EncodeStateAsUpdate(aliceSV)
	assert.NoError(t, err)

	assert.NoError(t, bob.ApplyUpdate(aliceUpdate, "sync"))
	assert.NoError(t, alice.ApplyUpdate(bobUpdate, "sync"))

	aliceResult := integrate.ToString(aliceText)
	bobResult := integrate.ToString(bobText)
	assert.Equal(t, aliceResult, bobResult, "both peers must converge on the same merged text")
}

func TestApplyUpdateBuffersOnMissingCausality(t *testing.T) {
	alice := New(Options{})
	bob := New(Options{})

	aliceText, _ := alice.GetText("text")
	_ = alice.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(aliceText, alice.ClientID(), 0, "a")
		return err
	}, nil)
	_ = alice.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(aliceText, alice.ClientID(), 1, "b")
		return err
	}, nil)

	fullUpdate, err := alice.EncodeStateAsUpdate(nil)
	assert.NoError(t, err)

	// Deliver only the second half of alice's history; bob doesn't know
	// the root yet, so this must buffer rather than error.
	sv, err := DecodeStateVector(alice.EncodeStateVector())
	assert.NoError(t, err)
	sv[alice.ClientID()] = 1
	secondHalf, err := alice.EncodeStateAsUpdate(sv)
	assert.NoError(t, err)

	assert.NoError(t, bob.ApplyUpdate(secondHalf, nil))
	bobText, err := bob.GetText("text")
	assert.NoError(t, err)
	assert.Equal(t, "", integrate.ToString(bobText), "second half can't integrate until the first half arrives")

	assert.NoError(t, bob.ApplyUpdate(fullUpdate, nil))
	assert.Equal(t, "ab", integrate.ToString(bobText))
}

func TestApplyUpdateConvergesOnInterleavedConcurrentEdits(t *testing.T) {
	alice := New(Options{})
	bob := New(Options{})

	aliceText, _ := alice.GetText("text")
	_ = alice.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(aliceText, alice.ClientID(), 0, "abc")
		return err
	}, nil)
	base, err := alice.EncodeStateAsUpdate(nil)
	assert.NoError(t, err)
	assert.NoError(t, bob.ApplyUpdate(base, "sync"))
	bobText, err := bob.GetText("text")
	assert.NoError(t, err)

	// A deletes "b" and inserts "X" in its place.
	_ = alice.Transact(func(ctx *integrate.Context) error {
		if err := ctx.DeleteAt(aliceText, 1, 1); err != nil {
			return err
		}
		_, err := ctx.InsertText(aliceText, alice.ClientID(), 1, "X")
		return err
	}, nil)
	// Concurrently, B inserts "Y" right before "c".
	_ = bob.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(bobText, bob.ClientID(), 2, "Y")
		return err
	}, nil)

	bobSV, err := DecodeStateVector(bob.EncodeStateVector())
	assert.NoError(t, err)
	aliceSV, err := DecodeStateVector(alice.EncodeStateVector())
	assert.NoError(t, err)

	aliceUpdate, err := alice.EncodeStateAsUpdate(bobSV)
	assert.NoError(t, err)
	bobUpdate, err := bob.EncodeStateAsUpdate(aliceSV)
	assert.NoError(t, err)

	assert.NoError(t, bob.ApplyUpdate(aliceUpdate, "sync"))
	assert.NoError(t, alice.ApplyUpdate(bobUpdate, "sync"))

	aliceResult := integrate.ToString(aliceText)
	bobResult := integrate.ToString(bobText)
	assert.Equal(t, aliceResult, bobResult, "both peers must converge on the same merged string")
	assert.Len(t, aliceResult, 4)
	assert.ElementsMatch(t, []rune("aXYc"), []rune(aliceResult))
}

func TestOnUpdateFiresForLocalTransaction(t *testing.T) {
	d := New(Options{})
	fired := false
	d.OnUpdate(func(*transact.Transaction) { fired = true })

	text, _ := d.GetText("text")
	_ = d.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(text, d.ClientID(), 0, "hi")
		return err
	}, nil)

	assert.True(t, fired)
}

func TestDestroyFiresRegisteredHandlers(t *testing.T) {
	d := New(Options{})
	called := false
	d.OnDestroy(func() { called = true })
	d.Destroy()
	assert.True(t, called)
}

func TestDestroyWithoutHandlersDoesNotPanic(t *testing.T) {
	d := New(Options{})
	assert.NotPanics(t, func() { d.Destroy() })
}
