// This binary reproduces the teacher's own smoke test — two peers typing
// concurrently into the same document, merged, then compared — against
// the sequence CRDT engine built out under doc/integrate/transact/codec
// instead of the teacher's event-graph-walker OpLog.
package main

import (
	"fmt"

	"github.com/sanity-io/litter"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/doc"
	"github.com/synix/crdtengine/integrate"
)

func main() {
	litter.Config.HidePrivateFields = false

	alice := doc.New(doc.Options{})
	bob := doc.New(doc.Options{})

	aliceText, _ := alice.GetText("text")
	_ = alice.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(aliceText, alice.ClientID(), 0, "hi")
		return err
	}, "alice")

	bobText, _ := bob.GetText("text")
	_ = bob.Transact(func(ctx *integrate.Context) error {
		_, err := ctx.InsertText(bobText, bob.ClientID(), 0, "yoooo")
		return err
	}, "bob")

	bobSV, err := doc.DecodeStateVector(bob.EncodeStateVector())
	if err != nil {
		panic(err)
	}
	aliceSV, err := doc.DecodeStateVector(alice.EncodeStateVector())
	if err != nil {
		panic(err)
	}

	aliceUpdate, err := alice.EncodeStateAsUpdate(bobSV)
	if err != nil {
		panic(err)
	}
	bobUpdate, err := bob.EncodeStateAsUpdate(aliceSV)
	if err != nil {
		panic(err)
	}

	if err := bob.ApplyUpdate(aliceUpdate, "sync"); err != nil {
		panic(err)
	}
	if err := alice.ApplyUpdate(bobUpdate, "sync"); err != nil {
		panic(err)
	}

	result1 := integrate.ToString(mustGetText(alice))
	fmt.Printf("Alice: %v -> %q\n", []rune(result1), result1)

	result2 := integrate.ToString(mustGetText(bob))
	fmt.Printf("Bob:   %v -> %q\n", []rune(result2), result2)

	if result1 == result2 {
		fmt.Println("Documents converged")
	} else {
		fmt.Println("Documents diverged")
	}

	r1, r2 := []rune(result1), []rune(result2)
	for i := 0; i < len(r1) && i < len(r2); i++ {
		if r1[i] != r2[i] {
			fmt.Printf("Position %d differs: alice=%q bob=%q\n", i, r1[i], r2[i])
		}
	}
}

func mustGetText(d *doc.Document) *container.Container {
	c, err := d.GetText("text")
	if err != nil {
		panic(err)
	}
	return c
}
