// Package doc assembles the engine packages behind the public surface
// spec §6 names: Document, transact, the typed root accessors, and the
// update/state-vector byte interface. Nothing below this package knows
// about documents; doc is where StructStore, the integration engine, and
// the transaction engine are wired together into one handle.
package doc

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/sanity-io/litter"

	"github.com/synix/crdtengine/codec"
	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/integrate"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
	"github.com/synix/crdtengine/transact"
)

// ErrTypeMismatch is returned by Get when name already exists as an
// incompatible concrete container variant (spec §7).
var ErrTypeMismatch = errors.New("type mismatch")

// Options configures a new Document (spec §6 Doc(opts)).
type Options struct {
	GC           bool
	GCFilter     func(item.Struct) bool
	GUID         string
	CollectionID string
	Meta         map[string]any
	AutoLoad     bool
	ShouldLoad   bool
}

// Document is the engine's top-level handle: assigned client id, root
// container map, StructStore, the transaction engine, missing-causality
// buffers, and the sub-document set (spec §3 "Document").
type Document struct {
	guid         string
	collectionID string
	meta         map[string]any
	autoLoad     bool
	shouldLoad   bool

	Engine *transact.Engine

	pendingStructs map[uint32][]item.Struct
	pendingDeletes *store.DeleteSet

	subdocs   map[string]*Document
	lifecycle *lifecycleHooks
}

// New returns an empty Document with a freshly assigned random client id
// (spec §3 "32-bit random, regenerated on conflict").
func New(opts Options) *Document {
	guid := opts.GUID
	if guid == "" {
		guid = uuid.NewString()
	}
	e := transact.NewEngine(rand.Uint32())
	e.GC = opts.GC
	e.GCFilter = opts.GCFilter
	e.RotateClientID = func() uint32 { return rand.Uint32() }

	d := &Document{
		guid:           guid,
		collectionID:   opts.CollectionID,
		meta:           opts.Meta,
		autoLoad:       opts.AutoLoad,
		shouldLoad:     opts.ShouldLoad,
		Engine:         e,
		pendingStructs: make(map[uint32][]item.Struct),
		pendingDeletes: store.NewDeleteSet(),
	}
	return d
}

// DocGUID satisfies content.SubDoc, letting a Document be inserted as a
// nested sub-document value via insert-generics (spec §4.2).
func (d *Document) DocGUID() string { return d.guid }

// ClientID returns the document's currently assigned client id.
func (d *Document) ClientID() uint32 { return d.Engine.ClientID }

// Transact runs fn inside a local transaction, opening one if none is
// active or reusing the caller's if this is a nested call (spec §4.5,
// §6 doc.transact).
func (d *Document) Transact(fn func(ctx *integrate.Context) error, origin any) error {
	return d.Engine.Transact(fn, origin, true)
}

// transactRemote is Transact's non-local counterpart, used by ApplyUpdate
// (spec §4.5 "local == false for applied remote updates").
func (d *Document) transactRemote(fn func(ctx *integrate.Context) error, origin any) error {
	return d.Engine.Transact(fn, origin, false)
}

// Get returns the root container registered under name, creating it as
// kind if absent. A second call with a different kind fails with
// ErrTypeMismatch unless the existing container is still in its
// unspecialized default form (KindArray, the placeholder
// integrate.ResolveParent assigns when a root is created implicitly by a
// remote update before any local Get has specialized it), in which case
// it is retyped in place, whether or not it already holds items (spec §6
// doc.get). Because KindArray doubles as that placeholder, a root first
// requested with GetArray is retyped the same way.
func (d *Document) Get(name string, kind container.Kind) (*container.Container, error) {
	existing, ok := d.Engine.Roots[name]
	if !ok {
		c := container.New(kind)
		c.RootName = name
		d.Engine.Roots[name] = c
		return c, nil
	}
	if existing.Kind == kind {
		return existing, nil
	}
	if existing.Kind == container.KindArray {
		existing.Kind = kind
		return existing, nil
	}
	return nil, fmt.Errorf("root %q is %v, requested %v: %w", name, existing.Kind, kind, ErrTypeMismatch)
}

// GetArray, GetMap, GetText, GetXMLFragment, and GetXMLElement are the
// typed shortcuts named in spec §6.
func (d *Document) GetArray(name string) (*container.Container, error) { return d.Get(name, container.KindArray) }
func (d *Document) GetMap(name string) (*container.Container, error)   { return d.Get(name, container.KindMap) }
func (d *Document) GetText(name string) (*container.Container, error)  { return d.Get(name, container.KindText) }
func (d *Document) GetXMLFragment(name string) (*container.Container, error) {
	return d.Get(name, container.KindXMLFragment)
}
func (d *Document) GetXMLElement(name string) (*container.Container, error) {
	return d.Get(name, container.KindXMLElement)
}

// EncodeStateAsUpdate returns the bytes needed to bring a peer at
// remoteSV up to date (spec §6). A nil remoteSV encodes full history.
func (d *Document) EncodeStateAsUpdate(remoteSV map[uint32]uint32) ([]byte, error) {
	return codec.EncodeStateAsUpdate(d.Engine.Store, remoteSV)
}

// EncodeStateVector returns the document's current state vector, bytes
// suitable for passing to a remote peer's EncodeStateAsUpdate (spec §6).
func (d *Document) EncodeStateVector() []byte {
	return codec.EncodeStateVector(d.Engine.Store)
}

// Dump renders the document's container tree for debugging, the same
// shape litter produces for any other pretty-printed value in this repo.
func (d *Document) Dump() string {
	return litter.Sdump(map[string]any{
		"guid":     d.guid,
		"clientID": d.Engine.ClientID,
		"roots":    d.Engine.Roots,
	})
}

var _ content.SubDoc = (*Document)(nil)
