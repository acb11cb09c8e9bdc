// Package container implements the abstract Container type from spec
// §3/§4.2: the per-instance document-order list head, the per-key tail
// map, and the search marker cache that accelerates positional lookup
// (§4.6). The higher-level sequence/map mutation API that builds Items
// and calls into the integration engine lives in package integrate, to
// avoid a container <-> integrate import cycle; this package owns only
// the data structure and the read-side index<->item translation.
package container

import (
	"github.com/synix/crdtengine/item"
)

// Kind enumerates the concrete container variants named in spec §9.
type Kind uint8

const (
	KindArray Kind = iota
	KindMap
	KindText
	KindXMLFragment
	KindXMLElement
	KindXMLHook
	KindXMLText
)

// Event is the change-summary object passed to shallow observers.
type Event struct {
	Container *Container
	Added     int // positive: inserted countable units
	Removed   int // positive: deleted countable units
	Keys      []string
}

// EventHandler observes a single container's own mutations.
type EventHandler func(Event)

// Container is the per-instance state for a sequence/map/text/xml
// collection (spec §3).
type Container struct {
	Kind Kind

	// RootName is set when this container is registered directly on a
	// document (spec §3's root-name form of a parent reference); empty
	// for containers nested inside another item.
	RootName string

	Start *item.Item // head of the document-order list, nil if empty

	Map map[string]*item.Item // key -> most-recently-integrated item

	Length int // sum of countable lengths of undeleted sequence items

	// Item is the Item that embeds this container when nested; nil when
	// the container is a root registered directly on the document.
	Item *item.Item

	markers []*marker
	nextTS  int

	eventHandlers     []EventHandler
	deepEventHandlers []func([]Event)

	// PendingPrelim buffers mutations performed before this container is
	// attached to a document (spec §4.2 "prelim vector").
	PendingPrelim []func(*Container)

	deletedRoot bool
}

const maxSearchMarkers = 80

// New returns an empty, unattached container of the given kind.
func New(kind Kind) *Container {
	return &Container{Kind: kind, Map: make(map[string]*item.Item)}
}

// AddLength adjusts the container's cached countable length; part of the
// item.Container interface so an Item holding this container as nested
// content can update it without container importing item back in the
// other direction.
func (c *Container) AddLength(delta int) { c.Length += delta }

// NotifyChanged is a no-op hook point satisfying item.Container; actual
// observer dispatch happens in the transact package, which tracks the
// changed-set directly rather than through a per-mutation callback.
func (c *Container) NotifyChanged(sub *string) {}

// Observe registers a shallow observer.
func (c *Container) Observe(fn EventHandler) { c.eventHandlers = append(c.eventHandlers, fn) }

// ObserveDeep registers a deep observer.
func (c *Container) ObserveDeep(fn func([]Event)) {
	c.deepEventHandlers = append(c.deepEventHandlers, fn)
}

// Unobserve removes every shallow observer (callers needing targeted
// removal should track and re-register the remainder; the teacher's own
// event lists are append-only so this mirrors that simplicity).
func (c *Container) Unobserve() { c.eventHandlers = nil }

// UnobserveDeep removes every deep observer.
func (c *Container) UnobserveDeep() { c.deepEventHandlers = nil }

// FireShallow invokes every shallow observer independently; a panic in
// one handler is recovered so the rest still run (spec §5 Cancellation).
func (c *Container) FireShallow(ev Event) {
	for _, h := range c.eventHandlers {
		func() {
			defer func() { recover() }()
			h(ev)
		}()
	}
}

// FireDeep invokes every deep observer independently.
func (c *Container) FireDeep(evs []Event) {
	for _, h := range c.deepEventHandlers {
		func() {
			defer func() { recover() }()
			h(evs)
		}()
	}
}

// Tail returns the last item in the document-order list, or nil if the
// container is empty. O(n) in the worst case; callers on the hot append
// path should prefer a cached position where one is available.
func (c *Container) Tail() *item.Item {
	it := c.Start
	if it == nil {
		return nil
	}
	for it.Right != nil {
		it = it.Right
	}
	return it
}

// IsRoot reports whether this container is registered directly on the
// document rather than nested inside an Item.
func (c *Container) IsRoot() bool { return c.Item == nil }

// MarkDeleted flags a root container as deleted (relevant to the
// integration engine's "parent has been deleted" check, spec §4.3).
func (c *Container) MarkDeleted(v bool) { c.deletedRoot = v }

// Deleted reports whether the container (or the item that embeds it) is
// deleted.
func (c *Container) Deleted() bool {
	if c.Item != nil {
		return c.Item.Deleted()
	}
	return c.deletedRoot
}
