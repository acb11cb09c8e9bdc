// Package integrate implements the YATA-style integration algorithm
// (spec §4.3), remote update application with missing-causality
// buffering (spec §4.4), and the sequence/map mutation API that builds
// Items and feeds them through integration (spec §4.2's insert-generics
// and Map API, which need the integration engine and so cannot live in
// package container without an import cycle).
package integrate

import (
	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// Tx is the narrow slice of transact.Transaction the integration engine
// needs: recording deletions, changed containers, and split-produced
// merge candidates. Defined here (rather than importing package transact)
// to avoid a transact <-> integrate import cycle; *transact.Transaction
// satisfies this interface.
type Tx interface {
	RecordDelete(target id.ID, length uint32)
	RecordChange(c *container.Container, sub *string)
	RecordMergeCandidate(s item.Struct)
	IsLocal() bool
	BeforeState() map[uint32]uint32
}

// Roots resolves root-name parent references to live containers, used
// when decoding remote items whose parent is carried as a string (spec
// §4.7 "Root-name resolution"). *doc.Document satisfies this interface.
type Roots interface {
	GetOrCreateRoot(name string, kind container.Kind) *container.Container
}

// Context bundles everything the integration engine needs beyond the
// item being integrated.
type Context struct {
	Store *store.Store
	Tx    Tx
	Roots Roots
}
