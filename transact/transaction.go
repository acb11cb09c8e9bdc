// Package transact implements the Transaction batching, observer
// dispatch, GC, and update-emission engine described in spec §4.5: every
// mutation enters through Engine.Transact, which builds an
// integrate.Context backed by the transaction currently in scope and, on
// the outermost call's return, drains the cleanup queue one transaction
// at a time.
package transact

import (
	"sort"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/integrate"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// ChangeSet records which parts of a container a transaction touched: Seq
// for the sequence body, Keys for individual map keys (spec §4.5
// "changed: container -> set of parentSub keys, null element = sequence
// modified").
type ChangeSet struct {
	Seq  bool
	Keys map[string]bool
}

// Transaction aggregates the mutations performed between a Transact call
// and its cleanup (spec §4.5).
type Transaction struct {
	Store *store.Store

	beforeState map[uint32]uint32
	AfterState  map[uint32]uint32

	DeleteSet *store.DeleteSet

	Changed            map[*container.Container]*ChangeSet
	ChangedParentTypes map[*container.Container][]container.Event

	MergeCandidates []item.Struct

	Origin any
	Local  bool

	SubdocsAdded   map[string]bool
	SubdocsRemoved map[string]bool
	SubdocsLoaded  map[string]bool

	NeedFormattingCleanup bool
}

func newTransaction(s *store.Store, origin any, local bool) *Transaction {
	return &Transaction{
		Store:              s,
		beforeState:        s.StateVector(),
		DeleteSet:          store.NewDeleteSet(),
		Changed:            make(map[*container.Container]*ChangeSet),
		ChangedParentTypes: make(map[*container.Container][]container.Event),
		Origin:             origin,
		Local:              local,
		SubdocsAdded:       make(map[string]bool),
		SubdocsRemoved:     make(map[string]bool),
		SubdocsLoaded:      make(map[string]bool),
	}
}

// The remaining methods satisfy integrate.Tx.

func (t *Transaction) RecordDelete(target id.ID, length uint32) {
	t.DeleteSet.AddID(target, length)
}

func (t *Transaction) RecordChange(c *container.Container, sub *string) {
	cs := t.Changed[c]
	if cs == nil {
		cs = &ChangeSet{Keys: make(map[string]bool)}
		t.Changed[c] = cs
	}
	if sub == nil {
		cs.Seq = true
	} else {
		cs.Keys[*sub] = true
	}
}

func (t *Transaction) RecordMergeCandidate(s item.Struct) {
	t.MergeCandidates = append(t.MergeCandidates, s)
}

func (t *Transaction) IsLocal() bool { return t.Local }

func (t *Transaction) BeforeState() map[uint32]uint32 { return t.beforeState }

var _ integrate.Tx = (*Transaction)(nil)

// sortedKeys returns cs's touched map keys, sorted, for deterministic
// event payloads.
func (cs *ChangeSet) sortedKeys() []string {
	out := make([]string, 0, len(cs.Keys))
	for k := range cs.Keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
