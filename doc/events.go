package doc

import "github.com/synix/crdtengine/transact"

// The On* registrars below expose every event spec §6 names on Doc. The
// transaction-lifecycle ones (BeforeAllTransactions .. UpdateV2) forward
// straight to the transaction engine's Hooks; the document-lifecycle ones
// (subdocs, destroy, load, sync) have no engine-side behavior of their
// own since sub-document and persistence lifecycle sit outside the core
// (spec §1 Non-goals) — callers needing them wire a host-level handler
// through these hooks rather than the core implementing the lifecycle
// itself.
type lifecycleHooks struct {
	subdocs []func(added, removed, loaded []string)
	destroy []func()
	load    []func()
	sync    []func(synced bool)
}

func (d *Document) OnBeforeAllTransactions(fn func()) {
	d.Engine.Hooks.BeforeAllTransactions = append(d.Engine.Hooks.BeforeAllTransactions, fn)
}

func (d *Document) OnBeforeTransaction(fn func(*transact.Transaction)) {
	d.Engine.Hooks.BeforeTransaction = append(d.Engine.Hooks.BeforeTransaction, fn)
}

func (d *Document) OnBeforeObserverCalls(fn func(*transact.Transaction)) {
	d.Engine.Hooks.BeforeObserverCalls = append(d.Engine.Hooks.BeforeObserverCalls, fn)
}

func (d *Document) OnAfterTransaction(fn func(*transact.Transaction)) {
	d.Engine.Hooks.AfterTransaction = append(d.Engine.Hooks.AfterTransaction, fn)
}

func (d *Document) OnAfterTransactionCleanup(fn func(*transact.Transaction)) {
	d.Engine.Hooks.AfterTransactionCleanup = append(d.Engine.Hooks.AfterTransactionCleanup, fn)
}

func (d *Document) OnAfterAllTransactions(fn func()) {
	d.Engine.Hooks.AfterAllTransactions = append(d.Engine.Hooks.AfterAllTransactions, fn)
}

func (d *Document) OnUpdate(fn func(*transact.Transaction)) {
	d.Engine.Hooks.Update = append(d.Engine.Hooks.Update, fn)
}

func (d *Document) OnUpdateV2(fn func(*transact.Transaction)) {
	d.Engine.Hooks.UpdateV2 = append(d.Engine.Hooks.UpdateV2, fn)
}

func (d *Document) ensureLifecycle() *lifecycleHooks {
	if d.lifecycle == nil {
		d.lifecycle = &lifecycleHooks{}
	}
	return d.lifecycle
}

func (d *Document) OnSubdocs(fn func(added, removed, loaded []string)) {
	h := d.ensureLifecycle()
	h.subdocs = append(h.subdocs, fn)
}

func (d *Document) OnDestroy(fn func()) {
	h := d.ensureLifecycle()
	h.destroy = append(h.destroy, fn)
}

func (d *Document) OnLoad(fn func()) {
	h := d.ensureLifecycle()
	h.load = append(h.load, fn)
}

func (d *Document) OnSync(fn func(synced bool)) {
	h := d.ensureLifecycle()
	h.sync = append(h.sync, fn)
}

// Destroy fires every registered destroy handler. The document itself
// holds no OS resources to release; this is purely an observer hook for
// hosts layering lifecycle management on top (spec §6).
func (d *Document) Destroy() {
	if d.lifecycle == nil {
		return
	}
	for _, fn := range d.lifecycle.destroy {
		fn()
	}
}

// Load fires every registered load handler.
func (d *Document) Load() {
	if d.lifecycle == nil {
		return
	}
	for _, fn := range d.lifecycle.load {
		fn()
	}
}

// SetSynced fires every registered sync handler with the new sync state.
func (d *Document) SetSynced(synced bool) {
	if d.lifecycle == nil {
		return
	}
	for _, fn := range d.lifecycle.sync {
		fn(synced)
	}
}
