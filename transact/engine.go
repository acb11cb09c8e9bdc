package transact

import (
	"sort"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/integrate"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

// Hooks are the Document-level event lists named in spec §6. Engine fires
// each independently of the others; a panicking handler is recovered so
// siblings still run, mirroring container.Container's observer dispatch.
type Hooks struct {
	BeforeAllTransactions   []func()
	BeforeTransaction       []func(*Transaction)
	BeforeObserverCalls     []func(*Transaction)
	AfterTransaction        []func(*Transaction)
	AfterTransactionCleanup []func(*Transaction)
	AfterAllTransactions    []func()
	Update                  []func(*Transaction)
	UpdateV2                []func(*Transaction)
}

func fireAll(handlers []func()) {
	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h()
		}()
	}
}

func fireTx(handlers []func(*Transaction), t *Transaction) {
	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(t)
		}()
	}
}

// Engine owns the per-document transaction lifecycle: the currently open
// Transaction, the cleanup queue, root containers, and GC policy (spec
// §3 "Document", §4.5).
type Engine struct {
	Store    *store.Store
	Roots    map[string]*container.Container
	ClientID uint32

	GC       bool
	GCFilter func(item.Struct) bool

	Hooks Hooks

	current *Transaction
	queue   []*Transaction
	draining bool

	// RotateClientID is called when a remote update collides with the
	// local client id (spec §9 "Client-id collision"); assigned by the
	// doc layer, which owns id generation.
	RotateClientID func() uint32
}

// NewEngine returns an Engine with empty store and root set.
func NewEngine(clientID uint32) *Engine {
	return &Engine{
		Store:    store.New(),
		Roots:    make(map[string]*container.Container),
		ClientID: clientID,
		GC:       true,
	}
}

// GetOrCreateRoot satisfies integrate.Roots: repeated calls with the same
// name return the same container (spec §6 doc.get).
func (e *Engine) GetOrCreateRoot(name string, kind container.Kind) *container.Container {
	if c, ok := e.Roots[name]; ok {
		return c
	}
	c := container.New(kind)
	c.RootName = name
	e.Roots[name] = c
	return c
}

var _ integrate.Roots = (*Engine)(nil)

// Transact opens (or reuses) the current transaction and runs fn with an
// integrate.Context bound to it. Nested calls on the same goroutine reuse
// the active transaction; the outermost call drains the cleanup queue
// once fn returns (spec §4.5 "Open/close rules").
func (e *Engine) Transact(fn func(ctx *integrate.Context) error, origin any, local bool) error {
	isOutermost := e.current == nil
	if isOutermost {
		if len(e.queue) == 0 {
			fireAll(e.Hooks.BeforeAllTransactions)
		}
		e.current = newTransaction(e.Store, origin, local)
		e.queue = append(e.queue, e.current)
		fireTx(e.Hooks.BeforeTransaction, e.current)
	}

	tx := e.current
	ctx := &integrate.Context{Store: e.Store, Tx: tx, Roots: e}
	err := fn(ctx)

	if !isOutermost {
		return err
	}
	e.current = nil

	if e.draining {
		// A nested Transact invoked from inside an observer during
		// another transaction's cleanup: the outer drain loop further
		// up the call stack will pick this one up on its next pass.
		return err
	}

	e.draining = true
	for len(e.queue) > 0 {
		t := e.queue[0]
		e.queue = e.queue[1:]
		e.cleanup(t)
		fireTx(e.Hooks.AfterTransaction, t)
	}
	e.draining = false
	fireAll(e.Hooks.AfterAllTransactions)
	return err
}

// cleanup runs the eleven-step sequence of spec §4.5 for one transaction.
func (e *Engine) cleanup(t *Transaction) {
	t.DeleteSet.Normalize()              // 1
	t.AfterState = e.Store.StateVector() // 2

	fireTx(e.Hooks.BeforeObserverCalls, t)
	e.fireShallowObservers(t) // 3
	e.fireDeepObservers(t)    // 4

	// 5. Format cleanup: rich-text attribute reconciliation is an
	// application-level concern the core hands off to its caller (spec
	// §1 Non-goals "application-level type wrappers"); the flag is
	// preserved for that caller to act on, nothing to do here.
	_ = t.NeedFormattingCleanup

	if e.GC {
		e.gc(t) // 6
	}
	e.mergeCandidates(t) // 7

	if !t.Local && e.RotateClientID != nil && e.localClockCollides(t) {
		e.ClientID = e.RotateClientID() // 8
	}

	fireTx(e.Hooks.AfterTransactionCleanup, t) // 9
	if len(e.Hooks.Update) > 0 {
		fireTx(e.Hooks.Update, t)
	}
	if len(e.Hooks.UpdateV2) > 0 {
		fireTx(e.Hooks.UpdateV2, t)
	}

	// 10. Sub-document lifecycle is out of the core's scope (spec §1
	// Non-goals); t.SubdocsAdded/Removed/Loaded are left for the caller.
}

// localClockCollides reports whether this transaction integrated structs
// whose client id equals the engine's own (spec §9 "Client-id collision").
func (e *Engine) localClockCollides(t *Transaction) bool {
	before := t.BeforeState()[e.ClientID]
	after := t.AfterState[e.ClientID]
	return !t.Local && after > before
}

func (e *Engine) fireShallowObservers(t *Transaction) {
	containers := make([]*container.Container, 0, len(t.Changed))
	for c := range t.Changed {
		containers = append(containers, c)
	}
	sort.Slice(containers, func(i, j int) bool {
		return containers[i].Kind < containers[j].Kind
	})
	for _, c := range containers {
		cs := t.Changed[c]
		ev := container.Event{Container: c, Keys: cs.sortedKeys()}
		c.FireShallow(ev)
	}
}

// fireDeepObservers walks each modified container to its root,
// accumulating one Event per ancestor, then fires every ancestor's deep
// observers with the accumulated slice sorted by path length ascending
// (spec §4.5 step 4).
func (e *Engine) fireDeepObservers(t *Transaction) {
	type pathEvents struct {
		container *container.Container
		depth     int
		events    []container.Event
	}
	byContainer := make(map[*container.Container]*pathEvents)

	for c, cs := range t.Changed {
		ev := container.Event{Container: c, Keys: cs.sortedKeys()}
		depth := 0
		cur := c
		for cur != nil {
			pe := byContainer[cur]
			if pe == nil {
				pe = &pathEvents{container: cur, depth: depth}
				byContainer[cur] = pe
			}
			pe.events = append(pe.events, ev)
			cur = parentOf(cur)
			depth++
		}
	}

	ordered := make([]*pathEvents, 0, len(byContainer))
	for _, pe := range byContainer {
		ordered = append(ordered, pe)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].depth < ordered[j].depth })

	for _, pe := range ordered {
		pe.container.FireDeep(pe.events)
	}
}

// parentOf returns the container that embeds c's owning item, or nil if c
// is a root or detached.
func parentOf(c *container.Container) *container.Container {
	if c.Item == nil {
		return nil
	}
	parent, ok := c.Item.Parent.Resolved.(*container.Container)
	if !ok {
		return nil
	}
	return parent
}
