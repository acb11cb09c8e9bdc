// Package sync is the network transport around a Document: a websocket
// hub broadcasting encoded updates to every connected client and a Redis
// pub/sub relay fanning the same bytes out across server instances. It
// is grounded on the teacher's own cmd/server/main.go websocket handler
// (per-document client lists, an upgrader with an open CheckOrigin) and
// on sumanthd032-CollabText's server/main.go Redis relay (Subscribe a
// per-document channel, forward Publish/websocket in both directions).
// What sync sends, stores and relays is encoded update bytes; beyond the
// doc API it only registers a text root container per room and reads a
// finished transaction's store and beforeState to encode its update.
package sync

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/doc"
	"github.com/synix/crdtengine/persistence"
)

// Room owns one Document plus its connected websocket clients. The zero
// value is not usable; construct through Hub.room.
type Room struct {
	id  string
	doc *doc.Document

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		doc:     doc.New(doc.Options{GUID: id}),
		clients: make(map[*websocket.Conn]bool),
	}
}

func (r *Room) addClient(c *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = true
}

func (r *Room) removeClient(c *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

// broadcastLocal writes update to every websocket client in the room
// except skip (the connection it arrived on, if any).
func (r *Room) broadcastLocal(update []byte, skip *websocket.Conn) {
	r.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(r.clients))
	for c := range r.clients {
		if c != skip {
			conns = append(conns, c)
		}
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteMessage(websocket.BinaryMessage, update)
	}
}

// bootstrap hydrates a freshly created Room from persisted updates, in
// emission order, grounded on the teacher's s.getDocument lazily creating
// an empty OpLog and immediately returning its checked-out content.
func (r *Room) bootstrap(ctx context.Context, store *persistence.Store, log *zap.Logger) {
	updates, err := store.Updates(ctx, r.id)
	if err == persistence.ErrNotFound {
		return
	}
	if err != nil {
		log.Warn("failed to load persisted updates", zap.String("doc", r.id), zap.Error(err))
		return
	}
	for _, u := range updates {
		if err := r.doc.ApplyUpdate(u, nil); err != nil {
			log.Warn("failed to replay persisted update", zap.String("doc", r.id), zap.Error(err))
		}
	}
}

// ensureRoots registers the typed root containers every syncd document
// carries (spec §6 doc.get), so a freshly bootstrapped Room behaves the
// same as one that has been live since its first local edit.
func (r *Room) ensureRoots() {
	_, _ = r.doc.Get("content", container.KindText)
}
