package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/synix/crdtengine/codec"
	"github.com/synix/crdtengine/persistence"
	"github.com/synix/crdtengine/transact"
)

// Options configures a Hub.
type Options struct {
	// ChannelPrefix namespaces the Redis pub/sub channels a Hub
	// subscribes to and publishes on, one channel per document id.
	ChannelPrefix string
}

// DefaultOptions mirrors persistence.DefaultOptions's convention.
func DefaultOptions() Options {
	return Options{ChannelPrefix: "crdtengine:sync"}
}

// Hub owns every live Room plus the Redis client used to relay updates
// across server instances (CollabText's rdb.Subscribe/rdb.Publish
// pattern, generalized from one hardcoded "test-doc" channel to one
// channel per document id).
type Hub struct {
	redis   *redis.Client
	store   *persistence.Store
	log     *zap.Logger
	opts    Options

	mu    sync.Mutex
	rooms map[string]*Room
}

// New returns a Hub backed by redisClient for pub/sub relay and store
// for durable update history. Either may be nil: a nil store disables
// persistence (rooms start empty and are never replayed-from), a nil
// redisClient disables cross-instance relay (a Hub then only broadcasts
// to websocket clients attached to this process).
func New(redisClient *redis.Client, store *persistence.Store, opts Options, log *zap.Logger) *Hub {
	if opts.ChannelPrefix == "" {
		opts = DefaultOptions()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		redis: redisClient,
		store: store,
		log:   log,
		opts:  opts,
		rooms: make(map[string]*Room),
	}
}

func (h *Hub) channel(docID string) string {
	return fmt.Sprintf("%s:%s", h.opts.ChannelPrefix, docID)
}

// room returns the Room for docID, creating and bootstrapping it (from
// persistence, then subscribing it to its Redis channel) on first use.
func (h *Hub) room(ctx context.Context, docID string) *Room {
	h.mu.Lock()
	r, ok := h.rooms[docID]
	if ok {
		h.mu.Unlock()
		return r
	}
	r = newRoom(docID)
	h.rooms[docID] = r
	h.mu.Unlock()

	if h.store != nil {
		r.bootstrap(ctx, h.store, h.log)
	}
	r.ensureRoots()

	r.doc.OnUpdate(func(t *transact.Transaction) {
		h.onLocalUpdate(ctx, r, t)
	})

	if h.redis != nil {
		go h.relayFromRedis(r)
	}
	return r
}

// onLocalUpdate fires on every transaction the engine cleans up for r's
// document: it encodes the structs new since the transaction's
// beforeState together with the document's full delete set, persists
// it, and relays it to every other client and server instance.
func (h *Hub) onLocalUpdate(ctx context.Context, r *Room, t *transact.Transaction) {
	update, err := codec.EncodeStateAsUpdate(t.Store, t.BeforeState())
	if err != nil {
		h.log.Warn("failed to encode update", zap.String("doc", r.id), zap.Error(err))
		return
	}
	if h.store != nil {
		if err := h.store.Append(ctx, r.id, update); err != nil {
			h.log.Warn("failed to persist update", zap.String("doc", r.id), zap.Error(err))
		}
	}
	h.publish(ctx, r, update)
}

// relayFromRedis forwards every message published on r's channel (by any
// Hub instance, including this one) to r's own websocket clients, the
// same forwarding direction as CollabText's redisChan-to-ws goroutine.
func (h *Hub) relayFromRedis(r *Room) {
	sub := h.redis.Subscribe(context.Background(), h.channel(r.id))
	defer sub.Close()
	for msg := range sub.Channel() {
		r.broadcastLocal([]byte(msg.Payload), nil)
	}
}

// publish relays update to every other Hub instance via Redis, falling
// back to a purely local broadcast when no Redis client is configured.
func (h *Hub) publish(ctx context.Context, r *Room, update []byte) {
	if h.redis == nil {
		r.broadcastLocal(update, nil)
		return
	}
	if err := h.redis.Publish(ctx, h.channel(r.id), update).Err(); err != nil {
		h.log.Warn("failed to publish update", zap.String("doc", r.id), zap.Error(err))
		r.broadcastLocal(update, nil)
	}
}
