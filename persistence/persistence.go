// Package persistence stores and replays the binary updates a Document
// emits, grounded on the redis-adapter shape in the examples pack:
// opaque byte payloads keyed by document id, never engine internals
// (homveloper-boss-raid-game's crdtserver RedisDatastore, CollabText's
// redis pub/sub relay). It has no knowledge of items, containers, or
// transactions — only of the update bytes codec already produces.
package persistence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Updates and LoadStateVector when a document
// has no stored updates yet.
var ErrNotFound = fmt.Errorf("persistence: document not found")

// Options configures a Store (spec §1 Non-goals excludes a persistence
// layer from the core; this package is ambient infrastructure outside
// that boundary, not a spec module).
type Options struct {
	// KeyPrefix namespaces every Redis key this Store touches.
	KeyPrefix string
}

// DefaultOptions mirrors the teacher pack's Default()/DefaultOptions()
// convention (homveloper-boss-raid-game's RedisDatastore.DefaultOptions).
func DefaultOptions() Options {
	return Options{KeyPrefix: "crdtengine"}
}

// Store appends encoded updates to a per-document Redis list and can
// replay them back in order, giving a Document durable history without
// the core engine knowing persistence exists.
type Store struct {
	client *redis.Client
	opts   Options
	log    *zap.Logger
}

// New wraps an existing Redis client. client must be non-nil and already
// reachable; New does not ping it.
func New(client *redis.Client, opts Options, log *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("persistence: redis client is nil")
	}
	if opts.KeyPrefix == "" {
		opts = DefaultOptions()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, opts: opts, log: log}, nil
}

func (s *Store) updatesKey(docID string) string {
	return fmt.Sprintf("%s:doc:%s:updates", s.opts.KeyPrefix, docID)
}

func (s *Store) svKey(docID string) string {
	return fmt.Sprintf("%s:doc:%s:sv", s.opts.KeyPrefix, docID)
}

// Append records one encoded update for docID, in emission order. It is
// the handler a caller wires via Document.OnUpdate: the transaction
// engine already did the work of producing update bytes, this just
// makes them durable.
func (s *Store) Append(ctx context.Context, docID string, update []byte) error {
	if err := s.client.RPush(ctx, s.updatesKey(docID), update).Err(); err != nil {
		return fmt.Errorf("persistence: append update for %s: %w", docID, err)
	}
	s.log.Debug("appended update", zap.String("doc", docID), zap.Int("bytes", len(update)))
	return nil
}

// Updates returns every update recorded for docID, oldest first, ready
// to be folded together with MergeUpdates or replayed one at a time
// through Document.ApplyUpdate.
func (s *Store) Updates(ctx context.Context, docID string) ([][]byte, error) {
	raw, err := s.client.LRange(ctx, s.updatesKey(docID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: load updates for %s: %w", docID, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	out := make([][]byte, len(raw))
	for i, r := range raw {
		out[i] = []byte(r)
	}
	return out, nil
}

// SaveStateVector caches a document's encoded state vector so a peer
// reconnecting can ask for it without replaying every update first.
func (s *Store) SaveStateVector(ctx context.Context, docID string, sv []byte) error {
	if err := s.client.Set(ctx, s.svKey(docID), sv, 0).Err(); err != nil {
		return fmt.Errorf("persistence: save state vector for %s: %w", docID, err)
	}
	return nil
}

// LoadStateVector returns the last state vector SaveStateVector recorded
// for docID, or ErrNotFound if none exists.
func (s *Store) LoadStateVector(ctx context.Context, docID string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.svKey(docID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: load state vector for %s: %w", docID, err)
	}
	return b, nil
}

// Compact replaces docID's update list with a single merged update,
// shrinking history the same way y-leveldb/y-indexeddb compact an update
// log in the original Yjs persistence providers. snapshot is the result
// of folding Updates(ctx, docID) through doc.MergeUpdates by the caller,
// since only the codec package (imported by doc, not persistence) knows
// how to merge update bytes.
func (s *Store) Compact(ctx context.Context, docID string, snapshot []byte) error {
	key := s.updatesKey(docID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, snapshot)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persistence: compact %s: %w", docID, err)
	}
	s.log.Info("compacted update log", zap.String("doc", docID), zap.Int("bytes", len(snapshot)))
	return nil
}

// Delete removes every key persistence.Store owns for docID.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.client.Del(ctx, s.updatesKey(docID), s.svKey(docID)).Err(); err != nil {
		return fmt.Errorf("persistence: delete %s: %w", docID, err)
	}
	return nil
}
