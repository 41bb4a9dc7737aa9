// Package redisstore persists episode datasets in Redis, with a per-map
// sorted-set index scored by final coverage so the best trajectory per map
// is one ZRANGE away.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/protocol"
)

// Store implements ports.EpisodeStore backed by Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithTTL sets an expiration for episode payloads. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "symgym:episode:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(sessionID string) string { return s.prefix + sessionID }
func (s *Store) indexKey() string            { return s.prefix + "index" }
func (s *Store) mapKey(mapID string) string  { return s.prefix + "map:" + mapID }

// Save persists the episode payload, the global index entry, and, for clean
// episodes only, the per-map coverage ranking.
func (s *Store) Save(ctx context.Context, ep domain.Episode) error {
	if ep.SessionID == "" {
		return fmt.Errorf("episode has no session id")
	}
	data, err := protocol.EncodeEpisode(ep)
	if err != nil {
		return fmt.Errorf("encode episode %s: %w", ep.SessionID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(ep.SessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: ep.SessionID,
	})
	if !ep.Faulted && ep.MapID != "" {
		pipe.ZAdd(ctx, s.mapKey(ep.MapID), backend.Z{
			Score:  ep.FinalCoverage(),
			Member: ep.SessionID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save episode to redis: %w", err)
	}
	return nil
}

// Load retrieves an episode by session ID.
func (s *Store) Load(ctx context.Context, sessionID string) (domain.Episode, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Episode{}, fmt.Errorf("session %q: %w", sessionID, domain.ErrEpisodeNotFound)
		}
		return domain.Episode{}, fmt.Errorf("get episode from redis: %w", err)
	}
	return protocol.DecodeEpisode([]byte(val))
}

// List returns stored session IDs in insertion order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	// Payloads can expire while the index entry lingers; drop stale members
	// lazily on listing.
	alive := ids[:0]
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check episode %s: %w", id, err)
		}
		if n == 0 {
			_ = s.client.ZRem(ctx, s.indexKey(), id).Err()
			continue
		}
		alive = append(alive, id)
	}
	return alive, nil
}

// Delete removes the episode and its index entries.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	// The map index key is unknown without loading the episode; tolerate a
	// missing payload and clean what we can.
	ep, err := s.Load(ctx, sessionID)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if err == nil && ep.MapID != "" {
		pipe.ZRem(ctx, s.mapKey(ep.MapID), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete episode from redis: %w", err)
	}
	return nil
}

// BestForMap returns the session ID of the highest-coverage clean episode on
// a map, or domain.ErrEpisodeNotFound when none is recorded.
func (s *Store) BestForMap(ctx context.Context, mapID string) (string, float64, error) {
	res, err := s.client.ZRevRangeWithScores(ctx, s.mapKey(mapID), 0, 0).Result()
	if err != nil {
		return "", 0, fmt.Errorf("query best for map %s: %w", mapID, err)
	}
	if len(res) == 0 {
		return "", 0, fmt.Errorf("map %q: %w", mapID, domain.ErrEpisodeNotFound)
	}
	id, ok := res[0].Member.(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected member type %T", res[0].Member)
	}
	return id, res[0].Score, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
