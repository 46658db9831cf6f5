package session

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/repository/records"
)

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        2 * time.Minute,
		MaxEntries: 1024,
	}
}

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type Metrics struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:           m.hits.Load(),
		Misses:         m.misses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// CachedStore keeps recently used equipment sessions in memory in front of
// the relational store. Writes go to the origin first and refresh the cache
// only on success. User and plant calls pass straight through.
type CachedStore struct {
	records.Store

	sessions *expirable.LRU[string, entity.EquipmentSession]
	metrics  Metrics
}

func NewCachedStore(origin records.Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &CachedStore{
		Store:    origin,
		sessions: expirable.NewLRU[string, entity.EquipmentSession](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

func (s *CachedStore) CreateEquipmentSession(ctx context.Context, sess entity.EquipmentSession) error {
	s.metrics.originWrites.Add(1)
	if err := s.Store.CreateEquipmentSession(ctx, sess); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	s.sessions.Add(key(sess.ID), sess.Clone())
	return nil
}

func (s *CachedStore) UpdateEquipmentSession(ctx context.Context, sess entity.EquipmentSession) error {
	s.metrics.originWrites.Add(1)
	if err := s.Store.UpdateEquipmentSession(ctx, sess); err != nil {
		s.metrics.originWriteErr.Add(1)
		s.sessions.Remove(key(sess.ID))
		return err
	}
	// Updates never change UserID or CreatedAt in the origin.
	if cached, ok := s.sessions.Peek(key(sess.ID)); ok {
		sess.UserID = cached.UserID
		sess.CreatedAt = cached.CreatedAt
		s.sessions.Add(key(sess.ID), sess.Clone())
	} else {
		s.sessions.Remove(key(sess.ID))
	}
	return nil
}

func (s *CachedStore) GetEquipmentSession(ctx context.Context, id string) (entity.EquipmentSession, error) {
	k := key(id)
	if sess, ok := s.sessions.Get(k); ok {
		s.metrics.hits.Add(1)
		return sess.Clone(), nil
	}
	s.metrics.misses.Add(1)
	s.metrics.originReads.Add(1)

	sess, err := s.Store.GetEquipmentSession(ctx, k)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return entity.EquipmentSession{}, err
	}
	s.sessions.Add(k, sess.Clone())
	return sess, nil
}

func key(id string) string {
	return strings.TrimSpace(id)
}
