package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FieldPulse/internal/domain/models"
	"FieldPulse/internal/domain/repository"
	"FieldPulse/pkg/cache"
	applogger "FieldPulse/pkg/logger"
)

// CachedSnapshotStore decorates a SnapshotStore with a latest-value cache.
// Writes go through to the inner store and refresh the cached latest entry;
// latest reads try the cache first. Historical reads always hit the store.
type CachedSnapshotStore struct {
	inner repository.SnapshotStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedSnapshotStore(inner repository.SnapshotStore, c cache.Service, ttl time.Duration) *CachedSnapshotStore {
	return &CachedSnapshotStore{inner: inner, cache: c, ttl: ttl, l: applogger.Nop()}
}

func (s *CachedSnapshotStore) SetLogger(l *applogger.Logger) { s.l = l }

func stateKey(symbol string) string   { return fmt.Sprintf("state:latest:%s", symbol) }
func geoKey(symbol string) string     { return fmt.Sprintf("geometry:latest:%s", symbol) }
func swarmKey(symbol string) string   { return fmt.Sprintf("swarm:latest:%s", symbol) }
func weightsKey(symbol string) string { return fmt.Sprintf("weights:%s", symbol) }

func (s *CachedSnapshotStore) Init(ctx context.Context) error { return s.inner.Init(ctx) }

func (s *CachedSnapshotStore) GetLatestState(ctx context.Context, symbol string) (*models.StateVector, error) {
	var v models.StateVector
	if err := s.cache.Get(ctx, stateKey(symbol), &v); err == nil {
		return &v, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("latest state cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	got, err := s.inner.GetLatestState(ctx, symbol)
	if err != nil || got == nil {
		return got, err
	}
	s.fill(ctx, stateKey(symbol), got)
	return got, nil
}

func (s *CachedSnapshotStore) GetRecentStates(ctx context.Context, symbol string, n int) ([]models.StateVector, error) {
	return s.inner.GetRecentStates(ctx, symbol, n)
}

func (s *CachedSnapshotStore) GetStateRange(ctx context.Context, symbol string, from, to time.Time) ([]models.StateVector, error) {
	return s.inner.GetStateRange(ctx, symbol, from, to)
}

func (s *CachedSnapshotStore) GetLatestGeometry(ctx context.Context, symbol string) (*models.GeometrySnapshot, error) {
	var g models.GeometrySnapshot
	if err := s.cache.Get(ctx, geoKey(symbol), &g); err == nil {
		return &g, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("latest geometry cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	got, err := s.inner.GetLatestGeometry(ctx, symbol)
	if err != nil || got == nil {
		return got, err
	}
	s.fill(ctx, geoKey(symbol), got)
	return got, nil
}

func (s *CachedSnapshotStore) GetLatestSwarm(ctx context.Context, symbol string) (*models.SwarmSnapshot, error) {
	var sn models.SwarmSnapshot
	if err := s.cache.Get(ctx, swarmKey(symbol), &sn); err == nil {
		return &sn, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("latest swarm cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	got, err := s.inner.GetLatestSwarm(ctx, symbol)
	if err != nil || got == nil {
		return got, err
	}
	s.fill(ctx, swarmKey(symbol), got)
	return got, nil
}

func (s *CachedSnapshotStore) GetSwarmAt(ctx context.Context, symbol string, ts time.Time) (*models.SwarmSnapshot, error) {
	return s.inner.GetSwarmAt(ctx, symbol, ts)
}

func (s *CachedSnapshotStore) GetSwarmRange(ctx context.Context, symbol string, from, to time.Time) ([]models.SwarmSnapshot, error) {
	return s.inner.GetSwarmRange(ctx, symbol, from, to)
}

func (s *CachedSnapshotStore) GetWeightState(ctx context.Context, symbol string) (*models.AgentWeightState, error) {
	var ws models.AgentWeightState
	if err := s.cache.Get(ctx, weightsKey(symbol), &ws); err == nil {
		return &ws, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("weight state cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	got, err := s.inner.GetWeightState(ctx, symbol)
	if err != nil || got == nil {
		return got, err
	}
	s.fill(ctx, weightsKey(symbol), got)
	return got, nil
}

func (s *CachedSnapshotStore) PutState(ctx context.Context, v models.StateVector) error {
	if err := s.inner.PutState(ctx, v); err != nil {
		return err
	}
	s.fill(ctx, stateKey(v.Symbol), v)
	return nil
}

func (s *CachedSnapshotStore) PutGeometry(ctx context.Context, g models.GeometrySnapshot) error {
	if err := s.inner.PutGeometry(ctx, g); err != nil {
		return err
	}
	s.fill(ctx, geoKey(g.Symbol), g)
	return nil
}

func (s *CachedSnapshotStore) PutSwarm(ctx context.Context, sn models.SwarmSnapshot) error {
	if err := s.inner.PutSwarm(ctx, sn); err != nil {
		return err
	}
	s.fill(ctx, swarmKey(sn.Symbol), sn)
	return nil
}

func (s *CachedSnapshotStore) PutWeightState(ctx context.Context, ws models.AgentWeightState) error {
	if err := s.inner.PutWeightState(ctx, ws); err != nil {
		return err
	}
	s.fill(ctx, weightsKey(ws.Symbol), ws)
	return nil
}

func (s *CachedSnapshotStore) Health(ctx context.Context) error { return s.inner.Health(ctx) }

func (s *CachedSnapshotStore) Close() error {
	if err := s.cache.Close(); err != nil {
		s.l.Warn("cache close failed", applogger.Error(err))
	}
	return s.inner.Close()
}

// fill updates a cache entry; failures are logged and swallowed since the
// store remains the source of truth.
func (s *CachedSnapshotStore) fill(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.l.Warn("cache fill failed", applogger.String("key", key), applogger.Error(err))
	}
}
