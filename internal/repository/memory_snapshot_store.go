package repository

import (
	"context"
	"sync"
	"time"

	"FieldPulse/internal/domain/models"
)

// MemorySnapshotStore is an in-memory SnapshotStore used by the replay
// harness and tests. Snapshots are kept per symbol in insertion order, which
// for live use is ascending by timestamp.
type MemorySnapshotStore struct {
	mu       sync.RWMutex
	states   map[string][]models.StateVector
	geometry map[string][]models.GeometrySnapshot
	swarm    map[string][]models.SwarmSnapshot
	weights  map[string]models.AgentWeightState
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		states:   make(map[string][]models.StateVector),
		geometry: make(map[string][]models.GeometrySnapshot),
		swarm:    make(map[string][]models.SwarmSnapshot),
		weights:  make(map[string]models.AgentWeightState),
	}
}

func (m *MemorySnapshotStore) Init(ctx context.Context) error { return nil }

func (m *MemorySnapshotStore) GetLatestState(ctx context.Context, symbol string) (*models.StateVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.states[symbol]
	if len(list) == 0 {
		return nil, nil
	}
	v := list[len(list)-1]
	return &v, nil
}

func (m *MemorySnapshotStore) GetRecentStates(ctx context.Context, symbol string, n int) ([]models.StateVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.states[symbol]
	if len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]models.StateVector, len(list))
	copy(out, list)
	return out, nil
}

func (m *MemorySnapshotStore) GetStateRange(ctx context.Context, symbol string, from, to time.Time) ([]models.StateVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.StateVector
	for _, v := range m.states[symbol] {
		if !v.Timestamp.Before(from) && !v.Timestamp.After(to) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MemorySnapshotStore) GetLatestGeometry(ctx context.Context, symbol string) (*models.GeometrySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.geometry[symbol]
	if len(list) == 0 {
		return nil, nil
	}
	g := list[len(list)-1]
	return &g, nil
}

func (m *MemorySnapshotStore) GetLatestSwarm(ctx context.Context, symbol string) (*models.SwarmSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.swarm[symbol]
	if len(list) == 0 {
		return nil, nil
	}
	s := list[len(list)-1]
	return &s, nil
}

func (m *MemorySnapshotStore) GetSwarmAt(ctx context.Context, symbol string, ts time.Time) (*models.SwarmSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.swarm[symbol]) - 1; i >= 0; i-- {
		if m.swarm[symbol][i].Timestamp.Equal(ts) {
			s := m.swarm[symbol][i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemorySnapshotStore) GetSwarmRange(ctx context.Context, symbol string, from, to time.Time) ([]models.SwarmSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SwarmSnapshot
	for _, s := range m.swarm[symbol] {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemorySnapshotStore) GetWeightState(ctx context.Context, symbol string) (*models.AgentWeightState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.weights[symbol]
	if !ok {
		return nil, nil
	}
	c := ws.Clone()
	return &c, nil
}

func (m *MemorySnapshotStore) PutState(ctx context.Context, v models.StateVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[v.Symbol] = append(m.states[v.Symbol], v)
	return nil
}

func (m *MemorySnapshotStore) PutGeometry(ctx context.Context, g models.GeometrySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geometry[g.Symbol] = append(m.geometry[g.Symbol], g)
	return nil
}

func (m *MemorySnapshotStore) PutSwarm(ctx context.Context, s models.SwarmSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swarm[s.Symbol] = append(m.swarm[s.Symbol], s)
	return nil
}

func (m *MemorySnapshotStore) PutWeightState(ctx context.Context, ws models.AgentWeightState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights[ws.Symbol] = ws.Clone()
	return nil
}

func (m *MemorySnapshotStore) Health(ctx context.Context) error { return nil }

func (m *MemorySnapshotStore) Close() error { return nil }
