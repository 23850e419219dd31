package repository

import (
	"context"
	"time"

	"FieldPulse/internal/domain/models"
)

// SnapshotStore is the persistence contract consumed by the pipeline. The
// core never assumes a specific database; implementations provide at-least-
// once writes, and outputs are idempotent per (symbol, timestamp), so
// duplicate writes are harmless.
//
// Get-latest methods return (nil, nil) when nothing is persisted yet.
type SnapshotStore interface {
	Init(ctx context.Context) error // ensure tables, health checks

	GetLatestState(ctx context.Context, symbol string) (*models.StateVector, error)
	// GetRecentStates returns up to n most recent vectors in ascending
	// timestamp order (the normalizer's rolling reference window).
	GetRecentStates(ctx context.Context, symbol string, n int) ([]models.StateVector, error)
	// GetStateRange returns vectors with from <= ts <= to in ascending
	// timestamp order.
	GetStateRange(ctx context.Context, symbol string, from, to time.Time) ([]models.StateVector, error)
	GetLatestGeometry(ctx context.Context, symbol string) (*models.GeometrySnapshot, error)
	GetLatestSwarm(ctx context.Context, symbol string) (*models.SwarmSnapshot, error)
	GetSwarmAt(ctx context.Context, symbol string, ts time.Time) (*models.SwarmSnapshot, error)
	GetSwarmRange(ctx context.Context, symbol string, from, to time.Time) ([]models.SwarmSnapshot, error)
	GetWeightState(ctx context.Context, symbol string) (*models.AgentWeightState, error)

	PutState(ctx context.Context, v models.StateVector) error
	PutGeometry(ctx context.Context, s models.GeometrySnapshot) error
	PutSwarm(ctx context.Context, s models.SwarmSnapshot) error
	PutWeightState(ctx context.Context, s models.AgentWeightState) error

	Health(ctx context.Context) error
	Close() error
}
