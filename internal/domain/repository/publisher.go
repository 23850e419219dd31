package repository

import (
	"context"

	"FieldPulse/internal/domain/models"
)

// Publisher pushes finished snapshots to downstream consumers (message bus,
// dashboards); failures are reported but never block persistence.
type Publisher interface {
	PublishState(ctx context.Context, v models.StateVector) error
	PublishGeometry(ctx context.Context, s models.GeometrySnapshot) error
	PublishSwarm(ctx context.Context, s models.SwarmSnapshot) error
	Close() error
}
