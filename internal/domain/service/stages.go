package service

import (
	"FieldPulse/internal/domain/models"
)

// Stage contracts let the orchestrator and tests swap implementations
// without reaching into the concrete services.

// Normalizer converts one raw record plus a rolling window of persisted
// vectors into a fixed-schema state vector.
type Normalizer interface {
	Normalize(raw models.RawMarketRecord, history []models.StateVector) (models.StateVector, error)
}

// Projector maps a state vector (and the prior snapshot) into latent
// coordinates with motif and drift.
type Projector interface {
	Project(vec models.StateVector, prior *models.GeometrySnapshot) (models.GeometrySnapshot, error)
}

// Aggregator combines the agent roster's votes into a consensus snapshot.
type Aggregator interface {
	Aggregate(vec models.StateVector, geo models.GeometrySnapshot, weights models.AgentWeightState, prior *models.SwarmSnapshot) (models.SwarmSnapshot, error)
}
