package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FieldPulse/internal/domain/models"
	pkgch "FieldPulse/pkg/clickhouse"
	applogger "FieldPulse/pkg/logger"
)

// CHSnapshotStore implements SnapshotStore backed by ClickHouse. Snapshot
// tables are insert-only MergeTree keyed by (symbol, ts); duplicate writes of
// the same bucket are harmless. Weight state uses ReplacingMergeTree keyed by
// version so the latest row wins.
type CHSnapshotStore struct {
	client *pkgch.Client
	db     *sql.DB
	dbName string
	l      *applogger.Logger
}

func NewCHSnapshotStore(ch *pkgch.Client, database string) *CHSnapshotStore {
	return &CHSnapshotStore{client: ch, db: ch.DB(), dbName: database, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHSnapshotStore) SetLogger(l *applogger.Logger) { s.l = l }

// Init ensures the database and tables exist (idempotent).
func (s *CHSnapshotStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.dbName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_state_snapshots (
			symbol String,
			ts DateTime64(3, 'UTC'),
			schema_version String,
			quality String,
			features String
		) ENGINE=MergeTree ORDER BY (symbol, ts)`, s.dbName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.geometry_snapshots (
			symbol String,
			ts DateTime64(3, 'UTC'),
			basis_version String,
			motif String,
			coordinates String,
			drift_magnitude Float64,
			drift_direction String,
			transition_probs String,
			source_state_ts DateTime64(3, 'UTC'),
			discontinuity UInt8
		) ENGINE=MergeTree ORDER BY (symbol, ts)`, s.dbName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.swarm_snapshots (
			symbol String,
			ts DateTime64(3, 'UTC'),
			consensus_score Float64,
			consensus_confidence Float64,
			persistence Float64,
			contributions String,
			weights_used String,
			weights_version Int64
		) ENGINE=MergeTree ORDER BY (symbol, ts)`, s.dbName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.agent_weight_state (
			symbol String,
			version Int64,
			weights String,
			updated_at DateTime64(3, 'UTC')
		) ENGINE=ReplacingMergeTree(version) ORDER BY symbol`, s.dbName),
	}
	if err := s.client.InitSchema(ctx, stmts); err != nil {
		return fmt.Errorf("snapshot store init: %w", err)
	}
	s.l.Info("clickhouse snapshot schema ready", applogger.String("database", s.dbName))
	return nil
}

func (s *CHSnapshotStore) GetLatestState(ctx context.Context, symbol string) (*models.StateVector, error) {
	q := fmt.Sprintf(`
        SELECT symbol, ts, schema_version, quality, features
        FROM %s.market_state_snapshots
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT 1
    `, s.dbName)
	row := s.db.QueryRowContext(ctx, q, symbol)
	v, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.l.Error("clickhouse latest_state error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get latest state: %w", err)
	}
	return v, nil
}

func (s *CHSnapshotStore) GetRecentStates(ctx context.Context, symbol string, n int) ([]models.StateVector, error) {
	q := fmt.Sprintf(`
        SELECT symbol, ts, schema_version, quality, features
        FROM %s.market_state_snapshots
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.dbName)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse recent_states error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get recent states: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.StateVector, 0, n)
	for rows.Next() {
		v, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		tmp = append(tmp, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ascending
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHSnapshotStore) GetStateRange(ctx context.Context, symbol string, from, to time.Time) ([]models.StateVector, error) {
	q := fmt.Sprintf(`
        SELECT symbol, ts, schema_version, quality, features
        FROM %s.market_state_snapshots
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `, s.dbName)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse state_range error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get state range: %w", err)
	}
	defer rows.Close()

	var out []models.StateVector
	for rows.Next() {
		v, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHSnapshotStore) GetLatestGeometry(ctx context.Context, symbol string) (*models.GeometrySnapshot, error) {
	q := fmt.Sprintf(`
        SELECT symbol, ts, basis_version, motif, coordinates, drift_magnitude,
               drift_direction, transition_probs, source_state_ts, discontinuity
        FROM %s.geometry_snapshots
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT 1
    `, s.dbName)
	row := s.db.QueryRowContext(ctx, q, symbol)

	var (
		g             models.GeometrySnapshot
		coords        string
		direction     string
		probs         string
		discontinuity uint8
	)
	err := row.Scan(&g.Symbol, &g.Timestamp, &g.BasisVersion, &g.Motif, &coords,
		&g.Drift.Magnitude, &direction, &probs, &g.SourceStateTimestamp, &discontinuity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.l.Error("clickhouse latest_geometry error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get latest geometry: %w", err)
	}
	g.Discontinuity = discontinuity != 0
	if err := decodeJSON(coords, &g.Coordinates); err != nil {
		return nil, err
	}
	if err := decodeJSON(direction, &g.Drift.Direction); err != nil {
		return nil, err
	}
	if err := decodeJSON(probs, &g.TransitionProbs); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *CHSnapshotStore) GetLatestSwarm(ctx context.Context, symbol string) (*models.SwarmSnapshot, error) {
	q := s.swarmSelect() + ` WHERE symbol = ? ORDER BY ts DESC LIMIT 1`
	return s.querySwarmOne(ctx, q, symbol)
}

func (s *CHSnapshotStore) GetSwarmAt(ctx context.Context, symbol string, ts time.Time) (*models.SwarmSnapshot, error) {
	q := s.swarmSelect() + ` WHERE symbol = ? AND ts = ? LIMIT 1`
	return s.querySwarmOne(ctx, q, symbol, ts)
}

func (s *CHSnapshotStore) GetSwarmRange(ctx context.Context, symbol string, from, to time.Time) ([]models.SwarmSnapshot, error) {
	q := s.swarmSelect() + ` WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse swarm_range error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get swarm range: %w", err)
	}
	defer rows.Close()

	var out []models.SwarmSnapshot
	for rows.Next() {
		sn, err := scanSwarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm: %w", err)
		}
		out = append(out, *sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHSnapshotStore) GetWeightState(ctx context.Context, symbol string) (*models.AgentWeightState, error) {
	q := fmt.Sprintf(`
        SELECT symbol, version, weights, updated_at
        FROM %s.agent_weight_state FINAL
        WHERE symbol = ?
        ORDER BY version DESC
        LIMIT 1
    `, s.dbName)
	row := s.db.QueryRowContext(ctx, q, symbol)

	var (
		ws      models.AgentWeightState
		weights string
	)
	err := row.Scan(&ws.Symbol, &ws.Version, &weights, &ws.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.l.Error("clickhouse weight_state error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("get weight state: %w", err)
	}
	if err := decodeJSON(weights, &ws.Weights); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *CHSnapshotStore) PutState(ctx context.Context, v models.StateVector) error {
	features, err := json.Marshal(v.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	q := fmt.Sprintf(`
        INSERT INTO %s.market_state_snapshots
            (symbol, ts, schema_version, quality, features)
        VALUES (?, ?, ?, ?, ?)
    `, s.dbName)
	if _, err := s.db.ExecContext(ctx, q, v.Symbol, v.Timestamp, v.SchemaVersion, string(v.Quality), string(features)); err != nil {
		s.l.Error("clickhouse put_state error", applogger.String("symbol", v.Symbol), applogger.Error(err))
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) PutGeometry(ctx context.Context, g models.GeometrySnapshot) error {
	coords, err := json.Marshal(g.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	direction, err := json.Marshal(g.Drift.Direction)
	if err != nil {
		return fmt.Errorf("encode drift direction: %w", err)
	}
	probs, err := json.Marshal(g.TransitionProbs)
	if err != nil {
		return fmt.Errorf("encode transition probs: %w", err)
	}
	discontinuity := uint8(0)
	if g.Discontinuity {
		discontinuity = 1
	}
	q := fmt.Sprintf(`
        INSERT INTO %s.geometry_snapshots
            (symbol, ts, basis_version, motif, coordinates, drift_magnitude,
             drift_direction, transition_probs, source_state_ts, discontinuity)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, s.dbName)
	if _, err := s.db.ExecContext(ctx, q, g.Symbol, g.Timestamp, g.BasisVersion, g.Motif, string(coords),
		g.Drift.Magnitude, string(direction), string(probs), g.SourceStateTimestamp, discontinuity); err != nil {
		s.l.Error("clickhouse put_geometry error", applogger.String("symbol", g.Symbol), applogger.Error(err))
		return fmt.Errorf("put geometry: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) PutSwarm(ctx context.Context, sn models.SwarmSnapshot) error {
	contributions, err := json.Marshal(sn.Contributions)
	if err != nil {
		return fmt.Errorf("encode contributions: %w", err)
	}
	weights, err := json.Marshal(sn.WeightsUsed)
	if err != nil {
		return fmt.Errorf("encode weights used: %w", err)
	}
	q := fmt.Sprintf(`
        INSERT INTO %s.swarm_snapshots
            (symbol, ts, consensus_score, consensus_confidence, persistence,
             contributions, weights_used, weights_version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, s.dbName)
	if _, err := s.db.ExecContext(ctx, q, sn.Symbol, sn.Timestamp, sn.ConsensusScore, sn.ConsensusConfidence,
		sn.Persistence, string(contributions), string(weights), sn.WeightsVersion); err != nil {
		s.l.Error("clickhouse put_swarm error", applogger.String("symbol", sn.Symbol), applogger.Error(err))
		return fmt.Errorf("put swarm: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) PutWeightState(ctx context.Context, ws models.AgentWeightState) error {
	weights, err := json.Marshal(ws.Weights)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	q := fmt.Sprintf(`
        INSERT INTO %s.agent_weight_state (symbol, version, weights, updated_at)
        VALUES (?, ?, ?, ?)
    `, s.dbName)
	if _, err := s.db.ExecContext(ctx, q, ws.Symbol, ws.Version, string(weights), ws.LastUpdated); err != nil {
		s.l.Error("clickhouse put_weight_state error", applogger.String("symbol", ws.Symbol), applogger.Error(err))
		return fmt.Errorf("put weight state: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *CHSnapshotStore) Close() error { return s.client.Close() }

func (s *CHSnapshotStore) swarmSelect() string {
	return fmt.Sprintf(`
        SELECT symbol, ts, consensus_score, consensus_confidence, persistence,
               contributions, weights_used, weights_version
        FROM %s.swarm_snapshots`, s.dbName)
}

func (s *CHSnapshotStore) querySwarmOne(ctx context.Context, q string, args ...any) (*models.SwarmSnapshot, error) {
	row := s.db.QueryRowContext(ctx, q, args...)
	sn, err := scanSwarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm: %w", err)
	}
	return sn, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(r rowScanner) (*models.StateVector, error) {
	var (
		v        models.StateVector
		quality  string
		features string
	)
	if err := r.Scan(&v.Symbol, &v.Timestamp, &v.SchemaVersion, &quality, &features); err != nil {
		return nil, err
	}
	v.Quality = models.Quality(quality)
	if err := decodeJSON(features, &v.Features); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanSwarm(r rowScanner) (*models.SwarmSnapshot, error) {
	var (
		sn            models.SwarmSnapshot
		contributions string
		weights       string
	)
	if err := r.Scan(&sn.Symbol, &sn.Timestamp, &sn.ConsensusScore, &sn.ConsensusConfidence,
		&sn.Persistence, &contributions, &weights, &sn.WeightsVersion); err != nil {
		return nil, err
	}
	if err := decodeJSON(contributions, &sn.Contributions); err != nil {
		return nil, err
	}
	if err := decodeJSON(weights, &sn.WeightsUsed); err != nil {
		return nil, err
	}
	return &sn, nil
}

func decodeJSON(s string, dest any) error {
	if s == "" || s == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}
