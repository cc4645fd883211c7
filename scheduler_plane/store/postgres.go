package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
	"github.com/itskum47/TaskFlux/scheduler_plane/observability"
)

// PostgresAuditSink writes scheduling decisions and accuracy samples to
// Postgres for offline analysis. Every write is best-effort: failures are
// counted and logged by the caller, never surfaced to the hot path.
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink initializes the pool and ensures the audit tables.
func NewPostgresAuditSink(ctx context.Context, connString string) (*PostgresAuditSink, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	sink := &PostgresAuditSink{pool: pool}
	if err := sink.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func (s *PostgresAuditSink) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS scheduling_decisions (
			id BIGSERIAL PRIMARY KEY,
			task_id TEXT NOT NULL,
			worker_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			used_fallback BOOLEAN NOT NULL,
			score DOUBLE PRECISION,
			prediction JSONB,
			decided_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS accuracy_samples (
			id BIGSERIAL PRIMARY KEY,
			task_type TEXT NOT NULL,
			predicted_ms DOUBLE PRECISION NOT NULL,
			actual_ms DOUBLE PRECISION NOT NULL,
			within_threshold BOOLEAN NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_task ON scheduling_decisions (task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_type ON accuracy_samples (task_type)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordDecision appends one scheduling decision.
func (s *PostgresAuditSink) RecordDecision(ctx context.Context, d *model.SchedulingDecision) error {
	var prediction []byte
	if d.Prediction != nil {
		prediction, _ = json.Marshal(d.Prediction)
	}
	query := `
		INSERT INTO scheduling_decisions (task_id, worker_id, reason, used_fallback, score, prediction, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		d.TaskID, d.WorkerID, string(d.Reason), d.UsedFallback, d.Score, prediction, d.Timestamp,
	)
	if err != nil {
		observability.AuditWriteFailures.Inc()
	}
	return err
}

// RecordSample appends one accuracy sample.
func (s *PostgresAuditSink) RecordSample(ctx context.Context, sample *model.PredictionSample) error {
	query := `
		INSERT INTO accuracy_samples (task_type, predicted_ms, actual_ms, within_threshold, observed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		sample.TaskType, sample.PredictedMs, sample.ActualMs, sample.WithinThreshold, sample.Timestamp,
	)
	if err != nil {
		observability.AuditWriteFailures.Inc()
	}
	return err
}

// Close closes the connection pool.
func (s *PostgresAuditSink) Close() {
	s.pool.Close()
}
