package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratumhealth/carepipe/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS health_records (
	id                UUID PRIMARY KEY,
	trace_id          TEXT NOT NULL,
	pipeline_version  TEXT NOT NULL,
	intake_json       JSONB NOT NULL,
	structured_json   JSONB NOT NULL,
	report_json       JSONB NOT NULL,
	report_text       TEXT NOT NULL,
	safety_audit_json JSONB NOT NULL,
	input_hash        TEXT,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_health_records_input_hash
	ON health_records (input_hash) WHERE input_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_health_records_created_at
	ON health_records (created_at);
`

// PostgresStore persists records in Postgres for deployments where multiple
// instances share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ RecordStore = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *models.HealthRecord) (*models.HealthRecord, bool, error) {
	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	var hash *string
	if cp.InputHash != "" {
		hash = &cp.InputHash
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO health_records
			(id, trace_id, pipeline_version, intake_json, structured_json,
			 report_json, report_text, safety_audit_json, input_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (input_hash) WHERE input_hash IS NOT NULL DO NOTHING`,
		cp.ID, cp.TraceID, cp.PipelineVersion,
		cp.IntakeJSON, cp.StructuredJSON,
		cp.ReportJSON, cp.ReportText, cp.SafetyAuditJSON,
		hash, cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := s.FindRecordByHash(ctx, cp.InputHash)
		if err != nil {
			return nil, false, fmt.Errorf("load duplicate record: %w", err)
		}
		if _, err := s.pool.Exec(ctx,
			`UPDATE health_records SET updated_at = $1 WHERE id = $2`, now, existing.ID); err != nil {
			return nil, false, fmt.Errorf("touch duplicate record: %w", err)
		}
		existing.UpdatedAt = now
		return existing, false, nil
	}
	return &cp, true, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*models.HealthRecord, error) {
	rec, err := pgScanRecord(s.pool.QueryRow(ctx, pgSelectRecordSQL+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) FindRecordByHash(ctx context.Context, hash string) (*models.HealthRecord, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	rec, err := pgScanRecord(s.pool.QueryRow(ctx, pgSelectRecordSQL+` WHERE input_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]*models.HealthRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx, pgSelectRecordSQL+` ORDER BY created_at DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.HealthRecord
	for rows.Next() {
		rec, err := pgScanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM health_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgSelectRecordSQL = `
	SELECT id, trace_id, pipeline_version, intake_json, structured_json,
	       report_json, report_text, safety_audit_json, input_hash, created_at, updated_at
	FROM health_records`

func pgScanRecord(row pgx.Row) (*models.HealthRecord, error) {
	var rec models.HealthRecord
	var hash *string
	if err := row.Scan(&rec.ID, &rec.TraceID, &rec.PipelineVersion,
		&rec.IntakeJSON, &rec.StructuredJSON, &rec.ReportJSON,
		&rec.ReportText, &rec.SafetyAuditJSON,
		&hash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if hash != nil {
		rec.InputHash = *hash
	}
	return &rec, nil
}
