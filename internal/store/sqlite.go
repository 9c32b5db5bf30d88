package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/stratumhealth/carepipe/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS health_records (
	id                TEXT PRIMARY KEY,
	trace_id          TEXT NOT NULL,
	pipeline_version  TEXT NOT NULL,
	intake_json       TEXT NOT NULL,
	structured_json   TEXT NOT NULL,
	report_json       TEXT NOT NULL,
	report_text       TEXT NOT NULL,
	safety_audit_json TEXT NOT NULL,
	input_hash        TEXT,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_health_records_input_hash
	ON health_records (input_hash) WHERE input_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_health_records_created_at
	ON health_records (created_at);
`

// SQLiteStore persists records in a local SQLite database via the pure Go
// driver, so the binary stays CGO-free.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ RecordStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. WAL mode keeps concurrent API reads from blocking writes.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = filepath.Join("data", "carepipe.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *models.HealthRecord) (*models.HealthRecord, bool, error) {
	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	hash := sql.NullString{String: cp.InputHash, Valid: cp.InputHash != ""}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO health_records
			(id, trace_id, pipeline_version, intake_json, structured_json,
			 report_json, report_text, safety_audit_json, input_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (input_hash) WHERE input_hash IS NOT NULL DO NOTHING`,
		cp.ID, cp.TraceID, cp.PipelineVersion,
		string(cp.IntakeJSON), string(cp.StructuredJSON),
		string(cp.ReportJSON), cp.ReportText, string(cp.SafetyAuditJSON),
		hash, cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert record: %w", err)
	}
	if affected == 0 {
		// Duplicate hash: hand back the existing row and bump its timestamp.
		existing, err := s.FindRecordByHash(ctx, cp.InputHash)
		if err != nil {
			return nil, false, fmt.Errorf("load duplicate record: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE health_records SET updated_at = ? WHERE id = ?`, now, existing.ID); err != nil {
			return nil, false, fmt.Errorf("touch duplicate record: %w", err)
		}
		existing.UpdatedAt = now
		return existing, false, nil
	}
	return &cp, true, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*models.HealthRecord, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectRecordSQL+` WHERE id = ?`, id))
}

func (s *SQLiteStore) FindRecordByHash(ctx context.Context, hash string) (*models.HealthRecord, error) {
	if hash == "" {
		return nil, ErrNotFound
	}
	return s.scanOne(s.db.QueryRowContext(ctx, selectRecordSQL+` WHERE input_hash = ?`, hash))
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]*models.HealthRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectRecordSQL+` ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.HealthRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
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

func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

const selectRecordSQL = `
	SELECT id, trace_id, pipeline_version, intake_json, structured_json,
	       report_json, report_text, safety_audit_json, input_hash, created_at, updated_at
	FROM health_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanOne(row *sql.Row) (*models.HealthRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanRecord(row rowScanner) (*models.HealthRecord, error) {
	var rec models.HealthRecord
	var intake, structured, report, audit string
	var hash sql.NullString
	if err := row.Scan(&rec.ID, &rec.TraceID, &rec.PipelineVersion,
		&intake, &structured, &report, &rec.ReportText, &audit,
		&hash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.IntakeJSON = []byte(intake)
	rec.StructuredJSON = []byte(structured)
	rec.ReportJSON = []byte(report)
	rec.SafetyAuditJSON = []byte(audit)
	rec.InputHash = hash.String
	return &rec, nil
}
