// Package store persists finalized pipeline runs as health records. Three
// backends share one interface: an in-memory store for tests and ephemeral
// deployments, SQLite for zero-config durable storage, and Postgres for
// shared deployments.
package store

import (
	"context"
	"errors"

	"github.com/stratumhealth/carepipe/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// RecordStore is the persistence interface for health records.
//
// SaveRecord is idempotent on InputHash: saving a record whose non-empty
// hash already exists returns the existing record with created == false and
// does not write a new row. Records with an empty hash always insert.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec *models.HealthRecord) (saved *models.HealthRecord, created bool, err error)
	GetRecord(ctx context.Context, id string) (*models.HealthRecord, error)
	FindRecordByHash(ctx context.Context, hash string) (*models.HealthRecord, error)
	ListRecords(ctx context.Context, limit int) ([]*models.HealthRecord, error)
	CountRecords(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50
