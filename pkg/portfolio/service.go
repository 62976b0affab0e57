package portfolio

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the content operations of the admin backend
type Service interface {
	// Record operations
	CreateRecord(ctx context.Context, req SaveRecordRequest) (*Record, error)
	UpdateRecord(ctx context.Context, req SaveRecordRequest) (*Record, error)
	GetRecord(ctx context.Context, table string, id uuid.UUID) (*Record, error)
	ListRecords(ctx context.Context, table string) ([]*Record, error)
	DeleteRecord(ctx context.Context, req DeleteRecordRequest) error

	// Public, cached listing
	ListPublic(ctx context.Context, table string) ([]*Record, error)

	// Audit trail
	ListActivity(ctx context.Context, limit int) ([]*ActivityLogEntry, error)

	Registry() *Registry
}

// SaveRecordRequest creates or updates a record. Fields must not contain
// the table's asset column; the asset is driven by Asset.
type SaveRecordRequest struct {
	Table   string
	ID      uuid.UUID // required for updates, optional for creates
	Fields  map[string]interface{}
	Asset   AssetInput
	Session *Session
}

// DeleteRecordRequest deletes one record and its managed asset.
type DeleteRecordRequest struct {
	Table   string
	ID      uuid.UUID
	Session *Session
}
