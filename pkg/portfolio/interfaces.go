package portfolio

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// ObjectStore defines the interface for bucket-based object storage
type ObjectStore interface {
	// Upload writes an object. An existing object under key is replaced, so
	// callers must generate fresh keys.
	Upload(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error

	// Delete removes an object
	Delete(ctx context.Context, bucket, key string) error

	// PublicURL returns the URL the public site uses to fetch an object
	PublicURL(bucket, key string) string
}

// Repository defines the interface for content record persistence
type Repository interface {
	CreateRecord(ctx context.Context, record *Record) error
	UpdateRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, table string, id uuid.UUID) (*Record, error)
	ListRecords(ctx context.Context, table string) ([]*Record, error)
	DeleteRecord(ctx context.Context, table string, id uuid.UUID) error
}

// ActivityStore is the insert-only admin activity log table
type ActivityStore interface {
	InsertActivity(ctx context.Context, entry *ActivityLogEntry) error
	ListActivity(ctx context.Context, limit int) ([]*ActivityLogEntry, error)
}

// ActivityLogger appends audit entries without reporting failures
type ActivityLogger interface {
	Append(ctx context.Context, entry ActivityLogEntry)
}

// Authenticator verifies an admin credential against the identity provider.
// It has no session side effects.
type Authenticator interface {
	Verify(ctx context.Context, identifier, credential string) error
}

// ViewInvalidator drops cached public views of the given tables
type ViewInvalidator interface {
	InvalidateTables(tables ...string)
}

// ViewCache caches the public listing of each table. A listing is only
// stored if the table's generation is unchanged since the rows were read.
type ViewCache interface {
	ViewInvalidator
	Get(table string) ([]*Record, bool)
	Generation(table string) uint64
	PutIfGeneration(table string, gen uint64, records []*Record) bool
}
