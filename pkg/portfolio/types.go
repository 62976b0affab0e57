package portfolio

import (
	"time"

	"github.com/google/uuid"
)

// Activity action types written to the admin activity log.
const (
	ActionContentCreated        = "CONTENT_CREATED"
	ActionContentUpdated        = "CONTENT_UPDATED"
	ActionContentDeleted        = "CONTENT_DELETED"
	ActionAdminLogin            = "ADMIN_LOGIN"
	ActionDataDeletionSelective = "DATA_DELETION_INITIATED_SELECTIVE"
	ActionDataDeletionFailed    = "DATA_DELETION_FAILED"
)

// AssetReference identifies one stored object. It is derived from a record's
// stored URL and never persisted on its own.
type AssetReference struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
}

// Record is a row of any content table. Column values other than the
// identity and timestamps live in Fields.
type Record struct {
	ID        uuid.UUID              `json:"id"`
	Table     string                 `json:"table"`
	Fields    map[string]interface{} `json:"fields"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StringField returns the named field as a string. Missing and null values
// yield "".
func (r *Record) StringField(name string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	switch v := r.Fields[name].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

// Clone returns a copy whose Fields map can be modified independently.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	return &c
}

// ResourceGroup is one logical content section and every table and bucket a
// purge of that section must touch.
type ResourceGroup struct {
	Key     string   `json:"key" yaml:"key"`
	Label   string   `json:"label" yaml:"label"`
	Tables  []string `json:"tables" yaml:"tables"`
	Buckets []string `json:"buckets" yaml:"buckets"`
}

// AssetBinding names the column of a table that holds a public URL into bucket.
type AssetBinding struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// DeletionRequest is the selection a bulk deletion runs against.
type DeletionRequest struct {
	SelectedGroupKeys []string  `json:"selected_group_keys"`
	RequestedAt       time.Time `json:"requested_at"`
}

// ActivityLogEntry is one append-only audit record.
type ActivityLogEntry struct {
	ActionType     string                 `json:"action_type"`
	Description    string                 `json:"description"`
	UserIdentifier string                 `json:"user_identifier"`
	Details        map[string]interface{} `json:"details,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// Session is an authenticated admin session. It is passed explicitly to the
// components that act on behalf of the admin.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	IssuedAt   time.Time `json:"issued_at"`
}

// UserIdentifier returns the identifier recorded in the activity log.
func (s *Session) UserIdentifier() string {
	if s == nil {
		return "unknown"
	}
	if s.Identifier != "" {
		return s.Identifier
	}
	return s.UserID
}
