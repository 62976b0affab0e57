package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// Repository implements portfolio.Repository and portfolio.ActivityStore
// using in-memory storage
type Repository struct {
	mu         sync.RWMutex
	tables     map[string]map[uuid.UUID]*portfolio.Record
	activities []*portfolio.ActivityLogEntry
}

var (
	_ portfolio.Repository    = (*Repository)(nil)
	_ portfolio.ActivityStore = (*Repository)(nil)
)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		tables: make(map[string]map[uuid.UUID]*portfolio.Record),
	}
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, record *portfolio.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, ok := r.tables[record.Table]
	if !ok {
		rows = make(map[uuid.UUID]*portfolio.Record)
		r.tables[record.Table] = rows
	}
	rows[record.ID] = record.Clone()
	return nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *portfolio.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[record.Table][record.ID]; !exists {
		return portfolio.ErrRecordNotFound
	}
	r.tables[record.Table][record.ID] = record.Clone()
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, table string, id uuid.UUID) (*portfolio.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.tables[table][id]
	if !exists {
		return nil, portfolio.ErrRecordNotFound
	}
	return record.Clone(), nil
}

// ListRecords returns the rows of table, oldest first
func (r *Repository) ListRecords(ctx context.Context, table string) ([]*portfolio.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*portfolio.Record, 0, len(r.tables[table]))
	for _, record := range r.tables[table] {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Repository) DeleteRecord(ctx context.Context, table string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[table][id]; !exists {
		return portfolio.ErrRecordNotFound
	}
	delete(r.tables[table], id)
	return nil
}

// Activity operations

func (r *Repository) InsertActivity(ctx context.Context, entry *portfolio.ActivityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	if entry.Details != nil {
		e.Details = make(map[string]interface{}, len(entry.Details))
		for k, v := range entry.Details {
			e.Details[k] = v
		}
	}
	r.activities = append(r.activities, &e)
	return nil
}

// ListActivity returns up to limit entries, newest first
func (r *Repository) ListActivity(ctx context.Context, limit int) ([]*portfolio.ActivityLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*portfolio.ActivityLogEntry
	for i := len(r.activities) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := *r.activities[i]
		out = append(out, &e)
	}
	return out, nil
}
