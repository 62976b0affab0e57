package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/portfolio-content/pkg/portfolio/objectkey"
)

// service implements the Service interface
type service struct {
	repository Repository
	activities ActivityStore
	activity   ActivityLogger
	store      ObjectStore
	registry   *Registry
	views      ViewCache
	keys       objectkey.Generator
	logger     *slog.Logger
	now        func() time.Time

	assets *AssetSynchronizer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the record repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithActivityStore sets the activity log table. Unless WithActivityLogger
// is also given, entries are appended through an ActivityLog over store.
func WithActivityStore(store ActivityStore) Option {
	return func(s *service) {
		s.activities = store
	}
}

// WithActivityLogger overrides the activity sink
func WithActivityLogger(l ActivityLogger) Option {
	return func(s *service) {
		s.activity = l
	}
}

// WithObjectStore sets the object store holding assets
func WithObjectStore(store ObjectStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithRegistry overrides the embedded resource group registry
func WithRegistry(r *Registry) Option {
	return func(s *service) {
		s.registry = r
	}
}

// WithViewCache sets the cache behind ListPublic
func WithViewCache(c ViewCache) Option {
	return func(s *service) {
		s.views = c
	}
}

// WithKeyGenerator sets the object key generator for uploads
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keys = g
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		s.logger = l
	}
}

// WithClock sets the time source for record timestamps
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger: slog.Default(),
		now:    time.Now,
		keys:   objectkey.NewTimestampGenerator(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.activity == nil {
		s.activity = NewActivityLog(s.activities, s.logger)
	}
	s.assets = NewAssetSynchronizer(s.store, WithSyncKeyGenerator(s.keys), WithSyncLogger(s.logger))

	return s, nil
}

var reservedFields = map[string]bool{"id": true, "created_at": true, "updated_at": true}

func (s *service) validateSave(req SaveRecordRequest) (AssetBinding, bool, error) {
	if _, ok := s.registry.GroupForTable(req.Table); !ok {
		return AssetBinding{}, false, Validationf("unknown table %q", req.Table)
	}
	for name := range req.Fields {
		if reservedFields[name] {
			return AssetBinding{}, false, Validationf("field %q is managed by the server", name)
		}
	}
	binding, hasAsset := s.registry.AssetBinding(req.Table)
	if !hasAsset {
		if !req.Asset.IsZero() {
			return AssetBinding{}, false, Validationf("table %q has no asset field", req.Table)
		}
		return binding, false, nil
	}
	if _, ok := req.Fields[binding.Column]; ok {
		return AssetBinding{}, false, Validationf("field %q must be set through the asset input", binding.Column)
	}
	return binding, true, nil
}

// Record operations

func (s *service) CreateRecord(ctx context.Context, req SaveRecordRequest) (*Record, error) {
	binding, hasAsset, err := s.validateSave(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &Record{
		ID:        req.ID,
		Table:     req.Table,
		Fields:    make(map[string]interface{}, len(req.Fields)+1),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	for k, v := range req.Fields {
		record.Fields[k] = v
	}

	return s.save(ctx, record, "", req, binding, hasAsset, "create")
}

func (s *service) UpdateRecord(ctx context.Context, req SaveRecordRequest) (*Record, error) {
	binding, hasAsset, err := s.validateSave(req)
	if err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, Validationf("record id is required")
	}

	existing, err := s.repository.GetRecord(ctx, req.Table, req.ID)
	if err != nil {
		return nil, &RecordError{Table: req.Table, ID: req.ID, Op: "get", Err: err}
	}

	record := existing.Clone()
	for k, v := range req.Fields {
		record.Fields[k] = v
	}
	record.UpdatedAt = s.now().UTC()

	oldURL := ""
	if hasAsset {
		oldURL = existing.StringField(binding.Column)
	}
	return s.save(ctx, record, oldURL, req, binding, hasAsset, "update")
}

// save runs the asset sync, writes the record and settles the sync result.
// The replaced object is deleted only after the write has committed.
func (s *service) save(ctx context.Context, record *Record, oldURL string, req SaveRecordRequest, binding AssetBinding, hasAsset bool, op string) (*Record, error) {
	var res *SyncResult
	if hasAsset {
		var err error
		res, err = s.assets.Sync(ctx, oldURL, req.Asset, binding.Bucket)
		if err != nil {
			return nil, err
		}
		if res.FinalURL == "" {
			record.Fields[binding.Column] = nil
		} else {
			record.Fields[binding.Column] = res.FinalURL
		}
	}

	var err error
	if op == "create" {
		err = s.repository.CreateRecord(ctx, record)
	} else {
		err = s.repository.UpdateRecord(ctx, record)
	}
	if err != nil {
		if writeOutcomeUnknown(err) {
			// The committed row may already reference the upload.
			s.logger.Warn("Record write outcome unknown, keeping uploaded asset",
				"table", record.Table, "id", record.ID, "error", err)
		} else {
			s.assets.Abort(ctx, res)
		}
		return nil, &RecordError{Table: record.Table, ID: record.ID, Op: op, Err: err}
	}

	s.assets.Commit(ctx, res)
	s.invalidate(record.Table)

	action, verb := ActionContentCreated, "Created"
	if op == "update" {
		action, verb = ActionContentUpdated, "Updated"
	}
	details := map[string]interface{}{"table": record.Table, "id": record.ID.String()}
	if res != nil && res.Changed(oldURL) {
		details["asset"] = res.FinalURL
	}
	s.activity.Append(ctx, ActivityLogEntry{
		ActionType:     action,
		Description:    fmt.Sprintf("%s %s record %s", verb, record.Table, record.ID),
		UserIdentifier: req.Session.UserIdentifier(),
		Details:        details,
	})

	return record, nil
}

func writeOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrWriteOutcomeUnknown) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *service) GetRecord(ctx context.Context, table string, id uuid.UUID) (*Record, error) {
	if _, ok := s.registry.GroupForTable(table); !ok {
		return nil, Validationf("unknown table %q", table)
	}
	record, err := s.repository.GetRecord(ctx, table, id)
	if err != nil {
		return nil, &RecordError{Table: table, ID: id, Op: "get", Err: err}
	}
	return record, nil
}

func (s *service) ListRecords(ctx context.Context, table string) ([]*Record, error) {
	if _, ok := s.registry.GroupForTable(table); !ok {
		return nil, Validationf("unknown table %q", table)
	}
	return s.repository.ListRecords(ctx, table)
}

func (s *service) ListPublic(ctx context.Context, table string) ([]*Record, error) {
	if s.views == nil {
		return s.ListRecords(ctx, table)
	}
	if records, ok := s.views.Get(table); ok {
		return records, nil
	}
	gen := s.views.Generation(table)
	records, err := s.ListRecords(ctx, table)
	if err != nil {
		return nil, err
	}
	if !s.views.PutIfGeneration(table, gen, records) {
		s.logger.Debug("Public view changed while loading, not cached", "table", table)
	}
	return records, nil
}

// DeleteRecord removes the row first, then its managed asset. A failed
// object deletion is logged and does not fail the call.
func (s *service) DeleteRecord(ctx context.Context, req DeleteRecordRequest) error {
	record, err := s.GetRecord(ctx, req.Table, req.ID)
	if err != nil {
		return err
	}

	if err := s.repository.DeleteRecord(ctx, req.Table, req.ID); err != nil {
		return &RecordError{Table: req.Table, ID: req.ID, Op: "delete", Err: err}
	}
	s.invalidate(req.Table)

	if binding, ok := s.registry.AssetBinding(req.Table); ok {
		s.assets.Remove(ctx, record.StringField(binding.Column), binding.Bucket)
	}

	s.activity.Append(ctx, ActivityLogEntry{
		ActionType:     ActionContentDeleted,
		Description:    fmt.Sprintf("Deleted %s record %s", req.Table, req.ID),
		UserIdentifier: req.Session.UserIdentifier(),
		Details:        map[string]interface{}{"table": req.Table, "id": req.ID.String()},
	})
	return nil
}

func (s *service) ListActivity(ctx context.Context, limit int) ([]*ActivityLogEntry, error) {
	if s.activities == nil {
		return nil, errors.New("activity store not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.activities.ListActivity(ctx, limit)
}

func (s *service) Registry() *Registry {
	return s.registry
}

func (s *service) invalidate(tables ...string) {
	if s.views != nil {
		s.views.InvalidateTables(tables...)
	}
}
