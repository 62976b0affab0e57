package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

func openMemory(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)
	now := time.Date(2026, 10, 15, 10, 15, 0, 123456789, time.UTC)

	record := &portfolio.Record{
		ID:        uuid.New(),
		Table:     "certifications",
		Fields:    map[string]interface{}{"name": "CKA", "image_url": "https://store/certification-images/cka.png", "year": 2025},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateRecord(ctx, record))

	got, err := repo.GetRecord(ctx, "certifications", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "CKA", got.StringField("name"))
	assert.Equal(t, float64(2025), got.Fields["year"])
	assert.True(t, now.Equal(got.CreatedAt))

	got.Fields["image_url"] = nil
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.UpdateRecord(ctx, got))

	again, err := repo.GetRecord(ctx, "certifications", record.ID)
	require.NoError(t, err)
	v, present := again.Fields["image_url"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.True(t, now.Add(time.Minute).Equal(again.UpdatedAt))

	_, err = repo.GetRecord(ctx, "projects", record.ID)
	assert.ErrorIs(t, err, portfolio.ErrRecordNotFound)

	require.NoError(t, repo.DeleteRecord(ctx, "certifications", record.ID))
	assert.ErrorIs(t, repo.DeleteRecord(ctx, "certifications", record.ID), portfolio.ErrRecordNotFound)
	assert.ErrorIs(t, repo.UpdateRecord(ctx, got), portfolio.ErrRecordNotFound)
}

func TestRepository_ListRecords(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"Go", "Rust", "SQL"} {
		require.NoError(t, repo.CreateRecord(ctx, &portfolio.Record{
			ID:        uuid.New(),
			Table:     "skills",
			Fields:    map[string]interface{}{"name": name},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base,
		}))
	}
	require.NoError(t, repo.CreateRecord(ctx, &portfolio.Record{ID: uuid.New(), Table: "projects", Fields: map[string]interface{}{}}))

	list, err := repo.ListRecords(ctx, "skills")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Go", list[0].StringField("name"))
	assert.Equal(t, "SQL", list[2].StringField("name"))
	assert.Equal(t, "skills", list[0].Table)
}

func TestRepository_Activity(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)
	at := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertActivity(ctx, &portfolio.ActivityLogEntry{
		ActionType: portfolio.ActionContentCreated, Description: "Created", UserIdentifier: "admin", OccurredAt: at,
	}))
	require.NoError(t, repo.InsertActivity(ctx, &portfolio.ActivityLogEntry{
		ActionType:     portfolio.ActionDataDeletionSelective,
		Description:    "Deleted content sections: projects, skills",
		UserIdentifier: "admin",
		Details:        map[string]interface{}{"deletedGroupKeys": []string{"projects", "skills"}},
		OccurredAt:     at.Add(time.Second),
	}))

	entries, err := repo.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, portfolio.ActionDataDeletionSelective, entries[0].ActionType)
	assert.Equal(t, []interface{}{"projects", "skills"}, entries[0].Details["deletedGroupKeys"])
	assert.Nil(t, entries[1].Details)
	assert.True(t, at.Equal(entries[1].OccurredAt))

	entries, err = repo.ListActivity(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")
	repo, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, repo.CreateRecord(ctx, &portfolio.Record{ID: id, Table: "hero_content", Fields: map[string]interface{}{"headline": "Hi"}}))
	require.NoError(t, repo.Close())

	// schema creation is idempotent and data persists
	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()
	got, err := repo.GetRecord(ctx, "hero_content", id)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got.StringField("headline"))
}
