package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/dsheet/internal/attachment"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/repository"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var (
	_ item.Repository     = (*ItemRepository)(nil)
	_ project.Repository  = (*ProjectRepository)(nil)
	_ activity.Repository = (*ActivityRepository)(nil)
	_ access.Repository   = (*AccessRepository)(nil)
)

// newTestDB connects to DSHEET_TEST_MONGO_URI with a database of its own.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	uri := os.Getenv("DSHEET_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DSHEET_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := "dsheet_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	db, err := Open(ctx, uri, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = db.Close(ctx)
	})
	return db
}

func createProject(t *testing.T, db *DB, key string) {
	t.Helper()
	require.NoError(t, NewProjectRepository(db).Create(context.Background(), &project.Project{
		Key: key, Name: key, CreatedAt: time.Now(),
	}))
}

func newItem(projectKey string, number int) *item.Item {
	now := time.Now().Truncate(time.Millisecond)
	return &item.Item{
		ID:         uuid.NewString(),
		ProjectKey: projectKey,
		Number:     number,
		Title:      fmt.Sprintf("title %d", number),
		Content:    "content",
		Detail:     "detail",
		Images:     []string{},
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

func listNumbers(t *testing.T, repo *ItemRepository, key string) []int {
	t.Helper()
	items, err := repo.List(context.Background(), key, item.ListOptions{})
	require.NoError(t, err)
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.Number
	}
	return out
}

func TestProjectRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewProjectRepository(db)

	createProject(t, db, "P1")
	err := repo.Create(ctx, &project.Project{Key: "P1", CreatedAt: time.Now()})
	require.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, NewItemRepository(db).Create(ctx, newItem("P1", 4)))

	summaries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].ItemCount)
	require.Equal(t, 4, summaries[0].HighestNum)

	require.ErrorIs(t, repo.Delete(ctx, "P1"), repository.ErrForeignKeyViolation)
	require.ErrorIs(t, repo.Delete(ctx, "NOPE"), repository.ErrNotFound)
}

func TestItemRepository_UniqueNumberAndPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createProject(t, db, "P1")
	repo := NewItemRepository(db)

	require.ErrorIs(t, repo.Create(ctx, newItem("NOPE", 1)), repository.ErrForeignKeyViolation)

	for _, n := range []int{3, 1, 2} {
		require.NoError(t, repo.Create(ctx, newItem("P1", n)))
	}
	require.ErrorIs(t, repo.Create(ctx, newItem("P1", 2)), repository.ErrConflict)

	first, err := repo.List(ctx, "P1", item.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	last := first[len(first)-1]
	rest, err := repo.List(ctx, "P1", item.ListOptions{AfterNumber: last.Number, AfterID: last.ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, 3, rest[0].Number)

	highest, err := repo.HighestNumber(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, 3, highest)
}

func TestItemRepository_ParkSettle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createProject(t, db, "P1")
	repo := NewItemRepository(db)
	for _, n := range []int{1, 2, 3} {
		require.NoError(t, repo.Create(ctx, newItem("P1", n)))
	}

	restore, err := repo.RelaxUniqueness(ctx)
	require.NoError(t, err)

	parked, err := repo.Park(ctx, "P1", 2, item.ParkOffset)
	require.NoError(t, err)
	require.EqualValues(t, 2, parked)

	n, err := repo.CountParked(ctx, "P1", item.ParkOffset)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	settled, err := repo.Settle(ctx, "P1", item.ParkOffset)
	require.NoError(t, err)
	require.EqualValues(t, 2, settled)
	require.NoError(t, restore(ctx))

	require.Equal(t, []int{1, 3, 4}, listNumbers(t, repo, "P1"))
}

func TestItemRepository_InsertBatchAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createProject(t, db, "P1")
	repo := NewItemRepository(db)
	require.NoError(t, repo.Create(ctx, newItem("P1", 2)))

	batch := []item.Item{*newItem("P1", 1), *newItem("P1", 2), *newItem("P1", 3)}
	require.ErrorIs(t, repo.InsertBatch(ctx, batch), repository.ErrConflict)
	require.Equal(t, []int{2}, listNumbers(t, repo, "P1"))

	require.NoError(t, repo.InsertBatch(ctx, []item.Item{*newItem("P1", 5), *newItem("P1", 6)}))
	require.Equal(t, []int{2, 5, 6}, listNumbers(t, repo, "P1"))
}

func TestActivityAndAccessRepositories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	acts := NewActivityRepository(db)
	for _, typ := range []activity.Type{activity.TypeItemCreated, activity.TypeItemsRenumbered} {
		require.NoError(t, acts.Log(ctx, &activity.Entry{ProjectKey: "P1", Type: typ, Summary: string(typ)}))
	}
	entries, err := acts.List(ctx, activity.ListOptions{ProjectKey: "P1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeItemsRenumbered, entries[0].Type)

	tokens := NewAccessRepository(db)
	now := time.Now()
	require.NoError(t, tokens.Create(ctx, "live", &access.Session{Subject: "a", Role: access.RoleEditor, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, tokens.Create(ctx, "old", &access.Session{Subject: "b", Role: access.RoleViewer, CreatedAt: now, ExpiresAt: now.Add(-time.Hour)}))

	pruned, err := tokens.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	s, err := tokens.Get(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, access.RoleEditor, s.Role)
	_, err = tokens.Get(ctx, "old")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegistryOverMongo(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	projects := NewProjectRepository(db)
	items := NewItemRepository(db)
	svc := item.NewService(items, projects, attachment.New(afero.NewMemMapFs(), attachment.DefaultMaxPixels, nil),
		NewActivityRepository(db), nil, item.WithRetry(3, time.Millisecond))
	createProject(t, db, "P1")

	save := func(number int, title string) {
		_, err := svc.Upsert(ctx, "P1", item.UpsertRequest{
			Number: number,
			Fields: item.Fields{Title: title, Content: "c", Detail: "d"},
		})
		require.NoError(t, err)
	}
	save(1, "a")
	save(2, "b")
	save(3, "c")
	save(2, "new")

	list, err := svc.List(ctx, "P1")
	require.NoError(t, err)
	got := make([]string, len(list))
	for i, it := range list {
		got[i] = fmt.Sprintf("%s@%d", it.Title, it.Number)
	}
	require.Equal(t, []string{"a@1", "new@2", "b@3", "c@4"}, got)

	require.NoError(t, svc.Delete(ctx, "P1", list[2].ID))
	res, err := svc.Renumber(ctx, "P1")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, []int{1, 2, 3}, listNumbers(t, items, "P1"))
}
