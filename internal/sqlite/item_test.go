package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/repository"
	"github.com/stretchr/testify/require"
)

var _ item.Repository = (*ItemRepository)(nil)

func newItem(projectKey string, number int, images ...string) *item.Item {
	now := time.Now()
	if images == nil {
		images = []string{}
	}
	return &item.Item{
		ID:         uuid.NewString(),
		ProjectKey: projectKey,
		Number:     number,
		Title:      fmt.Sprintf("title %d", number),
		Content:    "content",
		Detail:     "detail",
		Images:     images,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

func numbers(t *testing.T, repo *ItemRepository, projectKey string) []int {
	t.Helper()
	items, err := repo.List(context.Background(), projectKey, item.ListOptions{})
	require.NoError(t, err)
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.Number
	}
	return out
}

func TestItemRepository_CreateGetUpdate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewItemRepository(db)

	it := newItem("p1", 1, "p1/a.png", "p1/b.png")
	require.NoError(t, repo.Create(ctx, it))

	loaded, err := repo.Get(ctx, "p1", it.ID)
	require.NoError(t, err)
	require.Equal(t, it.Title, loaded.Title)
	require.Equal(t, []string{"p1/a.png", "p1/b.png"}, loaded.Images)

	loaded.Title = "changed"
	loaded.Number = 5
	loaded.Images = []string{"p1/b.png"}
	require.NoError(t, repo.Update(ctx, loaded))

	again, err := repo.FindByNumber(ctx, "p1", 5)
	require.NoError(t, err)
	require.Equal(t, "changed", again.Title)
	require.Equal(t, []string{"p1/b.png"}, again.Images)

	_, err = repo.Get(ctx, "other", it.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindByNumber(ctx, "p1", 1)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestItemRepository_UniqueNumber(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewItemRepository(db)

	require.NoError(t, repo.Create(ctx, newItem("p1", 1)))
	second := newItem("p1", 2)
	require.NoError(t, repo.Create(ctx, second))

	require.ErrorIs(t, repo.Create(ctx, newItem("p1", 1)), repository.ErrConflict)
	require.ErrorIs(t, repo.SetNumber(ctx, "p1", second.ID, 1), repository.ErrConflict)
	second.Number = 1
	require.ErrorIs(t, repo.Update(ctx, second), repository.ErrConflict)
}

func TestItemRepository_ParkSettle(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	insertProject(t, db, "p2")
	repo := NewItemRepository(db)

	for n := 1; n <= 5; n++ {
		require.NoError(t, repo.Create(ctx, newItem("p1", n)))
	}
	require.NoError(t, repo.Create(ctx, newItem("p2", 3)))

	parked, err := repo.Park(ctx, "p1", 3, item.ParkOffset)
	require.NoError(t, err)
	require.EqualValues(t, 3, parked)
	require.Equal(t, []int{1, 2, item.ParkOffset + 3, item.ParkOffset + 4, item.ParkOffset + 5}, numbers(t, repo, "p1"))

	count, err := repo.CountParked(ctx, "p1", item.ParkOffset)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Parking again is a no-op for rows already parked.
	parked, err = repo.Park(ctx, "p1", 3, item.ParkOffset)
	require.NoError(t, err)
	require.EqualValues(t, 0, parked)

	settled, err := repo.Settle(ctx, "p1", item.ParkOffset)
	require.NoError(t, err)
	require.EqualValues(t, 3, settled)
	require.Equal(t, []int{1, 2, 4, 5, 6}, numbers(t, repo, "p1"))
	require.Equal(t, []int{3}, numbers(t, repo, "p2"))

	highest, err := repo.HighestNumber(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 6, highest)
}

func TestItemRepository_ListKeyset(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewItemRepository(db)

	for n := 1; n <= 7; n++ {
		require.NoError(t, repo.Create(ctx, newItem("p1", n, fmt.Sprintf("p1/%d.png", n))))
	}

	var got []int
	opts := item.ListOptions{Limit: 3}
	for {
		page, err := repo.List(ctx, "p1", opts)
		require.NoError(t, err)
		for _, it := range page {
			got = append(got, it.Number)
			require.Equal(t, []string{fmt.Sprintf("p1/%d.png", it.Number)}, it.Images)
		}
		if len(page) < opts.Limit {
			break
		}
		opts.AfterNumber = page[len(page)-1].Number
		opts.AfterID = page[len(page)-1].ID
	}
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, got)
}

func TestItemRepository_InsertBatchAtomic(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewItemRepository(db)
	require.NoError(t, repo.Create(ctx, newItem("p1", 2)))

	batch := []item.Item{*newItem("p1", 1), *newItem("p1", 2), *newItem("p1", 3)}
	require.ErrorIs(t, repo.InsertBatch(ctx, batch), repository.ErrConflict)
	require.Equal(t, []int{2}, numbers(t, repo, "p1"))

	batch = []item.Item{*newItem("p1", 1), *newItem("p1", 3)}
	require.NoError(t, repo.InsertBatch(ctx, batch))
	require.Equal(t, []int{1, 2, 3}, numbers(t, repo, "p1"))
}

func TestItemRepository_DeleteCascadesImages(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewItemRepository(db)

	it := newItem("p1", 1, "p1/a.png")
	require.NoError(t, repo.Create(ctx, it))
	require.NoError(t, repo.Delete(ctx, "p1", it.ID))
	require.ErrorIs(t, repo.Delete(ctx, "p1", it.ID), repository.ErrNotFound)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM item_images`).Scan(&n))
	require.Zero(t, n)

	require.NoError(t, repo.Create(ctx, newItem("p1", 1)))
	require.NoError(t, repo.Create(ctx, newItem("p1", 2)))
	deleted, err := repo.DeleteAll(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)
}

func TestItemRepository_RelaxUniqueness(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "p1")
	repo := NewItemRepository(db)

	first := newItem("p1", 1)
	require.NoError(t, repo.Create(ctx, first))

	restore, err := repo.RelaxUniqueness(ctx)
	require.NoError(t, err)
	dup := newItem("p1", 1)
	require.NoError(t, repo.Create(ctx, dup), "duplicates are accepted while relaxed")
	require.ErrorIs(t, restore(ctx), repository.ErrConflict)

	require.NoError(t, repo.SetNumber(ctx, "p1", dup.ID, 2))
	require.NoError(t, restore(ctx))
	require.ErrorIs(t, repo.Create(ctx, newItem("p1", 2)), repository.ErrConflict)
}
