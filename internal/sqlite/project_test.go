package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestProjectRepository_CreateGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewProjectRepository(db)

	proj := &project.Project{Key: "job1", Name: "Job One", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, proj))

	loaded, err := repo.Get(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, "Job One", loaded.Name)

	err = repo.Create(ctx, proj)
	require.ErrorIs(t, err, repository.ErrConflict)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository_ListCounts(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "a")
	insertProject(t, db, "b")

	items := NewItemRepository(db)
	for _, n := range []int{1, 2, 7} {
		require.NoError(t, items.Create(ctx, newItem("a", n)))
	}

	list, err := NewProjectRepository(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].Key)
	require.Equal(t, 3, list[0].ItemCount)
	require.Equal(t, 7, list[0].HighestNum)
	require.Equal(t, 0, list[1].ItemCount)
}

func TestProjectRepository_Delete(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertProject(t, db, "a")
	repo := NewProjectRepository(db)

	require.NoError(t, NewItemRepository(db).Create(ctx, newItem("a", 1)))
	require.ErrorIs(t, repo.Delete(ctx, "a"), repository.ErrForeignKeyViolation)

	_, err := NewItemRepository(db).DeleteAll(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "a"))
	require.ErrorIs(t, repo.Delete(ctx, "a"), repository.ErrNotFound)
}

var _ item.ProjectRepository = (*ProjectRepository)(nil)
var _ project.Repository = (*ProjectRepository)(nil)
