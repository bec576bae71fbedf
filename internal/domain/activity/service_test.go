package activity_test

import (
	"context"
	"testing"

	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogAndList(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.ActivityRepository{}
	entry := &activity.Entry{
		ProjectKey: "job1",
		Type:       activity.TypeItemCreated,
		Summary:    "created",
	}

	repo.On("Log", ctx, entry).Return(nil)
	repo.On("List", ctx, activity.ListOptions{ProjectKey: "job1", Limit: 50}).Return([]activity.Entry{*entry}, nil)

	svc := activity.NewService(repo, nil)
	require.NoError(t, svc.LogActivity(ctx, entry))
	require.False(t, entry.CreatedAt.IsZero())

	entries, err := svc.GetRecentActivity(ctx, activity.ListOptions{ProjectKey: "job1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestActivityService_RejectsIncompleteEntry(t *testing.T) {
	repo := &mocks.ActivityRepository{}
	svc := activity.NewService(repo, nil)

	require.ErrorIs(t, svc.LogActivity(context.Background(), nil), activity.ErrInvalidInput)
	require.ErrorIs(t, svc.LogActivity(context.Background(), &activity.Entry{Type: activity.TypeItemCreated}), activity.ErrInvalidInput)
	repo.AssertNotCalled(t, "Log", mock.Anything, mock.Anything)
}
