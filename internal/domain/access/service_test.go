package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/repository"
	"github.com/rpggio/dsheet/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccessService_IssueResolve(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.AccessRepository{}

	var stored *access.Session
	var storedHash string
	repo.On("Create", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("*access.Session")).
		Run(func(args mock.Arguments) {
			storedHash = args.String(1)
			stored = args.Get(2).(*access.Session)
		}).Return(nil)

	svc := access.NewService(repo, nil)
	token, sess, err := svc.Issue(ctx, "alice", access.RoleEditor, time.Hour)
	require.NoError(t, err)
	require.Len(t, token, 64)
	require.Equal(t, access.HashToken(token), storedHash)
	require.NotEqual(t, token, storedHash)
	require.Same(t, sess, stored)

	repo.On("Get", ctx, storedHash).Return(stored, nil)
	resolved, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "alice", resolved.Subject)
	require.Equal(t, access.RoleEditor, resolved.Role)
}

func TestAccessService_ResolveExpiredOrUnknown(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.AccessRepository{}

	expired := &access.Session{Subject: "bob", Role: access.RoleViewer, ExpiresAt: time.Now().Add(-time.Minute)}
	repo.On("Get", ctx, access.HashToken("old")).Return(expired, nil)
	repo.On("Get", ctx, access.HashToken("nope")).Return((*access.Session)(nil), repository.ErrNotFound)

	svc := access.NewService(repo, nil)
	_, err := svc.Resolve(ctx, "old")
	require.ErrorIs(t, err, access.ErrUnauthorized)
	_, err = svc.Resolve(ctx, "nope")
	require.ErrorIs(t, err, access.ErrUnauthorized)
	_, err = svc.Resolve(ctx, "")
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestAccessService_IssueValidation(t *testing.T) {
	ctx := context.Background()
	svc := access.NewService(&mocks.AccessRepository{}, nil)

	_, _, err := svc.Issue(ctx, " ", access.RoleAdmin, time.Hour)
	require.ErrorIs(t, err, repository.ErrInvalidInput)
	_, _, err = svc.Issue(ctx, "x", access.Role("root"), time.Hour)
	require.ErrorIs(t, err, access.ErrInvalidRole)
	_, _, err = svc.Issue(ctx, "x", access.RoleAdmin, 0)
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestRole_Allows(t *testing.T) {
	require.True(t, access.RoleAdmin.Allows(access.RoleEditor))
	require.True(t, access.RoleEditor.Allows(access.RoleEditor))
	require.False(t, access.RoleViewer.Allows(access.RoleEditor))
	require.False(t, access.Role("").Allows(access.RoleViewer))
	require.False(t, access.RoleAdmin.Allows(access.Role("bogus")))
}
