package mocks

import (
	"context"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/stretchr/testify/mock"
)

// ProjectRepository is a mock for project.Repository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, key string) (*project.Project, error) {
	args := m.Called(ctx, key)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) List(ctx context.Context) ([]project.Summary, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]project.Summary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// ItemRepository is a mock for item.Repository.
type ItemRepository struct {
	mock.Mock
}

func (m *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	args := m.Called(ctx, it)
	return args.Error(0)
}

func (m *ItemRepository) Get(ctx context.Context, projectKey, id string) (*item.Item, error) {
	args := m.Called(ctx, projectKey, id)
	if it, ok := args.Get(0).(*item.Item); ok {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ItemRepository) Update(ctx context.Context, it *item.Item) error {
	args := m.Called(ctx, it)
	return args.Error(0)
}

func (m *ItemRepository) Delete(ctx context.Context, projectKey, id string) error {
	args := m.Called(ctx, projectKey, id)
	return args.Error(0)
}

func (m *ItemRepository) DeleteAll(ctx context.Context, projectKey string) (int, error) {
	args := m.Called(ctx, projectKey)
	return args.Int(0), args.Error(1)
}

func (m *ItemRepository) List(ctx context.Context, projectKey string, opts item.ListOptions) ([]item.Item, error) {
	args := m.Called(ctx, projectKey, opts)
	if list, ok := args.Get(0).([]item.Item); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ItemRepository) FindByNumber(ctx context.Context, projectKey string, number int) (*item.Item, error) {
	args := m.Called(ctx, projectKey, number)
	if it, ok := args.Get(0).(*item.Item); ok {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ItemRepository) HighestNumber(ctx context.Context, projectKey string) (int, error) {
	args := m.Called(ctx, projectKey)
	return args.Int(0), args.Error(1)
}

func (m *ItemRepository) SetNumber(ctx context.Context, projectKey, id string, number int) error {
	args := m.Called(ctx, projectKey, id, number)
	return args.Error(0)
}

func (m *ItemRepository) Park(ctx context.Context, projectKey string, from, offset int) (int64, error) {
	args := m.Called(ctx, projectKey, from, offset)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ItemRepository) Settle(ctx context.Context, projectKey string, offset int) (int64, error) {
	args := m.Called(ctx, projectKey, offset)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ItemRepository) CountParked(ctx context.Context, projectKey string, offset int) (int, error) {
	args := m.Called(ctx, projectKey, offset)
	return args.Int(0), args.Error(1)
}

func (m *ItemRepository) RelaxUniqueness(ctx context.Context) (func(context.Context) error, error) {
	args := m.Called(ctx)
	if restore, ok := args.Get(0).(func(context.Context) error); ok {
		return restore, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ItemRepository) InsertBatch(ctx context.Context, items []item.Item) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

// AttachmentStore is a mock for item.AttachmentStore.
type AttachmentStore struct {
	mock.Mock
}

func (m *AttachmentStore) Store(ctx context.Context, scope string, data []byte, originalName string) (string, error) {
	args := m.Called(ctx, scope, data, originalName)
	return args.String(0), args.Error(1)
}

func (m *AttachmentStore) Normalize(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *AttachmentStore) Release(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *AttachmentStore) List(ctx context.Context, scope string) ([]string, error) {
	args := m.Called(ctx, scope)
	if list, ok := args.Get(0).([]string); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// AccessRepository is a mock for access.Repository.
type AccessRepository struct {
	mock.Mock
}

func (m *AccessRepository) Create(ctx context.Context, tokenHash string, s *access.Session) error {
	args := m.Called(ctx, tokenHash, s)
	return args.Error(0)
}

func (m *AccessRepository) Get(ctx context.Context, tokenHash string) (*access.Session, error) {
	args := m.Called(ctx, tokenHash)
	if s, ok := args.Get(0).(*access.Session); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AccessRepository) Delete(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *AccessRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}
