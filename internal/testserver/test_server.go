package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/dsheet/internal/attachment"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/mcp"
	"github.com/rpggio/dsheet/internal/sqlite"
	"github.com/rpggio/dsheet/internal/transport"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TestServer is the full HTTP stack over in-memory storage.
type TestServer struct {
	Server *httptest.Server
	DB     *sqlite.DB
	Files  afero.Fs

	Items    *item.Service
	Projects *project.Service
	Activity *activity.Service
	Access   *access.Service
	MCP      *sdkmcp.Server

	// Token is an admin bearer token.
	Token string
}

// Option adjusts the stack before the server starts.
type Option func(*options)

type options struct {
	authEnabled bool
	maxPixels   int
}

// WithoutAuth serves every request as the local admin session.
func WithoutAuth() Option {
	return func(o *options) { o.authEnabled = false }
}

// WithMaxPixels sets the attachment resize threshold.
func WithMaxPixels(n int) Option {
	return func(o *options) { o.maxPixels = n }
}

func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()

	o := options{authEnabled: true, maxPixels: attachment.DefaultMaxPixels}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	projectRepo := sqlite.NewProjectRepository(db)
	itemRepo := sqlite.NewItemRepository(db)
	activityRepo := sqlite.NewActivityRepository(db)
	accessRepo := sqlite.NewAccessRepository(db)

	files := afero.NewMemMapFs()
	store := attachment.New(files, o.maxPixels, nil)

	projectSvc := project.NewService(projectRepo, nil)
	activitySvc := activity.NewService(activityRepo, nil)
	accessSvc := access.NewService(accessRepo, nil)
	itemSvc := item.NewService(itemRepo, projectRepo, store, activityRepo, nil,
		item.WithRetry(3, time.Millisecond))

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Projects: projectSvc,
			Items:    itemSvc,
			Activity: activitySvc,
		},
		Resolver:      accessSvc,
		AuthEnabled:   o.authEnabled,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)

	server := httptest.NewServer(transport.NewServer(transport.Config{
		Items:       itemSvc,
		Projects:    projectSvc,
		Activity:    activitySvc,
		Tokens:      accessSvc,
		AuthEnabled: o.authEnabled,
		TokenTTL:    time.Hour,
		Images:      store.Handler(),
		MCP:         mcpHandler,
	}))

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Files:    files,
		Items:    itemSvc,
		Projects: projectSvc,
		Activity: activitySvc,
		Access:   accessSvc,
		MCP:      mcpServer,
	}
	ts.Token = ts.IssueToken(t, access.RoleAdmin)

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// IssueToken creates a bearer token with the given role.
func (ts *TestServer) IssueToken(t *testing.T, role access.Role) string {
	t.Helper()
	token, _, err := ts.Access.Issue(context.Background(), "test-"+string(role), role, time.Hour)
	require.NoError(t, err)
	return token
}

// CreateProject adds a project directly through the service.
func (ts *TestServer) CreateProject(t *testing.T, key string) {
	t.Helper()
	_, err := ts.Projects.Create(context.Background(), project.CreateRequest{Key: key})
	require.NoError(t, err)
}
