package mcp

import (
	"context"
	"io"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/transport"
)

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	Create(ctx context.Context, req project.CreateRequest) (*project.Project, error)
	List(ctx context.Context) ([]project.Summary, error)
}

// ItemService defines registry operations needed by MCP.
type ItemService interface {
	Get(ctx context.Context, projectKey, id string) (*item.Item, error)
	List(ctx context.Context, projectKey string) ([]item.Item, error)
	Upsert(ctx context.Context, projectKey string, req item.UpsertRequest) (*item.Item, error)
	Delete(ctx context.Context, projectKey, id string) error
	DeleteAll(ctx context.Context, projectKey string) (int, error)
	Renumber(ctx context.Context, projectKey string) (*item.RenumberResult, error)
	Sweep(ctx context.Context, projectKey string) (*item.SweepResult, error)
	Export(ctx context.Context, projectKey string, w io.Writer) (int, error)
	Import(ctx context.Context, projectKey string, r io.Reader) (int, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Projects ProjectService
	Items    ItemService
	Activity ActivityService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      transport.SessionResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "dsheet",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Middleware added later runs first, so auth wraps traffic logging.
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))
	// Stdio is local only and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(transport.LocalSession()))
	}

	registerTools(server, cfg.Services)

	return server
}
