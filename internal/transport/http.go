package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
)

// ItemService defines the registry operations served over HTTP.
type ItemService interface {
	Get(ctx context.Context, projectKey, id string) (*item.Item, error)
	List(ctx context.Context, projectKey string) ([]item.Item, error)
	Upsert(ctx context.Context, projectKey string, req item.UpsertRequest) (*item.Item, error)
	Delete(ctx context.Context, projectKey, id string) error
	DeleteAll(ctx context.Context, projectKey string) (int, error)
	AttachImages(ctx context.Context, projectKey, id string, uploads []item.Upload) (*item.Item, error)
	RemoveImage(ctx context.Context, projectKey, id string, index int) (*item.Item, error)
	Renumber(ctx context.Context, projectKey string) (*item.RenumberResult, error)
	Sweep(ctx context.Context, projectKey string) (*item.SweepResult, error)
	Export(ctx context.Context, projectKey string, w io.Writer) (int, error)
	Import(ctx context.Context, projectKey string, r io.Reader) (int, error)
	DropProject(ctx context.Context, projectKey string) error
}

// ProjectService defines project operations served over HTTP.
type ProjectService interface {
	Create(ctx context.Context, req project.CreateRequest) (*project.Project, error)
	Get(ctx context.Context, key string) (*project.Project, error)
	List(ctx context.Context) ([]project.Summary, error)
}

// ActivityService defines activity operations served over HTTP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error)
}

// TokenService issues and resolves bearer sessions.
type TokenService interface {
	SessionResolver
	Issue(ctx context.Context, subject string, role access.Role, ttl time.Duration) (string, *access.Session, error)
}

// Config wires the HTTP surface. Images, MCP and Metrics are optional.
type Config struct {
	Items    ItemService
	Projects ProjectService
	Activity ActivityService
	Tokens   TokenService

	AuthEnabled bool
	TokenTTL    time.Duration

	Images  http.Handler
	MCP     http.Handler
	Metrics http.Handler

	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	items    ItemService
	projects ProjectService
	activity ActivityService
	tokens   TokenService
	tokenTTL time.Duration
	logger   *slog.Logger
}

const (
	maxUploadBytes = 32 << 20
	maxImportBytes = 10 << 20
)

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{
		items:    cfg.Items,
		projects: cfg.Projects,
		activity: cfg.Activity,
		tokens:   cfg.Tokens,
		tokenTTL: cfg.TokenTTL,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Images != nil {
		r.Handle("/images/*", http.StripPrefix("/images", cfg.Images))
	}
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
		r.Handle("/mcp/*", cfg.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(AuthMiddleware(cfg.Tokens, logger))
		} else {
			r.Use(NoAuthMiddleware(LocalSession()))
		}

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(access.RoleViewer, logger))
			r.Get("/projects", srv.handleListProjects)
			r.Get("/projects/{key}", srv.handleGetProject)
			r.Get("/projects/{key}/items", srv.handleListItems)
			r.Get("/projects/{key}/items/{id}", srv.handleGetItem)
			r.Get("/projects/{key}/export", srv.handleExport)
			r.Get("/projects/{key}/activity", srv.handleActivity)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(access.RoleEditor, logger))
			r.Post("/projects", srv.handleCreateProject)
			r.Post("/projects/{key}/items", srv.handleSaveItem)
			r.Put("/projects/{key}/items/{id}", srv.handleSaveItem)
			r.Delete("/projects/{key}/items", srv.handleDeleteAll)
			r.Delete("/projects/{key}/items/{id}", srv.handleDeleteItem)
			r.Post("/projects/{key}/items/{id}/images", srv.handleAttachImages)
			r.Delete("/projects/{key}/items/{id}/images/{index}", srv.handleRemoveImage)
			r.Post("/projects/{key}/renumber", srv.handleRenumber)
			r.Post("/projects/{key}/import", srv.handleImport)
			r.Post("/projects/{key}/sweep", srv.handleSweep)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(access.RoleAdmin, logger))
			r.Delete("/projects/{key}", srv.handleDropProject)
			if cfg.Tokens != nil {
				r.Post("/tokens", srv.handleIssueToken)
			}
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
