package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpggio/dsheet/internal/attachment"
	"github.com/rpggio/dsheet/internal/config"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/logfile"
	"github.com/rpggio/dsheet/internal/mcp"
	"github.com/rpggio/dsheet/internal/store"
	"github.com/rpggio/dsheet/internal/telemetry"
	"github.com/rpggio/dsheet/internal/transport"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == config.ModeStdio {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, err := logfile.Open(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer fileWriter.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "dsheet",
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
	})
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
	}()

	repos, err := store.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DB.Driver, "error", err)
		os.Exit(1)
	}
	defer repos.Close(context.Background())

	files, err := attachment.NewOS(cfg.Storage.Root, cfg.Storage.MaxPixels, logger)
	if err != nil {
		logger.Error("failed to prepare image storage", "root", cfg.Storage.Root, "error", err)
		os.Exit(1)
	}

	projectSvc := project.NewService(repos.Projects, logger)
	activitySvc := activity.NewService(repos.Activity, logger)
	accessSvc := access.NewService(repos.Access, logger)
	itemSvc := item.NewService(repos.Items, repos.Projects, files, repos.Activity, logger)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Projects: projectSvc,
			Items:    itemSvc,
			Activity: activitySvc,
		},
		Resolver:      accessSvc,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		Version:       version,
		Logger:        logger,
	})

	if cfg.Transport.Mode == config.ModeStdio {
		runStdioMode(logger, mcpServer)
		return
	}

	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)
	router := transport.NewServer(transport.Config{
		Items:       itemSvc,
		Projects:    projectSvc,
		Activity:    activitySvc,
		Tokens:      accessSvc,
		AuthEnabled: cfg.Auth.Enabled,
		TokenTTL:    cfg.Auth.TokenTTL,
		Images:      files.Handler(),
		MCP:         mcpHandler,
		Metrics:     promhttp.Handler(),
		Logger:      logger,
	})
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; every request acts as admin")
	}

	runHTTPMode(logger, router, cfg.Server.Host, cfg.Server.Port)
}

func runStdioMode(logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

func runHTTPMode(logger *slog.Logger, handler http.Handler, host string, port int) {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
