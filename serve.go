package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/server"
	"github.com/anatolykoptev/go_ytchat/internal/videoserver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API (and MCP tools when MCP_PORT is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := loadConfig()
	a, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer a.Close()

	httpPort := env.Str("HTTP_PORT", "3000")
	srv := &http.Server{
		Addr: ":" + httpPort,
		Handler: server.NewRouter(a.svc, server.Options{
			CORSOrigins: env.List("CORS_ORIGINS", "*"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      c.FetchTimeout + c.MetadataTimeout + c.LLMTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	if mcpPort := env.Str("MCP_PORT", ""); mcpPort != "" {
		go runMCP(a.svc, mcpPort, srv.WriteTimeout)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting go_ytchat", slog.String("version", version), slog.String("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		return err
	}
	slog.Info("server stopped")
	return nil
}

func runMCP(svc *engine.Service, port string, writeTimeout time.Duration) {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "go_ytchat",
		Version: version,
	}, nil)
	videoserver.RegisterTools(s, svc)
	slog.Info("tools registered", slog.Int("count", videoserver.ToolCount), slog.String("port", port))

	if err := mcpserver.Run(s, mcpserver.Config{
		Name:         "go_ytchat",
		Version:      version,
		Port:         port,
		WriteTimeout: writeTimeout,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("mcp server failed", slog.Any("error", err))
	}
}
